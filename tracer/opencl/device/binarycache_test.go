package device

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDeviceFingerprintIsStableAndSensitive(t *testing.T) {
	a := DeviceFingerprint("vendor", "1.2", "Test CPU", "1.2.3", "-D FOO")
	b := DeviceFingerprint("vendor", "1.2", "Test CPU", "1.2.3", "-D FOO")
	if a != b {
		t.Fatal("expected DeviceFingerprint to be deterministic for identical inputs")
	}

	c := DeviceFingerprint("vendor", "1.2", "Test CPU", "1.2.3", "-D BAR")
	if a == c {
		t.Fatal("expected a different build-option string to change the fingerprint")
	}
}

func TestSourceFingerprintOrderAndContentSensitive(t *testing.T) {
	dir := t.TempDir()
	fooPath := filepath.Join(dir, "foo.cl")
	barPath := filepath.Join(dir, "bar.cl")
	if err := os.WriteFile(fooPath, []byte("foo"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(barPath, []byte("bar"), 0o644); err != nil {
		t.Fatal(err)
	}

	fpFooBar, err := SourceFingerprint(fooPath, barPath)
	if err != nil {
		t.Fatal(err)
	}
	fpBarFoo, err := SourceFingerprint(barPath, fooPath)
	if err != nil {
		t.Fatal(err)
	}
	if fpFooBar == fpBarFoo {
		t.Fatal("expected concatenation order to change the fingerprint")
	}

	if err := os.WriteFile(fooPath, []byte("foo-changed"), 0o644); err != nil {
		t.Fatal(err)
	}
	fpChanged, err := SourceFingerprint(fooPath, barPath)
	if err != nil {
		t.Fatal(err)
	}
	if fpChanged == fpFooBar {
		t.Fatal("expected changing a source file's contents to change the fingerprint")
	}
}

func TestSourceFingerprintMissingFile(t *testing.T) {
	_, err := SourceFingerprint(filepath.Join(t.TempDir(), "missing.cl"))
	if err == nil {
		t.Fatal("expected an error for a missing source file")
	}
}

func TestBinaryCacheSaveLoadRoundTrip(t *testing.T) {
	cache := NewBinaryCache(t.TempDir())

	deviceFP := "devicefp"
	sourceFP := "sourcefp"
	binary := []byte("compiled-binary-bytes")

	if err := cache.Save(deviceFP, sourceFP, "megakernel", binary); err != nil {
		t.Fatal(err)
	}

	loaded, err := cache.Load(deviceFP, sourceFP, "megakernel")
	if err != nil {
		t.Fatal(err)
	}
	if string(loaded) != string(binary) {
		t.Fatalf("expected loaded binary to round-trip; got %q want %q", loaded, binary)
	}
}

func TestBinaryCacheVariantsDoNotCollide(t *testing.T) {
	cache := NewBinaryCache(t.TempDir())

	deviceFP, sourceFP := "devicefp", "sourcefp"
	if err := cache.Save(deviceFP, sourceFP, "megakernel", []byte("mega")); err != nil {
		t.Fatal(err)
	}
	if err := cache.Save(deviceFP, sourceFP, "base", []byte("base")); err != nil {
		t.Fatal(err)
	}

	mega, err := cache.Load(deviceFP, sourceFP, "megakernel")
	if err != nil {
		t.Fatal(err)
	}
	base, err := cache.Load(deviceFP, sourceFP, "base")
	if err != nil {
		t.Fatal(err)
	}
	if string(mega) != "mega" || string(base) != "base" {
		t.Fatalf("expected variant-specific entries to stay independent; got mega=%q base=%q", mega, base)
	}
}

func TestBinaryCacheLoadMissIsErrBinaryCacheMiss(t *testing.T) {
	cache := NewBinaryCache(t.TempDir())

	_, err := cache.Load("nope", "nope", "")
	if err == nil {
		t.Fatal("expected an error for a cache miss")
	}
	if !errors.Is(err, ErrBinaryCacheMiss) {
		t.Fatalf("expected the error to wrap ErrBinaryCacheMiss; got %v", err)
	}
}

func TestBinaryCacheLoadEmptyFileIsAMiss(t *testing.T) {
	dir := t.TempDir()
	cache := NewBinaryCache(dir)

	if err := cache.Save("d", "s", "", nil); err != nil {
		t.Fatal(err)
	}

	_, err := cache.Load("d", "s", "")
	if !errors.Is(err, ErrBinaryCacheMiss) {
		t.Fatalf("expected an empty cached file to be treated as a miss; got %v", err)
	}
}
