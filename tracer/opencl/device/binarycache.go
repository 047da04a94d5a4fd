package device

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/achilleasa/go-pathtrace/log"
)

var binaryCacheLogger = log.New("binarycache")

// ErrBinaryCacheMiss is returned by BinaryCache.Load when no binary
// exists for the requested fingerprint, or the binary on disk could not
// be read back. Per spec §4.2/§7 this is never fatal: the caller always
// falls back to compiling from source.
var ErrBinaryCacheMiss = fmt.Errorf("opencl binarycache: miss")

// BinaryCache is the disk-backed cache of compiled program binaries
// described in spec §4.2. Grounded on device_opencl.cpp's
// load_binary/save_binary/device_md5_hash.
type BinaryCache struct {
	dir string
}

// NewBinaryCache returns a cache rooted at dir. The directory is created
// lazily on the first Save call.
func NewBinaryCache(dir string) *BinaryCache {
	return &BinaryCache{dir: dir}
}

// DeviceFingerprint hashes the device identity and build options that
// make a compiled binary specific to one device configuration:
// vendor, OpenCL platform/driver version string, device name, driver
// version, and the exact build-option string passed to the compiler.
func DeviceFingerprint(vendor, version, name, driver, buildOptions string) string {
	h := md5.New()
	fmt.Fprint(h, vendor, version, name, driver, buildOptions)
	return hex.EncodeToString(h.Sum(nil))
}

// SourceFingerprint hashes the concatenated contents of every kernel
// source file in order. Any change to any source file changes the
// fingerprint, which is what makes the on-disk filename a valid cache
// key (spec §8 round-trip property).
func SourceFingerprint(sourcePaths ...string) (string, error) {
	h := md5.New()
	for _, path := range sourcePaths {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("opencl binarycache: could not read kernel source %s: %w", path, err)
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// filename returns "cycles_kernel_<deviceFP>_<sourceFP>[_<variant>].bin"
// per spec §4.2's naming scheme.
func (c *BinaryCache) filename(deviceFP, sourceFP, variant string) string {
	if variant == "" {
		return fmt.Sprintf("cycles_kernel_%s_%s.bin", deviceFP, sourceFP)
	}
	return fmt.Sprintf("cycles_kernel_%s_%s_%s.bin", deviceFP, sourceFP, variant)
}

// Path returns the full on-disk path for a given fingerprint/variant
// without touching the filesystem.
func (c *BinaryCache) Path(deviceFP, sourceFP, variant string) string {
	return filepath.Join(c.dir, c.filename(deviceFP, sourceFP, variant))
}

// Load reads a cached binary. A missing or unreadable file is reported
// as ErrBinaryCacheMiss (wrapping the underlying error), never as a
// distinguishable "corrupt" error: the caller treats both the same way,
// by falling back to source compilation.
func (c *BinaryCache) Load(deviceFP, sourceFP, variant string) ([]byte, error) {
	path := c.Path(deviceFP, sourceFP, variant)
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBinaryCacheMiss, path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s: empty binary", ErrBinaryCacheMiss, path)
	}
	return data, nil
}

// Save writes a freshly compiled binary to disk. Per spec §7, a failed
// Save after a successful build is treated as fatal by the caller: an
// uncached expensive compile would otherwise repeat on every launch.
func (c *BinaryCache) Save(deviceFP, sourceFP, variant string, binary []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("opencl binarycache: could not create cache dir %s: %w", c.dir, err)
	}

	path := c.Path(deviceFP, sourceFP, variant)
	if err := ioutil.WriteFile(path, binary, 0o644); err != nil {
		return fmt.Errorf("opencl binarycache: could not write %s: %w", path, err)
	}
	binaryCacheLogger.Debugf("wrote compiled binary cache entry %s (%d bytes)", path, len(binary))
	return nil
}
