package device

import (
	"testing"

	"github.com/hydroflame/gopencl/v1.2/cl"
)

// zeroPlatform and zeroDevice are the zero-value (platform, device) pair: good enough to
// exercise Slot's bookkeeping, which never dereferences either value.
var zeroPlatform cl.PlatformID
var zeroDevice cl.DeviceId

func TestSlotGetStoreProgramSingleFlight(t *testing.T) {
	cache := NewProgramCache()
	slot := cache.Slot(zeroPlatform, zeroDevice)

	program, mustProduce := slot.GetProgram("foo")
	if !mustProduce {
		t.Fatalf("expected mustProduce=true for an empty slot; got program=%v", program)
	}

	var fakeProgram cl.Program
	slot.StoreProgram("foo", fakeProgram)

	program, mustProduce = slot.GetProgram("foo")
	if mustProduce {
		t.Fatal("expected mustProduce=false once a program has been stored")
	}
	if program != fakeProgram {
		t.Fatalf("expected the stored program back; got %v", program)
	}

	// A different name in the same slot must still require production.
	_, mustProduce = slot.GetProgram("bar")
	if !mustProduce {
		t.Fatal("expected mustProduce=true for a different program name in the same slot")
	}
	slot.AbortProgram()
}

func TestSlotAbortProgramAllowsRetry(t *testing.T) {
	cache := NewProgramCache()
	slot := cache.Slot(zeroPlatform, zeroDevice)

	_, mustProduce := slot.GetProgram("foo")
	if !mustProduce {
		t.Fatal("expected mustProduce=true on first request")
	}
	slot.AbortProgram()

	_, mustProduce = slot.GetProgram("foo")
	if !mustProduce {
		t.Fatal("expected mustProduce=true again after AbortProgram left nothing stored")
	}
	slot.AbortProgram()
}

func TestSlotGetStoreContextSingleFlight(t *testing.T) {
	cache := NewProgramCache()
	slot := cache.Slot(zeroPlatform, zeroDevice)

	ctx, mustProduce := slot.GetContext()
	if !mustProduce || ctx != nil {
		t.Fatalf("expected (nil, true) on an empty slot; got (%v, %v)", ctx, mustProduce)
	}

	fakeCtx := &cl.Context{}
	slot.StoreContext(fakeCtx)

	ctx, mustProduce = slot.GetContext()
	if mustProduce {
		t.Fatal("expected mustProduce=false once a context has been stored")
	}
	if ctx != fakeCtx {
		t.Fatalf("expected the stored context back; got %v", ctx)
	}
}

func TestProgramCacheSlotMemoizesByKey(t *testing.T) {
	cache := NewProgramCache()

	a := cache.Slot(zeroPlatform, zeroDevice)
	b := cache.Slot(zeroPlatform, zeroDevice)
	if a != b {
		t.Fatal("expected the same (platform, device) pair to return the same Slot")
	}
}

func TestProgramCacheSlotDistinctPerDevice(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	cache := NewProgramCache()

	zero := cache.Slot(zeroPlatform, zeroDevice)
	real := cache.Slot(dev.Info.Platform, dev.Info.Device)
	if zero == real {
		t.Fatal("expected a distinct (platform, device) pair to return a distinct Slot")
	}

	// Asking again for the same real pair must return the same Slot.
	again := cache.Slot(dev.Info.Platform, dev.Info.Device)
	if again != real {
		t.Fatal("expected the same real (platform, device) pair to return the same Slot")
	}
}

func TestDefaultProgramCacheIsASingleton(t *testing.T) {
	if DefaultProgramCache() != DefaultProgramCache() {
		t.Fatal("expected DefaultProgramCache to return the same instance every call")
	}
}
