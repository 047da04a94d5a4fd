package device

import "testing"

// TestSplitKernelArenaRayStateAndQueueDataSizes checks spec §8 property
// 4: sizeof(ray_state) == num_global_elements, and sizeof(Queue_data) ==
// num_global_elements * NUM_QUEUES * sizeof(int).
func TestSplitKernelArenaRayStateAndQueueDataSizes(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	registry := NewBufferRegistry(dev, NoopStats{})
	defer registry.Close()

	const numGlobalElements = 128
	const shaderClosureSize = 64

	var arena SplitKernelArena
	if err := arena.Allocate(registry, numGlobalElements, shaderClosureSize, false, 0); err != nil {
		t.Fatal(err)
	}
	defer arena.Release(registry)

	if got, want := arena.RayState.MemorySize(), numGlobalElements*sizeofByte; got != want {
		t.Fatalf("ray_state size = %d, want %d (num_global_elements * sizeof(byte))", got, want)
	}

	if got, want := arena.QueueData.MemorySize(), numGlobalElements*numQueues*sizeofInt; got != want {
		t.Fatalf("queue_data size = %d, want %d (num_global_elements * NUM_QUEUES * sizeof(int))", got, want)
	}

	if got, want := arena.QueueIndex.MemorySize(), numQueues*sizeofInt; got != want {
		t.Fatalf("queue_index size = %d, want %d (NUM_QUEUES * sizeof(int))", got, want)
	}

	if got, want := len(arena.hostRayState), numGlobalElements; got != want {
		t.Fatalf("host ray_state scratch length = %d, want %d", got, want)
	}
}

func TestSplitKernelArenaAllocateIsIdempotent(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	registry := NewBufferRegistry(dev, NoopStats{})
	defer registry.Close()

	var arena SplitKernelArena
	if err := arena.Allocate(registry, 64, 32, false, 0); err != nil {
		t.Fatal(err)
	}
	rayState := arena.RayState
	defer arena.Release(registry)

	// A second Allocate call with different sizes must be a no-op: the
	// arena is sized once to the maximum feasible tile and reused.
	if err := arena.Allocate(registry, 256, 256, false, 0); err != nil {
		t.Fatal(err)
	}
	if arena.RayState != rayState {
		t.Fatal("expected a second Allocate call to be a no-op and leave existing buffers in place")
	}
	if arena.NumGlobalElements != 64 {
		t.Fatalf("expected NumGlobalElements to stay at the first Allocate's value; got %d", arena.NumGlobalElements)
	}
}

func TestSplitKernelArenaWorkStealingAllocatesWorkPool(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	registry := NewBufferRegistry(dev, NoopStats{})
	defer registry.Close()

	const numWorkGroups = 16

	var arena SplitKernelArena
	if err := arena.Allocate(registry, 64, 32, true, numWorkGroups); err != nil {
		t.Fatal(err)
	}
	defer arena.Release(registry)

	if arena.WorkPoolWGS == nil {
		t.Fatal("expected WorkPoolWGS to be allocated when useWorkStealing is true")
	}
	if got, want := arena.WorkPoolWGS.MemorySize(), numWorkGroups*sizeofInt; got != want {
		t.Fatalf("work_pool_wgs size = %d, want %d", got, want)
	}
}

func TestAnyRayActive(t *testing.T) {
	allInactive := []byte{RayInactive, RayInactive, RayInactive}
	if AnyRayActive(allInactive) {
		t.Fatal("expected AnyRayActive to be false when every byte is RayInactive")
	}

	oneActive := []byte{RayInactive, 1, RayInactive}
	if !AnyRayActive(oneActive) {
		t.Fatal("expected AnyRayActive to be true when any byte differs from RayInactive")
	}

	if AnyRayActive(nil) {
		t.Fatal("expected AnyRayActive(nil) to be false")
	}
}

func TestSplitKernelArenaReadRayState(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	registry := NewBufferRegistry(dev, NoopStats{})
	defer registry.Close()

	const numGlobalElements = 32

	var arena SplitKernelArena
	if err := arena.Allocate(registry, numGlobalElements, 16, false, 0); err != nil {
		t.Fatal(err)
	}
	defer arena.Release(registry)

	state, err := arena.ReadRayState(registry)
	if err != nil {
		t.Fatal(err)
	}
	if len(state) != numGlobalElements {
		t.Fatalf("ReadRayState returned %d bytes, want %d", len(state), numGlobalElements)
	}
}
