package device

import "testing"

func TestPerThreadSizesTotal(t *testing.T) {
	s := PerThreadSizes{
		RNG: 8, Throughput: 12, Transparency: 4, RayState: 1, WorkElement: 4,
		LampFlag: 4, PathRadiance: 16, Ray: 32, PathState: 24,
		Intersection: 16, ShaderData: 200,
		LightRay: 32, BSDFEval: 12, AOAlpha: 12, AOBSDF: 12, ExtraRay: 32,
		PerThreadOutputBuffer: 16,
	}

	got := s.Total()
	want := s.RNG + s.Throughput + s.Transparency + s.RayState + s.WorkElement + s.LampFlag +
		s.PathRadiance + s.Ray + s.PathState +
		3*s.Intersection + 3*s.ShaderData +
		s.LightRay + s.BSDFEval + s.AOAlpha + s.AOBSDF + s.ExtraRay +
		numQueues*4 +
		s.PerThreadOutputBuffer
	if got != want {
		t.Fatalf("Total() = %d, want %d", got, want)
	}
}

func TestFeasibilityPlannerMemoryBuckets(t *testing.T) {
	p := &FeasibilityPlanner{
		Budget: MemoryBudget{
			KernelGlobalsSize: 1024,
			ShaderDataSOASize: 2048,
			TexturesSize:      4096,
			DataSize:          512,
		},
	}

	wantInvariable := 1024 + numQueues*4 + 1 + 2*2048
	if got := p.InvariableMemAllocated(); got != wantInvariable {
		t.Fatalf("InvariableMemAllocated() = %d, want %d", got, wantInvariable)
	}

	wantScene := 4096 + 512
	if got := p.SceneSpecificMemAllocated(); got != wantScene {
		t.Fatalf("SceneSpecificMemAllocated() = %d, want %d", got, wantScene)
	}

	p.Budget.PerThreadOutputBufferSize = 16
	p.Budget.RNGSize = 8
	wantTile := 64 * 32 * (16 + 8)
	if got := p.TileSpecificMemAllocated(64, 32); got != wantTile {
		t.Fatalf("TileSpecificMemAllocated() = %d, want %d", got, wantTile)
	}

	p.Budget.UseWorkStealing = true
	p.Budget.WorkPoolSize = 256
	if got := p.TileSpecificMemAllocated(64, 32); got != wantTile+256 {
		t.Fatalf("TileSpecificMemAllocated() with work stealing = %d, want %d", got, wantTile+256)
	}
}

func TestFeasibleGlobalWorkSizeClampsAtZero(t *testing.T) {
	p := &FeasibilityPlanner{
		Budget: MemoryBudget{
			TotalAllocatable: 1024,
		},
		PerThread: PerThreadSizes{Ray: 1 << 20},
	}

	if got := p.FeasibleGlobalWorkSize(64, 64); got != 0 {
		t.Fatalf("expected FeasibleGlobalWorkSize to clamp at 0 under memory pressure; got %d", got)
	}
}

func TestFeasibleGlobalWorkSizeDividesAvailableByPerThreadCost(t *testing.T) {
	p := &FeasibilityPlanner{
		Budget:    MemoryBudget{TotalAllocatable: 1 << 30},
		PerThread: PerThreadSizes{Ray: 100},
	}

	perThread := p.PerThread.Total()
	available := p.Budget.TotalAllocatable - p.InvariableMemAllocated() - p.TileSpecificMemAllocated(64, 64) - p.SceneSpecificMemAllocated() - dataAllocationMemFactor
	want := available / perThread

	if got := p.FeasibleGlobalWorkSize(64, 64); got != want {
		t.Fatalf("FeasibleGlobalWorkSize(64, 64) = %d, want %d", got, want)
	}
}

func TestMaxRenderFeasibleTileSizeIsAlwaysLocalSizeMultiple(t *testing.T) {
	// Below (splitKernelLocalX, splitKernelLocalY) area, the result is
	// bound below by one work-group and necessarily overshoots n: the
	// dispatch granularity, not n, is the binding constraint there.
	cases := []int{0, 1, 63, 64, 65, 1000}
	for _, n := range cases {
		w, h := MaxRenderFeasibleTileSize(n)
		if w%splitKernelLocalX != 0 || h%splitKernelLocalY != 0 {
			t.Fatalf("MaxRenderFeasibleTileSize(%d) = (%d, %d), not a multiple of (%d, %d)", n, w, h, splitKernelLocalX, splitKernelLocalY)
		}
		if w <= 0 || h <= 0 {
			t.Fatalf("MaxRenderFeasibleTileSize(%d) = (%d, %d), expected strictly positive dimensions", n, w, h)
		}
	}
}

func TestMaxRenderFeasibleTileSizeExactPerfectSquare(t *testing.T) {
	// n = 256^2 lands exactly on the ceiling-rounded branch: side=256 is
	// already a multiple of both local sizes, so the area matches n.
	n := 256 * 256
	w, h := MaxRenderFeasibleTileSize(n)
	if w != 256 || h != 256 {
		t.Fatalf("MaxRenderFeasibleTileSize(%d) = (%d, %d), want (256, 256)", n, w, h)
	}
}

func TestNeedToSplitTile(t *testing.T) {
	maxW, maxH := 128, 64
	if NeedToSplitTile(64, 32, maxW, maxH) {
		t.Fatal("expected a tile within the feasible area not to need splitting")
	}
	if !NeedToSplitTile(256, 256, maxW, maxH) {
		t.Fatal("expected a tile exceeding the feasible area to need splitting")
	}
}

func TestGetSplitTileSizeFitsWithinFeasibleArea(t *testing.T) {
	maxW, maxH := 128, 64
	splitW, splitH := GetSplitTileSize(1024, 1024, maxW, maxH)

	if splitW*splitH > maxW*maxH {
		t.Fatalf("GetSplitTileSize returned (%d, %d), area %d exceeds feasible area %d", splitW, splitH, splitW*splitH, maxW*maxH)
	}
	if splitW%splitKernelLocalX != 0 || splitH%splitKernelLocalY != 0 {
		t.Fatalf("GetSplitTileSize returned (%d, %d), not a multiple of (%d, %d)", splitW, splitH, splitKernelLocalX, splitKernelLocalY)
	}
}

func TestSplitTilesCoversParentExactly(t *testing.T) {
	parent := &RenderTile{X: 10, Y: 20, W: 200, H: 150, Stride: 1000, Offset: 5}

	tiles := SplitTiles(parent, 64, 64)

	covered := make(map[[2]int]bool)
	for _, tile := range tiles {
		if tile.Stride != parent.Stride || tile.Offset != parent.Offset {
			t.Fatalf("expected sub-tiles to inherit the parent's stride/offset; got stride=%d offset=%d", tile.Stride, tile.Offset)
		}
		for y := tile.Y; y < tile.Y+tile.H; y++ {
			for x := tile.X; x < tile.X+tile.W; x++ {
				key := [2]int{x, y}
				if covered[key] {
					t.Fatalf("pixel (%d, %d) covered by more than one sub-tile", x, y)
				}
				covered[key] = true
			}
		}
	}

	for y := parent.Y; y < parent.Y+parent.H; y++ {
		for x := parent.X; x < parent.X+parent.W; x++ {
			if !covered[[2]int{x, y}] {
				t.Fatalf("pixel (%d, %d) not covered by any sub-tile", x, y)
			}
		}
	}
}

func TestSplitTilesNoSplitReturnsParent(t *testing.T) {
	parent := &RenderTile{X: 0, Y: 0, W: 64, H: 64}
	tiles := SplitTiles(parent, 0, 0)
	if len(tiles) != 1 || tiles[0] != parent {
		t.Fatal("expected a non-positive split size to return the parent tile unchanged")
	}
}
