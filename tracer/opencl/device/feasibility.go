package device

import "math"

// Split-kernel dispatch geometry constants (spec §4.5/§4.6/GLOSSARY
// "Wavefront"). LX/LY=(64,1) is the wavefront-sized work-group the
// split kernel's kernels launch with.
const (
	splitKernelLocalX = 64
	splitKernelLocalY = 1

	// numQueues is the compile-time NUM_QUEUES constant spec §3
	// names: one queue per split-kernel ray-routing decision
	// (active-and-regen, hit-background/buffer-update-to-regen,
	// shadow-ray AO cast, shadow-ray direct-lighting cast).
	numQueues = 4

	// dataAllocationMemFactor is the fixed 5MB headroom
	// get_feasible_global_work_size subtracts before dividing by
	// per-thread cost (spec §4.6).
	dataAllocationMemFactor = 5 * 1024 * 1024

	// pathIterIncFactor is PATH_ITER_INC_FACTOR (spec §4.5/§9): the
	// convergence loop's initial iteration count and adaptive step.
	pathIterIncFactor = 8
)

// PerThreadSizes is the per-thread memory breakdown named in spec
// §4.6: one field per term the formula sums, so the 3x-duplicated
// intersection/shader-data terms (main, direct-lighting, shadow) stay
// visible rather than folded into a single opaque constant.
type PerThreadSizes struct {
	RNG          int
	Throughput   int
	Transparency int
	RayState     int
	WorkElement  int
	LampFlag     int
	PathRadiance int
	Ray          int
	PathState    int

	// Intersection and ShaderData are each counted three times (main,
	// direct-lighting, shadow), per spec §4.6's "3 intersections + 3
	// shader-data records".
	Intersection int
	ShaderData   int

	LightRay int
	BSDFEval int
	AOAlpha  int
	AOBSDF   int
	// ExtraRay is the "one more ray" spec §4.6 calls out beyond the
	// main Ray field, used by the AO/shadow-ray shadow-blocked stage.
	ExtraRay int

	PerThreadOutputBuffer int
}

// Total sums every term, including the NUM_QUEUES ints/thread spec
// §4.6 lists alongside the named fields.
func (s PerThreadSizes) Total() int {
	return s.RNG + s.Throughput + s.Transparency + s.RayState + s.WorkElement + s.LampFlag +
		s.PathRadiance + s.Ray + s.PathState +
		3*s.Intersection + 3*s.ShaderData +
		s.LightRay + s.BSDFEval + s.AOAlpha + s.AOBSDF + s.ExtraRay +
		numQueues*4 +
		s.PerThreadOutputBuffer
}

// MemoryBudget is the scene/device-specific inputs to the three memory
// buckets spec §4.6 defines. TotalAllocatable must already reflect the
// AMD half-memory quirk (SPEC_FULL supplement 3) if applicable: the
// planner does not recompute it.
type MemoryBudget struct {
	TotalAllocatable int

	KernelGlobalsSize int
	// ShaderDataSOASize is get_shaderdata_soa_size's result. Per spec
	// §9's open question, this preserves the original's suspected
	// double-counted sizeof(void*)-per-closure term; callers must
	// compute it the same (oversized) way, not "fix" it.
	ShaderDataSOASize int

	TexturesSize int
	// DataSize is the "__data" constant buffer's size.
	DataSize int

	PerThreadOutputBufferSize int
	RNGSize                   int

	UseWorkStealing bool
	WorkPoolSize    int
}

// FeasibilityPlanner computes the three memory buckets and the tile
// feasibility/splitting decisions of spec §4.6. Grounded on
// get_invariable_mem_allocated / get_tile_specific_mem_allocated /
// get_scene_specific_mem_allocated / get_per_thread_memory /
// get_feasible_global_work_size / get_max_render_feasible_tile_size /
// need_to_split_tile / get_split_tile_size / split_tiles
// (device_opencl.cpp lines 2651-2960).
type FeasibilityPlanner struct {
	Budget    MemoryBudget
	PerThread PerThreadSizes
}

// InvariableMemAllocated: kernel-globals struct + per-queue counters +
// queues-flag byte + two SoA shader-data headers (main + DL/shadow).
func (p *FeasibilityPlanner) InvariableMemAllocated() int {
	const sizeofUint = 4
	const useQueuesFlagSize = 1
	return p.Budget.KernelGlobalsSize + numQueues*sizeofUint + useQueuesFlagSize + 2*p.Budget.ShaderDataSOASize
}

// TileSpecificMemAllocated: tile area * (per-thread output buffer +
// RNG), plus the work-stealing work-pool counters when enabled.
func (p *FeasibilityPlanner) TileSpecificMemAllocated(tileW, tileH int) int {
	size := tileW * tileH * (p.Budget.PerThreadOutputBufferSize + p.Budget.RNGSize)
	if p.Budget.UseWorkStealing {
		size += p.Budget.WorkPoolSize
	}
	return size
}

// SceneSpecificMemAllocated: sum of texture sizes + the "__data"
// constant buffer size.
func (p *FeasibilityPlanner) SceneSpecificMemAllocated() int {
	return p.Budget.TexturesSize + p.Budget.DataSize
}

// FeasibleGlobalWorkSize computes
// (total_allocatable - invariable - tile - scene - DATA_ALLOCATION_MEM_FACTOR) / per_thread_cost.
// A non-positive result (memory pressure so tight not even one thread
// fits) is clamped to zero rather than returned negative.
func (p *FeasibilityPlanner) FeasibleGlobalWorkSize(tileW, tileH int) int {
	perThread := p.PerThread.Total()
	if perThread <= 0 {
		return 0
	}

	available := p.Budget.TotalAllocatable -
		p.InvariableMemAllocated() -
		p.TileSpecificMemAllocated(tileW, tileH) -
		p.SceneSpecificMemAllocated() -
		dataAllocationMemFactor

	if available <= 0 {
		return 0
	}
	return available / perThread
}

// MaxRenderFeasibleTileSize finds the largest square-ish (w,h), each a
// multiple of (splitKernelLocalX, splitKernelLocalY), with w*h <= n.
// It tries the ceiling-rounded square root first and falls back to the
// floor-rounded one if that overshoots n (spec §4.6).
func MaxRenderFeasibleTileSize(n int) (w, h int) {
	if n <= 0 {
		return splitKernelLocalX, splitKernelLocalY
	}

	side := int(math.Sqrt(float64(n)))

	ceilW := roundUpMultiple(side, splitKernelLocalX)
	ceilH := roundUpMultiple(side, splitKernelLocalY)
	if ceilW*ceilH <= n {
		return ceilW, ceilH
	}

	floorW := roundDownMultiple(side, splitKernelLocalX)
	floorH := roundDownMultiple(side, splitKernelLocalY)
	if floorW <= 0 {
		floorW = splitKernelLocalX
	}
	if floorH <= 0 {
		floorH = splitKernelLocalY
	}
	return floorW, floorH
}

// NeedToSplitTile reports whether a requested (w,h) tile, rounded up to
// the local work-group multiple, exceeds the maximum feasible tile
// area (spec §8 Boundary property).
func NeedToSplitTile(w, h, maxFeasibleW, maxFeasibleH int) bool {
	ceilW := roundUpMultiple(w, splitKernelLocalX)
	ceilH := roundUpMultiple(h, splitKernelLocalY)
	return ceilW*ceilH > maxFeasibleW*maxFeasibleH
}

// GetSplitTileSize ceil-rounds the requested tile to the local
// work-group multiple, then repeatedly halves the larger dimension
// (re-rounding each halving) until the area fits within the feasible
// tile's thread budget (spec §4.6/§8 Boundary).
func GetSplitTileSize(w, h, maxFeasibleW, maxFeasibleH int) (splitW, splitH int) {
	dw := roundUpMultiple(w, splitKernelLocalX)
	dh := roundUpMultiple(h, splitKernelLocalY)
	numThreads := maxFeasibleW * maxFeasibleH

	for dw*dh > numThreads {
		if dw > dh {
			dw = roundUpMultiple(dw/2, splitKernelLocalX)
		} else {
			dh = roundUpMultiple(dh/2, splitKernelLocalY)
		}
		if dw <= 0 || dh <= 0 {
			break
		}
	}

	return dw, dh
}

// SplitTiles subdivides parent into a grid of sub-tiles sized
// splitW x splitH, with the right/bottom border sub-tiles absorbing the
// residual width/height so the union of sub-tiles is pixel-exact (spec
// §4.6, §8 invariant 3). Each sub-tile carries buffer/rng-state offsets
// into parent's buffers so all sub-tiles accumulate into one image.
func SplitTiles(parent *RenderTile, splitW, splitH int) []*RenderTile {
	if splitW <= 0 || splitH <= 0 {
		return []*RenderTile{parent}
	}

	numTilesX := (parent.W + splitW - 1) / splitW
	numTilesY := (parent.H + splitH - 1) / splitH

	tiles := make([]*RenderTile, 0, numTilesX*numTilesY)
	for ty := 0; ty < numTilesY; ty++ {
		y := ty * splitH
		h := splitH
		if y+h > parent.H {
			h = parent.H - y
		}

		for tx := 0; tx < numTilesX; tx++ {
			x := tx * splitW
			w := splitW
			if x+w > parent.W {
				w = parent.W - x
			}

			tiles = append(tiles, &RenderTile{
				X: parent.X + x, Y: parent.Y + y, W: w, H: h,

				StartSample: parent.StartSample,
				NumSamples:  parent.NumSamples,
				Sample:      parent.Sample,

				Stride: parent.Stride,
				Offset: parent.Offset,

				Buffer:   parent.Buffer,
				RNGState: parent.RNGState,

				BufferOffsetX:        x,
				BufferOffsetY:        y,
				RNGStateOffsetX:      x,
				RNGStateOffsetY:      y,
				BufferRNGStateStride: parent.Stride,
			})
		}
	}
	return tiles
}

func roundDownMultiple(v, m int) int {
	if m <= 0 {
		return v
	}
	return (v / m) * m
}
