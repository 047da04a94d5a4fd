package device

import "fmt"

// RayInactive is the ray_state byte value meaning "this ray has nothing
// left to do"; the convergence loop treats any other value as "still
// active" (spec §3/§4.5/GLOSSARY "Ray state").
const RayInactive byte = 0

const (
	sizeofInt     = 4
	sizeofUint    = 4
	sizeofFloat   = 4
	sizeofFloat3  = 12
	sizeofFloat4  = 16
	sizeofByte    = 1
	sizeofRNG     = 8 // two uint32 lanes, matching the teacher's RNG state layout
	sizeofPtr     = 8
)

// ShaderDataSOA is one copy of the per-ray shader-data record, modeled
// as spec §9 prescribes: a separate contiguous allocation per field
// rather than an array-of-structs, because split-kernel stages only
// ever touch a handful of fields at a time. Two copies of this struct
// exist in SplitKernelArena: the main path and the direct-lighting
// shadow path (spec §3's "_DL_shadow" duplication).
type ShaderDataSOA struct {
	Position     *Mem
	Normal       *Mem
	GeomNormal   *Mem
	Incoming     *Mem
	ShaderID     *Mem
	Flag         *Mem
	Primitive    *Mem
	PrimType     *Mem
	BaryU        *Mem
	BaryV        *Mem
	Object       *Mem
	Time         *Mem
	RayLength    *Mem
	RayDepth     *Mem
	TransparentDepth *Mem
	DPDu         *Mem
	DPDv         *Mem
	DiffDPDx     *Mem
	DiffDPDy     *Mem
	DiffDDx      *Mem
	DiffDDy      *Mem
	Closure      *Mem // sized num_global_elements * shaderClosureSize
	NumClosure   *Mem
	RandomBary   *Mem
}

// shaderDataFieldSize approximates get_shaderdata_soa_size's per-thread
// contribution (excluding the dynamically-sized closure array), summing
// the per-field byte costs listed in spec §3's field enumeration. Per
// spec §9's open question, this total intentionally matches the
// original's macro-expansion bug: sizeof(void*) is added twice for the
// pointer-shaped per-closure bookkeeping term (once for the "array
// pointer" field and once again for its duplicate in the macro body).
func shaderDataFieldSize() int {
	return sizeofFloat3*3 /* Position, Normal, GeomNormal */ +
		sizeofFloat3 /* Incoming */ +
		sizeofInt*5 /* ShaderID, Flag, Primitive, PrimType, Object */ +
		sizeofFloat*4 /* BaryU, BaryV, Time, RayLength */ +
		sizeofInt /* RayDepth */ +
		sizeofInt /* TransparentDepth */ +
		sizeofFloat3*2 /* DPDu, DPDv */ +
		sizeofFloat3*4 /* DiffDPDx/Dy, DiffDDx/Dy */ +
		sizeofInt /* NumClosure */ +
		sizeofFloat /* RandomBary */ +
		sizeofPtr /* closure-array pointer bookkeeping, counted once... */ +
		sizeofPtr /* ...and again, per the preserved double-count */
}

// allocate creates every field sized for numElements threads, each
// element sized perField bytes except Closure, which additionally
// scales with shaderClosureSize.
func (sd *ShaderDataSOA) allocate(registry *BufferRegistry, prefix string, numElements, shaderClosureSize int) error {
	type field struct {
		name string
		dst  **Mem
		size int
	}
	fields := []field{
		{"position", &sd.Position, sizeofFloat3},
		{"normal", &sd.Normal, sizeofFloat3},
		{"geom_normal", &sd.GeomNormal, sizeofFloat3},
		{"incoming", &sd.Incoming, sizeofFloat3},
		{"shader_id", &sd.ShaderID, sizeofInt},
		{"flag", &sd.Flag, sizeofInt},
		{"primitive", &sd.Primitive, sizeofInt},
		{"prim_type", &sd.PrimType, sizeofInt},
		{"bary_u", &sd.BaryU, sizeofFloat},
		{"bary_v", &sd.BaryV, sizeofFloat},
		{"object", &sd.Object, sizeofInt},
		{"time", &sd.Time, sizeofFloat},
		{"ray_length", &sd.RayLength, sizeofFloat},
		{"ray_depth", &sd.RayDepth, sizeofInt},
		{"transparent_depth", &sd.TransparentDepth, sizeofInt},
		{"dp_du", &sd.DPDu, sizeofFloat3},
		{"dp_dv", &sd.DPDv, sizeofFloat3},
		{"diff_dp_dx", &sd.DiffDPDx, sizeofFloat3},
		{"diff_dp_dy", &sd.DiffDPDy, sizeofFloat3},
		{"diff_dd_dx", &sd.DiffDDx, sizeofFloat3},
		{"diff_dd_dy", &sd.DiffDDy, sizeofFloat3},
		{"num_closure", &sd.NumClosure, sizeofInt},
		{"random_bary", &sd.RandomBary, sizeofFloat},
	}

	for _, f := range fields {
		m, err := registry.MemAlloc(prefix+"_"+f.name, MemReadWrite, numElements*f.size)
		if err != nil {
			return fmt.Errorf("opencl splitkernel: shaderdata field %s: %w", f.name, err)
		}
		*f.dst = m
	}

	closure, err := registry.MemAlloc(prefix+"_closure", MemReadWrite, numElements*shaderClosureSize)
	if err != nil {
		return fmt.Errorf("opencl splitkernel: shaderdata field closure: %w", err)
	}
	sd.Closure = closure

	return nil
}

func (sd *ShaderDataSOA) release(registry *BufferRegistry) {
	for _, m := range []*Mem{
		sd.Position, sd.Normal, sd.GeomNormal, sd.Incoming, sd.ShaderID, sd.Flag,
		sd.Primitive, sd.PrimType, sd.BaryU, sd.BaryV, sd.Object, sd.Time,
		sd.RayLength, sd.RayDepth, sd.TransparentDepth, sd.DPDu, sd.DPDv,
		sd.DiffDPDx, sd.DiffDPDy, sd.DiffDDx, sd.DiffDDy, sd.Closure,
		sd.NumClosure, sd.RandomBary,
	} {
		if m != nil {
			registry.MemFree(m)
		}
	}
}

// SplitKernelArena is spec §3's SplitKernelArena: every device-resident
// buffer the eleven split-kernel stages share, sized to
// num_global_elements = ceil_mul(tile_w,LX) * ceil_mul(tile_h,LY) and
// allocated lazily on the first tile, then reused until device
// teardown (spec §3 Lifecycle).
type SplitKernelArena struct {
	NumGlobalElements int
	allocated         bool

	// Cooperation buffers, one allocation per field (spec §9 SoA
	// rationale).
	Throughput      *Mem
	LTransparent    *Mem
	PathRadiance    *Mem
	Ray             *Mem
	PathState       *Mem
	Intersection    *Mem
	IntersectionAO  *Mem
	IntersectionDL  *Mem
	AOAlpha         *Mem
	AOBSDF          *Mem
	AOLightRay      *Mem
	BSDFEval        *Mem
	ISLamp          *Mem
	LightRay        *Mem

	// Per-ray state and routing.
	RayState      *Mem // one byte per ray; RayInactive marks done
	QueueData     *Mem // num_global_elements * NUM_QUEUES ints
	QueueIndex    *Mem // NUM_QUEUES counters
	UseQueuesFlag *Mem // single byte

	// Shader-data SoA, main and direct-lighting-shadow copies.
	SD         ShaderDataSOA
	SDDLShadow ShaderDataSOA

	// Work-stealing (optional).
	UseWorkStealing bool
	WorkPoolWGS     *Mem
	MaxWorkGroups   int

	KGBuffer             *Mem // KernelGlobals buffer
	PerSampleOutputBuffers *Mem
	WorkArray            *Mem

	hostRayState []byte
}

// Allocate performs every mem_alloc call for numGlobalElements threads.
// It is a no-op if already allocated: the arena is sized once, to the
// maximum feasible tile, and reused (spec §3 Lifecycle).
func (a *SplitKernelArena) Allocate(registry *BufferRegistry, numGlobalElements, shaderClosureSize int, useWorkStealing bool, numWorkGroups int) error {
	if a.allocated {
		return nil
	}

	a.NumGlobalElements = numGlobalElements
	a.UseWorkStealing = useWorkStealing
	a.MaxWorkGroups = numWorkGroups

	type plan struct {
		name string
		dst  **Mem
		size int
	}
	plans := []plan{
		{"throughput", &a.Throughput, numGlobalElements * sizeofFloat3},
		{"l_transparent", &a.LTransparent, numGlobalElements * sizeofFloat},
		{"path_radiance", &a.PathRadiance, numGlobalElements * sizeofFloat4},
		{"ray", &a.Ray, numGlobalElements * (sizeofFloat3*2 + sizeofFloat*2)},
		{"path_state", &a.PathState, numGlobalElements * (sizeofInt * 6)},
		{"isect", &a.Intersection, numGlobalElements * sizeofFloat4},
		{"isect_ao", &a.IntersectionAO, numGlobalElements * sizeofFloat4},
		{"isect_dl", &a.IntersectionDL, numGlobalElements * sizeofFloat4},
		{"ao_alpha", &a.AOAlpha, numGlobalElements * sizeofFloat3},
		{"ao_bsdf", &a.AOBSDF, numGlobalElements * sizeofFloat3},
		{"ao_light_ray", &a.AOLightRay, numGlobalElements * (sizeofFloat3*2 + sizeofFloat*2)},
		{"bsdf_eval", &a.BSDFEval, numGlobalElements * sizeofFloat3},
		{"is_lamp", &a.ISLamp, numGlobalElements * sizeofInt},
		{"light_ray", &a.LightRay, numGlobalElements * (sizeofFloat3*2 + sizeofFloat*2)},
		{"queue_data", &a.QueueData, numGlobalElements * numQueues * sizeofInt},
		{"queue_index", &a.QueueIndex, numQueues * sizeofInt},
		{"use_queues_flag", &a.UseQueuesFlag, sizeofByte},
		{"work_array", &a.WorkArray, numGlobalElements * sizeofInt},
		{"per_sample_output_buffers", &a.PerSampleOutputBuffers, numGlobalElements * sizeofFloat4},
	}

	for _, p := range plans {
		m, err := registry.MemAlloc(p.name, MemReadWrite, p.size)
		if err != nil {
			return fmt.Errorf("opencl splitkernel: arena field %s: %w", p.name, err)
		}
		*p.dst = m
	}

	rayState, err := registry.MemAlloc("ray_state", MemReadWrite, numGlobalElements*sizeofByte)
	if err != nil {
		return fmt.Errorf("opencl splitkernel: arena field ray_state: %w", err)
	}
	a.RayState = rayState
	a.hostRayState = make([]byte, numGlobalElements)

	if useWorkStealing {
		workPool, err := registry.MemAlloc("work_pool_wgs", MemReadWrite, numWorkGroups*sizeofInt)
		if err != nil {
			return fmt.Errorf("opencl splitkernel: arena field work_pool_wgs: %w", err)
		}
		a.WorkPoolWGS = workPool
	}

	if err := a.SD.allocate(registry, "sd", numGlobalElements, shaderClosureSize); err != nil {
		return err
	}
	if err := a.SDDLShadow.allocate(registry, "sd_dl_shadow", numGlobalElements, shaderClosureSize); err != nil {
		return err
	}

	a.allocated = true
	return nil
}

// ReadRayState blocking-reads the ray_state buffer into the arena's
// host-side scratch array and returns it. This is the synchronous
// convergence-loop readback of spec §4.5 step 5.
func (a *SplitKernelArena) ReadRayState(registry *BufferRegistry) ([]byte, error) {
	if err := registry.MemCopyFrom(a.RayState, 0, a.NumGlobalElements, 1, sizeofByte, a.hostRayState); err != nil {
		return nil, err
	}
	return a.hostRayState, nil
}

// AnyRayActive scans state for any byte != RayInactive, the host-side
// convergence signal (spec §4.5 step 5, GLOSSARY "Ray state").
func AnyRayActive(state []byte) bool {
	for _, b := range state {
		if b != RayInactive {
			return true
		}
	}
	return false
}

// Release frees every buffer in the arena.
func (a *SplitKernelArena) Release(registry *BufferRegistry) {
	if !a.allocated {
		return
	}

	for _, m := range []*Mem{
		a.Throughput, a.LTransparent, a.PathRadiance, a.Ray, a.PathState,
		a.Intersection, a.IntersectionAO, a.IntersectionDL, a.AOAlpha, a.AOBSDF,
		a.AOLightRay, a.BSDFEval, a.ISLamp, a.LightRay, a.RayState, a.QueueData,
		a.QueueIndex, a.UseQueuesFlag, a.WorkArray, a.PerSampleOutputBuffers,
		a.WorkPoolWGS, a.KGBuffer,
	} {
		if m != nil {
			registry.MemFree(m)
		}
	}
	a.SD.release(registry)
	a.SDDLShadow.release(registry)

	a.allocated = false
}
