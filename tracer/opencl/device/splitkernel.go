package device

import (
	"fmt"

	"github.com/hydroflame/gopencl/v1.2/cl"

	"github.com/achilleasa/go-pathtrace/log"
)

var splitkernelLogger = log.New("splitkernel")

// splitKernelMaxClosure is the MAX_CLOSURE compile-time cap spec §4.5
// names: the interactive-mode rounding-to-a-multiple-of-5 never exceeds
// this value.
const splitKernelMaxClosure = 64

// splitKernelNames is the fixed, ordered set of eleven programs/kernels
// spec §4.5 names. DataInit and SumAllRadiance bracket the nine
// ping-pong stages enqueued inside the convergence loop.
var splitKernelNames = []string{
	"DataInit",
	"SceneIntersect",
	"LampEmission",
	"QueueEnqueue",
	"Background_BufferUpdate",
	"Shader_Lighting",
	"Holdout_Emission_Blurring_Pathtermination_AO",
	"DirectLighting",
	"ShadowBlocked_DirectLighting",
	"SetUpNextIteration",
	"SumAllRadiance",
}

// pingPongStages is the nine kernels enqueued, in order, once per
// convergence-loop iteration (spec §4.5 step 5). ShadowBlocked's doubled
// global_x is handled by the caller, not by this list.
var pingPongStages = splitKernelNames[1:10]

// SplitKernel is spec §4.5: the eleven-kernel wavefront pipeline, one
// SplitKernelArena shared across tiles, and the adaptive
// PathIteration_times hysteresis. Grounded on OpenCLDeviceSplitKernel
// (device_opencl.cpp lines 1416-2650) and get_max_closure /
// enqueue_path_iteration (device_split_kernel.cpp).
type SplitKernel struct {
	dev      *Device
	binaries *BinaryCache
	registry *BufferRegistry
	planner  *FeasibilityPlanner

	arena SplitKernelArena

	sourcePaths map[string][]string
	programs    map[string]cl.Program
	kernels     map[string]*Kernel

	dataConst    *Mem
	textureNames []string

	loadedClosure int
	interactive   bool
	useWorkStealing bool

	// pathIterTimes is PathIteration_times, carried across tiles so the
	// hysteresis in step 7 has a starting point for the next tile.
	pathIterTimes int

	base baseKernels
}

// NewSplitKernel constructs a SplitKernel bound to dev. LoadKernels must
// be called before PathTrace/FilmConvert/Shader.
func NewSplitKernel(dev *Device, binaries *BinaryCache) *SplitKernel {
	return &SplitKernel{
		dev:           dev,
		binaries:      binaries,
		registry:      NewBufferRegistry(dev, NoopStats{}),
		sourcePaths:   make(map[string][]string),
		programs:      make(map[string]cl.Program),
		kernels:       make(map[string]*Kernel),
		pathIterTimes: pathIterIncFactor,
		base:          newBaseKernels(dev, binaries),
	}
}

// SetBaseKernelSourcePaths records the shader/bake/film_convert kernel
// source files, compiled separately from the eleven split-kernel stages.
func (s *SplitKernel) SetBaseKernelSourcePaths(paths ...string) {
	s.base.SetSourcePaths(paths...)
}

// SetSourcePaths records the source files for one of the eleven named
// kernels (spec §1's out-of-scope GPU-side collaborator).
func (s *SplitKernel) SetSourcePaths(kernelName string, paths ...string) {
	s.sourcePaths[kernelName] = paths
}

// SetDataConst registers the "__data" constant buffer and the
// fixed-order texture-name list shared by every stage's argument list.
func (s *SplitKernel) SetDataConst(dataConst *Mem, textureNames []string) {
	s.dataConst = dataConst
	s.textureNames = textureNames
}

// SetPlanner installs the FeasibilityPlanner used to size the arena on
// first tile (spec §3 Lifecycle, §4.6).
func (s *SplitKernel) SetPlanner(planner *FeasibilityPlanner) {
	s.planner = planner
}

// SetInteractive toggles the interactive max_closure rounding (spec
// §4.5): background-mode render sessions always build with the exact
// requested max_closure.
func (s *SplitKernel) SetInteractive(interactive bool) {
	s.interactive = interactive
}

// SetWorkStealing toggles the work-stealing dispatch geometry and arena
// work-pool counters (spec §4.5 step 1, §4.6 Tile-specific bucket).
func (s *SplitKernel) SetWorkStealing(useWorkStealing bool) {
	s.useWorkStealing = useWorkStealing
}

func closureCount(requested int, interactive bool) int {
	if !interactive {
		return requested
	}
	m := roundUpMultiple(requested, 5)
	if m > splitKernelMaxClosure {
		m = splitKernelMaxClosure
	}
	return m
}

// LoadKernels compiles (or loads from cache) all eleven programs built
// with -D__SPLIT_KERNEL__ -D__MAX_CLOSURE__=<m>. Reloading is skipped
// once m stops changing (spec §4.5: "kernels are only reloaded when m
// changes").
func (s *SplitKernel) LoadKernels(features DeviceRequestedFeatures, debugBuild bool) error {
	m := closureCount(features.MaxClosure, s.interactive)
	if m == s.loadedClosure && len(s.kernels) == len(splitKernelNames) {
		return nil
	}

	extra := fmt.Sprintf("-D__SPLIT_KERNEL__ -D__MAX_CLOSURE__=%d", m)
	if s.useWorkStealing {
		extra += " -D__WORK_STEALING__"
	}
	buildOptions := s.dev.BuildOptions(extra, debugBuild)

	slot := s.dev.slot
	for _, name := range splitKernelNames {
		program, mustProduce := slot.GetProgram(name)
		if !mustProduce {
			s.programs[name] = program
		} else {
			compiled, err := s.compileOrLoad(name, buildOptions)
			if err != nil {
				slot.AbortProgram()
				return err
			}
			slot.StoreProgram(name, compiled)
			s.programs[name] = compiled
		}

		kernel, err := s.dev.KernelFromProgram(s.programs[name], name)
		if err != nil {
			return fmt.Errorf("opencl splitkernel (%s): %w", s.dev.Name, err)
		}
		if old, ok := s.kernels[name]; ok {
			old.Release()
		}
		s.kernels[name] = kernel
	}

	s.loadedClosure = m
	splitkernelLogger.Debugf("loaded split-kernel pipeline for %s (max_closure=%d)", s.dev.Name, m)
	return s.base.Load(debugBuild)
}

func (s *SplitKernel) compileOrLoad(name, buildOptions string) (cl.Program, error) {
	sourceFP, err := SourceFingerprint(s.sourcePaths[name]...)
	if err != nil {
		return nil, err
	}
	deviceFP := DeviceFingerprint(s.dev.Info.Vendor, s.dev.Info.PlatformName, s.dev.Name, s.dev.Info.DriverVersion, buildOptions)

	if binary, err := s.binaries.Load(deviceFP, sourceFP, name); err == nil {
		program, loadErr := s.dev.LoadProgramFromBinary(binary, buildOptions)
		if loadErr == nil {
			return program, nil
		}
		splitkernelLogger.Warningf("binary cache entry for %s/%s rejected by driver, recompiling: %v", s.dev.Name, name, loadErr)
	}

	source, err := concatSources(s.sourcePaths[name])
	if err != nil {
		return nil, err
	}
	program, err := s.dev.CompileProgramFromSource(source, buildOptions)
	if err != nil {
		return nil, err
	}

	if binary, binErr := s.dev.ProgramBinary(program); binErr == nil {
		if saveErr := s.binaries.Save(deviceFP, sourceFP, name, binary); saveErr != nil {
			return nil, fmt.Errorf("opencl splitkernel (%s/%s): %w", s.dev.Name, name, saveErr)
		}
	}
	return program, nil
}

// dispatchGeometry implements spec §4.5 step 1.
func (s *SplitKernel) dispatchGeometry(tileW, tileH, numSamples int) (globalX, globalY int) {
	ceilW := roundUpMultiple(tileW, splitKernelLocalX)
	ceilH := roundUpMultiple(tileH, splitKernelLocalY)

	if s.useWorkStealing {
		return ceilW, ceilH
	}

	numThreads := s.arena.NumGlobalElements
	if numThreads <= 0 {
		numThreads = ceilW * ceilH
	}
	maxParallel := numThreads / ceilH / tileW
	if maxParallel < 1 {
		maxParallel = 1
	}
	numParallelSamples := numSamples
	if numParallelSamples > maxParallel {
		numParallelSamples = maxParallel
	}
	numParallelSamples = roundDownMultiple(numParallelSamples, splitKernelLocalX)
	if numParallelSamples < 1 {
		numParallelSamples = 1
	}

	return ceilW * numParallelSamples, ceilH
}

// sharedArgs builds the fixed-order argument prefix every one of the
// eleven kernels binds: the "__data" constant, every texture, and the
// arena's cooperation/SoA buffers (spec §4.5 step 3: "same buffers
// across kernels").
func (s *SplitKernel) sharedArgs() []KernelArg {
	args := []KernelArg{MemArg(s.dataConst)}
	for _, name := range s.textureNames {
		args = append(args, BufferArg(s.registry.TextureArgBuffer(name)))
	}
	a := &s.arena
	for _, m := range []*Mem{
		a.Throughput, a.LTransparent, a.PathRadiance, a.Ray, a.PathState,
		a.Intersection, a.IntersectionAO, a.IntersectionDL, a.AOAlpha, a.AOBSDF,
		a.AOLightRay, a.BSDFEval, a.ISLamp, a.LightRay, a.RayState, a.QueueData,
		a.QueueIndex, a.UseQueuesFlag, a.WorkArray, a.PerSampleOutputBuffers,
		a.SD.Position, a.SD.Normal, a.SD.GeomNormal, a.SD.Incoming, a.SD.ShaderID,
		a.SD.Flag, a.SD.Closure, a.SD.NumClosure,
		a.SDDLShadow.Position, a.SDDLShadow.Normal, a.SDDLShadow.Closure,
	} {
		args = append(args, MemArg(m))
	}
	if a.UseWorkStealing {
		args = append(args, MemArg(a.WorkPoolWGS))
	}
	return args
}

// tileArgs is the per-tile scalar suffix (spec §4.5 step 3: "each
// kernel's extra scalars").
func tileArgs(tile *RenderTile, sample int) []KernelArg {
	return []KernelArg{
		MemArg(tile.Buffer),
		MemArg(tile.RNGState),
		Int32Arg(int32(sample)),
		Int32Arg(int32(tile.X)),
		Int32Arg(int32(tile.Y)),
		Int32Arg(int32(tile.W)),
		Int32Arg(int32(tile.H)),
		Int32Arg(int32(tile.Offset)),
		Int32Arg(int32(tile.Stride)),
		Int32Arg(int32(tile.BufferOffsetX)),
		Int32Arg(int32(tile.BufferOffsetY)),
		Int32Arg(int32(tile.RNGStateOffsetX)),
		Int32Arg(int32(tile.RNGStateOffsetY)),
	}
}

func (s *SplitKernel) enqueue(name string, tile *RenderTile, sample, globalX, globalY int) error {
	k := s.kernels[name]
	args := append(s.sharedArgs(), tileArgs(tile, sample)...)
	if err := k.SetOrderedArgs(args); err != nil {
		return err
	}
	return k.Enqueue2D(0, 0, globalX, globalY, splitKernelLocalX, splitKernelLocalY)
}

// ensureArena lazily allocates the SplitKernelArena, sized to the
// maximum feasible tile, on the first call (spec §3 Lifecycle, §4.5
// step 2).
func (s *SplitKernel) ensureArena(shaderClosureSize int) error {
	if s.arena.allocated {
		return nil
	}

	n := 0
	if s.planner != nil {
		n = s.planner.FeasibleGlobalWorkSize(0, 0)
	}
	maxW, maxH := MaxRenderFeasibleTileSize(n)
	numGlobalElements := maxW * maxH

	numWorkGroups := numGlobalElements / (splitKernelLocalX * splitKernelLocalY)
	if numWorkGroups < 1 {
		numWorkGroups = 1
	}

	return s.arena.Allocate(s.registry, numGlobalElements, shaderClosureSize, s.useWorkStealing, numWorkGroups)
}

// PathTrace implements spec §4.5's per-tile flow.
func (s *SplitKernel) PathTrace(task *DeviceTask, tile *RenderTile) error {
	shaderClosureSize := task.Features.MaxClosure * sizeofFloat4 // one float4 slot per closure, spec §3
	if err := s.ensureArena(shaderClosureSize); err != nil {
		return err
	}

	globalX, globalY := s.dispatchGeometry(tile.W, tile.H, task.NumSamples)

	if err := s.enqueue("DataInit", tile, tile.StartSample, globalX, globalY); err != nil {
		return err
	}

	// iterTimes is the per-pass count for the ping-pong stages below; it
	// starts at the value carried in from the previous tile but drops to
	// pathIterIncFactor after the first host intervention, so a tile
	// needing several passes doesn't re-run a large stale count on every
	// extra pass. numNextPathIterTimes accumulates separately and seeds
	// s.pathIterTimes for the next tile.
	iterTimes := s.pathIterTimes
	numHostIntervention := 0
	numNextPathIterTimes := 0
	for {
		for i := 0; i < iterTimes; i++ {
			for _, name := range pingPongStages {
				gx, gy := globalX, globalY
				if name == "ShadowBlocked_DirectLighting" {
					gx = 2 * globalX
				}
				if err := s.enqueue(name, tile, tile.Sample, gx, gy); err != nil {
					return err
				}
			}
		}

		if errCode := cl.Finish(s.dev.cmdQueue); errCode != cl.SUCCESS {
			return fmt.Errorf("opencl splitkernel (%s): clFinish before ray_state readback failed (errCode %d)", s.dev.Name, errCode)
		}

		state, err := s.arena.ReadRayState(s.registry)
		if err != nil {
			return err
		}
		if !AnyRayActive(state) {
			break
		}
		numHostIntervention++
		iterTimes = pathIterIncFactor
		numNextPathIterTimes += pathIterIncFactor
	}

	if err := s.enqueue("SumAllRadiance", tile, tile.Sample, globalX, globalY); err != nil {
		return err
	}
	if errCode := cl.Finish(s.dev.cmdQueue); errCode != cl.SUCCESS {
		return fmt.Errorf("opencl splitkernel (%s): clFinish failed (errCode %d)", s.dev.Name, errCode)
	}

	// Adaptive tuning (spec §4.5 step 7).
	if numHostIntervention == 0 {
		s.pathIterTimes -= pathIterIncFactor
		if s.pathIterTimes < pathIterIncFactor {
			s.pathIterTimes = pathIterIncFactor
		}
	} else {
		s.pathIterTimes += numNextPathIterTimes
	}

	tile.Sample = tile.StartSample + task.NumSamples
	if task.UpdateProgress != nil {
		task.UpdateProgress(tile, tile.Sample)
	}

	return nil
}

// FilmConvert and Shader are not part of the eleven split-kernel
// programs; like MegaKernel's, they dispatch against their own
// separately-loaded kernels once wired to a source path.
func (s *SplitKernel) FilmConvert(task *DeviceTask, tile *RenderTile) error {
	return s.base.FilmConvert(task, tile, s.dataConst, s.textureNames, s.registry)
}

func (s *SplitKernel) Shader(task *DeviceTask) error {
	return s.base.Shader(task, s.dataConst, s.textureNames, s.registry)
}

// Close releases every kernel, the base kernels, the arena, and the
// buffer registry.
func (s *SplitKernel) Close() {
	for name, k := range s.kernels {
		k.Release()
		delete(s.kernels, name)
	}
	s.base.Close()
	s.arena.Release(s.registry)
	s.registry.Close()
}
