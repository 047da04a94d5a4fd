package device

import (
	"fmt"
	"io/ioutil"

	"github.com/hydroflame/gopencl/v1.2/cl"

	"github.com/achilleasa/go-pathtrace/log"
)

var megakernelLogger = log.New("megakernel")

const megakernelProgramName = "megakernel"

// MegaKernel is spec §4.4: one program, one kernel
// (kernel_ocl_path_trace), dispatched per tile per sample. Grounded on
// OpenCLDeviceMegaKernel (device_opencl.cpp lines 1208-1413).
type MegaKernel struct {
	dev      *Device
	binaries *BinaryCache
	registry *BufferRegistry

	sourcePaths []string

	program   cl.Program
	kernel    *Kernel
	dataConst *Mem

	textureNames []string

	base baseKernels
}

// NewMegaKernel constructs a MegaKernel bound to dev. LoadKernels must
// be called before PathTrace/FilmConvert/Shader.
func NewMegaKernel(dev *Device, binaries *BinaryCache) *MegaKernel {
	return &MegaKernel{
		dev:      dev,
		binaries: binaries,
		registry: NewBufferRegistry(dev, NoopStats{}),
		base:     newBaseKernels(dev, binaries),
	}
}

// SetBaseKernelSourcePaths records the shader/bake/film_convert kernel
// source files, compiled separately from kernel_ocl_path_trace.
func (m *MegaKernel) SetBaseKernelSourcePaths(paths ...string) {
	m.base.SetSourcePaths(paths...)
}

// SetSourcePaths records the kernel source files whose concatenated
// contents feed the BinaryCache source fingerprint. The source files
// themselves are the out-of-scope GPU-side math spec §1 names.
func (m *MegaKernel) SetSourcePaths(paths ...string) {
	m.sourcePaths = paths
}

// SetDataConst registers the "__data" constant buffer (spec §3's
// invariant: it must be populated before any kernel dispatch) and the
// fixed-order texture-name list the argument binder walks.
func (m *MegaKernel) SetDataConst(dataConst *Mem, textureNames []string) {
	m.dataConst = dataConst
	m.textureNames = textureNames
}

// LoadKernels compiles (or loads from cache) kernel_ocl_path_trace.
// Calling it twice is a no-op after the first success.
func (m *MegaKernel) LoadKernels(features DeviceRequestedFeatures, debugBuild bool) error {
	if m.kernel != nil {
		return nil
	}

	buildOptions := m.dev.BuildOptions("-D__COMPILE_ONLY_MEGAKERNEL__", debugBuild)

	slot := m.dev.slot
	program, mustProduce := slot.GetProgram(megakernelProgramName)
	if !mustProduce {
		m.program = program
		if err := m.loadKernel(); err != nil {
			return err
		}
		return m.base.Load(debugBuild)
	}

	program, err := m.compileOrLoad(buildOptions)
	if err != nil {
		slot.AbortProgram()
		return err
	}
	slot.StoreProgram(megakernelProgramName, program)

	m.program = program
	if err := m.loadKernel(); err != nil {
		return err
	}
	return m.base.Load(debugBuild)
}

func (m *MegaKernel) compileOrLoad(buildOptions string) (cl.Program, error) {
	sourceFP, err := SourceFingerprint(m.sourcePaths...)
	if err != nil {
		return nil, err
	}
	deviceFP := DeviceFingerprint(m.dev.Info.Vendor, m.dev.Info.PlatformName, m.dev.Name, m.dev.Info.DriverVersion, buildOptions)

	if binary, err := m.binaries.Load(deviceFP, sourceFP, "megakernel"); err == nil {
		program, loadErr := m.dev.LoadProgramFromBinary(binary, buildOptions)
		if loadErr == nil {
			megakernelLogger.Debugf("loaded megakernel program from binary cache for %s", m.dev.Name)
			return program, nil
		}
		megakernelLogger.Warningf("binary cache entry for %s rejected by driver, recompiling: %v", m.dev.Name, loadErr)
	}

	source, err := concatSources(m.sourcePaths)
	if err != nil {
		return nil, err
	}
	program, err := m.dev.CompileProgramFromSource(source, buildOptions)
	if err != nil {
		return nil, err
	}

	if binary, binErr := m.dev.ProgramBinary(program); binErr == nil {
		if saveErr := m.binaries.Save(deviceFP, sourceFP, "megakernel", binary); saveErr != nil {
			// Per spec §7, a save failure after a successful build is
			// fatal: without it every future launch repeats this compile.
			return nil, fmt.Errorf("opencl megakernel (%s): %w", m.dev.Name, saveErr)
		}
	}

	return program, nil
}

func (m *MegaKernel) loadKernel() error {
	kernel, err := m.dev.KernelFromProgram(m.program, "kernel_ocl_path_trace")
	if err != nil {
		return err
	}
	m.kernel = kernel
	return nil
}

// pathTraceArgs builds the fixed-order (data, buffer, rng_state,
// textures..., sample, x, y, w, h, offset, stride) argument list, per
// spec §4.4. textureNames is the single source of truth shared with the
// kernel source (spec §6's "header enumerating all textures").
func (m *MegaKernel) pathTraceArgs(dataConst *Mem, tile *RenderTile, sample int, textureNames []string) []KernelArg {
	args := []KernelArg{
		MemArg(dataConst),
		MemArg(tile.Buffer),
		MemArg(tile.RNGState),
	}
	for _, name := range textureNames {
		args = append(args, BufferArg(m.registry.TextureArgBuffer(name)))
	}
	args = append(args,
		Int32Arg(int32(sample)),
		Int32Arg(int32(tile.X)),
		Int32Arg(int32(tile.Y)),
		Int32Arg(int32(tile.W)),
		Int32Arg(int32(tile.H)),
		Int32Arg(int32(tile.Offset)),
		Int32Arg(int32(tile.Stride)),
	)
	return args
}

// PathTraceTile binds arguments and enqueues one sample of the
// megakernel over tile, using the shared dispatch-geometry calculation.
func (m *MegaKernel) PathTraceTile(tile *RenderTile, sample int) error {
	if err := m.kernel.SetOrderedArgs(m.pathTraceArgs(m.dataConst, tile, sample, m.textureNames)); err != nil {
		return err
	}

	_, _, globalW, globalH, err := m.dev.DispatchGeometry(m.kernel, tile.W, tile.H)
	if err != nil {
		return err
	}

	return m.enqueueFlush(globalW, globalH)
}

// enqueueFlush mirrors spec §9's callout: the megakernel's inner loop
// uses clFlush, not clFinish — ordering relies on the in-order queue,
// not on completion, until the caller explicitly finishes before
// releasing the tile.
func (m *MegaKernel) enqueueFlush(globalW, globalH int) error {
	return m.kernel.Enqueue2D(0, 0, globalW, globalH, 0, 0)
}

// PathTrace runs the sample loop described in spec §4.4: iterate
// samples from tile.StartSample to StartSample+NumSamples, updating
// tile.Sample after each, checking GetCancel between samples (unless
// task.NeedFinishQueue suppresses cancellation), and calling clFinish
// before the caller releases the tile.
func (m *MegaKernel) PathTrace(task *DeviceTask, tile *RenderTile) error {
	for sample := tile.StartSample; sample < tile.StartSample+task.NumSamples; sample++ {
		if !task.NeedFinishQueue && task.cancelled() {
			break
		}

		if err := m.PathTraceTile(tile, sample); err != nil {
			return err
		}

		tile.Sample = sample + 1
		if task.UpdateProgress != nil {
			task.UpdateProgress(tile, tile.Sample)
		}
	}

	if errCode := cl.Finish(m.dev.cmdQueue); errCode != cl.SUCCESS {
		return fmt.Errorf("opencl megakernel (%s): clFinish failed (errCode %d)", m.dev.Name, errCode)
	}
	return nil
}

// FilmConvert and Shader dispatch through the same shared
// DispatchGeometry-driven enqueue path as path tracing, but against the
// film_convert/shader kernels rather than kernel_ocl_path_trace. The
// kernel source and its fixed argument order are the out-of-scope
// GPU-side collaborator (spec §1); this only owns the dispatch.
func (m *MegaKernel) FilmConvert(task *DeviceTask, tile *RenderTile) error {
	return m.base.FilmConvert(task, tile, m.dataConst, m.textureNames, m.registry)
}

func (m *MegaKernel) Shader(task *DeviceTask) error {
	return m.base.Shader(task, m.dataConst, m.textureNames, m.registry)
}

// Close releases the kernel, base kernels, program, and buffer registry.
func (m *MegaKernel) Close() {
	if m.kernel != nil {
		m.kernel.Release()
		m.kernel = nil
	}
	m.base.Close()
	m.registry.Close()
}

func concatSources(paths []string) (string, error) {
	var out []byte
	for _, path := range paths {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return "", err
		}
		out = append(out, data...)
	}
	return string(out), nil
}
