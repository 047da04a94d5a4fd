package device

import (
	"fmt"

	"github.com/hydroflame/gopencl/v1.2/cl"
)

// baseKernelsProgramName keys the ProgramCache slot and BinaryCache
// variant for the shader/bake/film_convert program, which both
// MegaKernel and SplitKernel compile identically and share (spec's
// supplemented "shader/bake/film-convert kernel family", grounded on
// OpenCLDeviceBase::load_kernels, device_opencl.cpp lines ~780-815).
const baseKernelsProgramName = "base"

// baseKernels holds the shader/bake/film-convert dispatch that both
// strategies expose through Strategy.Shader/FilmConvert. It is embedded
// by value in MegaKernel and SplitKernel rather than promoted to
// DeviceBase itself, since it still needs each strategy's own
// dataConst/textureNames/registry to build kernel arguments.
type baseKernels struct {
	dev      *Device
	binaries *BinaryCache

	sourcePaths []string

	program cl.Program

	shader         *Kernel
	bake           *Kernel
	filmConvertU8  *Kernel
	filmConvertF16 *Kernel
}

func newBaseKernels(dev *Device, binaries *BinaryCache) baseKernels {
	return baseKernels{dev: dev, binaries: binaries}
}

// SetSourcePaths records the shader/bake/film_convert kernel source
// files, analogous to MegaKernel/SplitKernel's own SetSourcePaths.
func (b *baseKernels) SetSourcePaths(paths ...string) {
	b.sourcePaths = paths
}

// Load compiles (or loads from the binary cache) the base program and
// creates its four kernels. Calling it twice is a no-op after the
// first success.
func (b *baseKernels) Load(debugBuild bool) error {
	if b.shader != nil {
		return nil
	}
	if len(b.sourcePaths) == 0 {
		return nil
	}

	buildOptions := b.dev.BuildOptions("", debugBuild)

	slot := b.dev.slot
	program, mustProduce := slot.GetProgram(baseKernelsProgramName)
	if !mustProduce {
		b.program = program
		return b.loadKernels()
	}

	program, err := b.compileOrLoad(buildOptions)
	if err != nil {
		slot.AbortProgram()
		return err
	}
	slot.StoreProgram(baseKernelsProgramName, program)

	b.program = program
	return b.loadKernels()
}

func (b *baseKernels) compileOrLoad(buildOptions string) (cl.Program, error) {
	sourceFP, err := SourceFingerprint(b.sourcePaths...)
	if err != nil {
		return nil, err
	}
	deviceFP := DeviceFingerprint(b.dev.Info.Vendor, b.dev.Info.PlatformName, b.dev.Name, b.dev.Info.DriverVersion, buildOptions)

	if binary, err := b.binaries.Load(deviceFP, sourceFP, baseKernelsProgramName); err == nil {
		if program, loadErr := b.dev.LoadProgramFromBinary(binary, buildOptions); loadErr == nil {
			return program, nil
		}
	}

	source, err := concatSources(b.sourcePaths)
	if err != nil {
		return nil, err
	}
	program, err := b.dev.CompileProgramFromSource(source, buildOptions)
	if err != nil {
		return nil, err
	}

	if binary, binErr := b.dev.ProgramBinary(program); binErr == nil {
		if saveErr := b.binaries.Save(deviceFP, sourceFP, baseKernelsProgramName, binary); saveErr != nil {
			return nil, fmt.Errorf("opencl base kernels (%s): %w", b.dev.Name, saveErr)
		}
	}

	return program, nil
}

func (b *baseKernels) loadKernels() error {
	var err error
	if b.shader, err = b.dev.KernelFromProgram(b.program, "kernel_ocl_shader"); err != nil {
		return err
	}
	if b.bake, err = b.dev.KernelFromProgram(b.program, "kernel_ocl_bake"); err != nil {
		return err
	}
	if b.filmConvertU8, err = b.dev.KernelFromProgram(b.program, "kernel_ocl_convert_to_byte"); err != nil {
		return err
	}
	if b.filmConvertF16, err = b.dev.KernelFromProgram(b.program, "kernel_ocl_convert_to_half_float"); err != nil {
		return err
	}
	return nil
}

// filmConvertArgs builds the fixed-order (data, rgba, buffer,
// textures..., sample_scale, x, y, w, h, offset, stride) argument list
// per device_opencl.cpp's film_convert.
func filmConvertArgs(dataConst *Mem, rgba, buffer *Mem, tile *RenderTile, textureNames []string, registry *BufferRegistry) []KernelArg {
	args := []KernelArg{MemArg(dataConst), MemArg(rgba), MemArg(buffer)}
	for _, name := range textureNames {
		args = append(args, BufferArg(registry.TextureArgBuffer(name)))
	}
	return append(args,
		Float32Arg(1.0/float32(tile.Sample+1)),
		Int32Arg(int32(tile.X)),
		Int32Arg(int32(tile.Y)),
		Int32Arg(int32(tile.W)),
		Int32Arg(int32(tile.H)),
		Int32Arg(int32(tile.Offset)),
		Int32Arg(int32(tile.Stride)),
	)
}

// FilmConvert resolves the rgba_byte/rgba_half kernel and dispatches it
// over tile, per spec's supplemented film-convert operation. Exactly
// one of task.RGBAByte/task.RGBAHalf must be set.
func (b *baseKernels) FilmConvert(task *DeviceTask, tile *RenderTile, dataConst *Mem, textureNames []string, registry *BufferRegistry) error {
	if b.filmConvertU8 == nil {
		return fmt.Errorf("opencl base kernels (%s): film_convert kernel not loaded", b.dev.Name)
	}

	kernel, target := b.filmConvertU8, task.RGBAByte
	if task.RGBAByte == nil {
		kernel, target = b.filmConvertF16, task.RGBAHalf
	}
	if target == nil {
		return fmt.Errorf("opencl base kernels (%s): film_convert called without an rgba target", b.dev.Name)
	}

	if err := kernel.SetOrderedArgs(filmConvertArgs(dataConst, target, tile.Buffer, tile, textureNames, registry)); err != nil {
		return err
	}

	_, err := kernel.Exec2D(0, 0, tile.W, tile.H, 0, 0)
	return err
}

// shaderArgs builds the fixed-order (data, input, output, textures...,
// shader_eval_type, shader_x, shader_w, offset, sample) argument list
// per device_opencl.cpp's shader().
func shaderArgs(task *DeviceTask, dataConst *Mem, textureNames []string, registry *BufferRegistry, sample int) []KernelArg {
	args := []KernelArg{MemArg(dataConst), MemArg(task.ShaderInput), MemArg(task.ShaderOutput)}
	for _, name := range textureNames {
		args = append(args, BufferArg(registry.TextureArgBuffer(name)))
	}
	return append(args,
		Int32Arg(int32(task.ShaderEvalType)),
		Int32Arg(int32(task.ShaderEval)),
		Int32Arg(int32(task.ShaderCount)),
		Int32Arg(0), // offset: SHADER tasks address ShaderInput/Output directly, not through a tile
		Int32Arg(int32(sample)),
	)
}

// shaderEvalBake is the threshold above which device_opencl.cpp routes
// a SHADER task to kernel_ocl_bake instead of kernel_ocl_shader.
const shaderEvalBake = 4

// Shader runs task.NumSamples evaluations of the shader or bake kernel
// (selected by task.ShaderEvalType), checking cancellation and calling
// task.UpdateProgress between samples, per device_opencl.cpp's shader().
func (b *baseKernels) Shader(task *DeviceTask, dataConst *Mem, textureNames []string, registry *BufferRegistry) error {
	if b.shader == nil {
		return fmt.Errorf("opencl base kernels (%s): shader kernel not loaded", b.dev.Name)
	}

	kernel := b.shader
	if task.ShaderEvalType >= shaderEvalBake {
		kernel = b.bake
	}

	for sample := 0; sample < task.NumSamples; sample++ {
		if task.cancelled() {
			break
		}

		if err := kernel.SetOrderedArgs(shaderArgs(task, dataConst, textureNames, registry, sample)); err != nil {
			return err
		}

		if _, err := kernel.Exec1D(0, task.ShaderCount, 0); err != nil {
			return err
		}

		if task.UpdateProgress != nil {
			task.UpdateProgress(nil, sample)
		}
	}

	return nil
}

// Close releases the base kernels and program.
func (b *baseKernels) Close() {
	for _, k := range []*Kernel{b.shader, b.bake, b.filmConvertU8, b.filmConvertF16} {
		if k != nil {
			k.Release()
		}
	}
	b.shader, b.bake, b.filmConvertU8, b.filmConvertF16 = nil, nil, nil, nil
}
