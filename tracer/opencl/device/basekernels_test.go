package device

import (
	"os"
	"path/filepath"
	"testing"
)

// testBaseKernelSource is a tiny stand-in for the real shader/bake/
// film_convert kernels, matching filmConvertArgs/shaderArgs' fixed
// argument order for a registry with no registered textures.
const testBaseKernelSource = `
__kernel void kernel_ocl_shader(__global float *data, __global float *input, __global float *output,
	int shader_eval_type, int shader_x, int shader_w, int offset, int sample) {
	int i = get_global_id(0);
	if (i < shader_w) {
		output[i] = input[i] + shader_eval_type + sample;
	}
}

__kernel void kernel_ocl_bake(__global float *data, __global float *input, __global float *output,
	int shader_eval_type, int shader_x, int shader_w, int offset, int sample) {
	int i = get_global_id(0);
	if (i < shader_w) {
		output[i] = input[i] * 2.0f;
	}
}

__kernel void kernel_ocl_convert_to_byte(__global float *data, __global uchar *rgba, __global float *buffer,
	float sample_scale, int x, int y, int w, int h, int offset, int stride) {
	int i = get_global_id(0) + get_global_id(1) * w;
	if (i < w * h) {
		rgba[i] = (uchar)(buffer[i] * sample_scale * 255.0f);
	}
}

__kernel void kernel_ocl_convert_to_half_float(__global float *data, __global uchar *rgba, __global float *buffer,
	float sample_scale, int x, int y, int w, int h, int offset, int stride) {
	int i = get_global_id(0) + get_global_id(1) * w;
	if (i < w * h) {
		rgba[i] = (uchar)(buffer[i] * sample_scale * 255.0f);
	}
}
`

func writeBaseKernelSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "base.cl")
	if err := os.WriteFile(path, []byte(testBaseKernelSource), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBaseKernelsLoadIsANoopWithoutSourcePaths(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	b := newBaseKernels(dev, NewBinaryCache(t.TempDir()))
	if err := b.Load(false); err != nil {
		t.Fatal(err)
	}
	if b.shader != nil {
		t.Fatal("expected Load without source paths to leave the base kernels unloaded")
	}
}

func TestBaseKernelsFilmConvertAndShader(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	registry := NewBufferRegistry(dev, NoopStats{})
	defer registry.Close()

	b := newBaseKernels(dev, NewBinaryCache(t.TempDir()))
	b.SetSourcePaths(writeBaseKernelSource(t))
	if err := b.Load(false); err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.shader == nil || b.bake == nil || b.filmConvertU8 == nil || b.filmConvertF16 == nil {
		t.Fatal("expected Load to resolve all four base kernels")
	}

	// A second Load call must be a no-op.
	shaderBefore := b.shader
	if err := b.Load(false); err != nil {
		t.Fatal(err)
	}
	if b.shader != shaderBefore {
		t.Fatal("expected a second Load call to leave the already-loaded kernels untouched")
	}

	dataConst, err := registry.MemAlloc("data", MemReadOnly, 64)
	if err != nil {
		t.Fatal(err)
	}

	const n = 16
	buffer, err := registry.MemAlloc("buffer", MemReadWrite, n*sizeofFloat)
	if err != nil {
		t.Fatal(err)
	}
	rgba, err := registry.MemAlloc("rgba", MemWriteOnly, n*sizeofByte)
	if err != nil {
		t.Fatal(err)
	}

	tile := &RenderTile{W: 4, H: 4, Sample: 0, Buffer: buffer}
	task := &DeviceTask{RGBAByte: rgba}
	if err := b.FilmConvert(task, tile, dataConst, nil, registry); err != nil {
		t.Fatal(err)
	}

	shaderInput, err := registry.MemAlloc("shader_input", MemReadOnly, n*sizeofFloat)
	if err != nil {
		t.Fatal(err)
	}
	shaderOutput, err := registry.MemAlloc("shader_output", MemReadWrite, n*sizeofFloat)
	if err != nil {
		t.Fatal(err)
	}

	shaderTask := &DeviceTask{
		ShaderInput:  shaderInput,
		ShaderOutput: shaderOutput,
		ShaderCount:  n,
		NumSamples:   2,
	}
	if err := b.Shader(shaderTask, dataConst, nil, registry); err != nil {
		t.Fatal(err)
	}

	// ShaderEvalType >= shaderEvalBake must route to the bake kernel
	// instead of shader; both are loaded, so this should succeed too.
	bakeTask := &DeviceTask{
		ShaderInput:    shaderInput,
		ShaderOutput:   shaderOutput,
		ShaderCount:    n,
		NumSamples:     1,
		ShaderEvalType: shaderEvalBake,
	}
	if err := b.Shader(bakeTask, dataConst, nil, registry); err != nil {
		t.Fatal(err)
	}
}

func TestBaseKernelsFilmConvertWithoutTargetErrors(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	registry := NewBufferRegistry(dev, NoopStats{})
	defer registry.Close()

	b := newBaseKernels(dev, NewBinaryCache(t.TempDir()))
	b.SetSourcePaths(writeBaseKernelSource(t))
	if err := b.Load(false); err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	dataConst, err := registry.MemAlloc("data", MemReadOnly, 4)
	if err != nil {
		t.Fatal(err)
	}

	err = b.FilmConvert(&DeviceTask{}, &RenderTile{W: 1, H: 1}, dataConst, nil, registry)
	if err == nil {
		t.Fatal("expected an error when neither RGBAByte nor RGBAHalf is set")
	}
}

func TestBaseKernelsShaderCancellation(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	registry := NewBufferRegistry(dev, NoopStats{})
	defer registry.Close()

	b := newBaseKernels(dev, NewBinaryCache(t.TempDir()))
	b.SetSourcePaths(writeBaseKernelSource(t))
	if err := b.Load(false); err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	dataConst, err := registry.MemAlloc("data", MemReadOnly, 4)
	if err != nil {
		t.Fatal(err)
	}
	input, err := registry.MemAlloc("in", MemReadOnly, 4*sizeofFloat)
	if err != nil {
		t.Fatal(err)
	}
	output, err := registry.MemAlloc("out", MemReadWrite, 4*sizeofFloat)
	if err != nil {
		t.Fatal(err)
	}

	progress := 0
	task := &DeviceTask{
		ShaderInput:  input,
		ShaderOutput: output,
		ShaderCount:  4,
		NumSamples:   10,
		GetCancel:    func() bool { return true },
		UpdateProgress: func(*RenderTile, int) {
			progress++
		},
	}
	if err := b.Shader(task, dataConst, nil, registry); err != nil {
		t.Fatal(err)
	}
	if progress != 0 {
		t.Fatalf("expected an already-cancelled task to dispatch zero samples; got %d", progress)
	}
}
