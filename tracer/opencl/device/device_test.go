package device

import (
	"strings"
	"testing"

	"github.com/hydroflame/gopencl/v1.2/cl"
)

// testKernelSource is a tiny self-contained program used by every test
// in this package that needs a real compiled kernel: it avoids
// depending on an external .cl fixture file.
const testKernelSource = `
__kernel void square(__global int *in, __global int *out, unsigned int n) {
	int i = get_global_id(0);
	if (i < n) {
		out[i] = in[i] * in[i];
	}
}

__kernel void mapBlock(__global int *in, __global int *out, unsigned int n) {
	int i = get_global_id(0) + get_global_id(1) * get_global_size(0);
	if (i < n) {
		out[i] = in[i];
	}
}
`

func TestSelectDevices(t *testing.T) {
	devList, err := SelectDevices(CpuDevice, "CPU")
	if err != nil {
		t.Fatal(err)
	}
	if len(devList) != 1 {
		t.Fatalf("expected to get 1 CPU opencl device; got %d; check that openCL drivers are installed", len(devList))
	}
}

func TestDeviceInit(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	if !strings.Contains(dev.Name, "CPU") {
		t.Fatalf("expected CPU device name '%s' to contain 'CPU'", dev.Name)
	}

	if dev.Type.String() != "CPU" {
		t.Fatalf("expected device type to be CpuDevice; got %s", dev.Type.String())
	}
}

func TestKernelErrors(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	program, err := dev.CompileProgramFromSource(testKernelSource, dev.BuildOptions("", false))
	if err != nil {
		t.Fatal(err)
	}
	defer cl.ReleaseProgram(program)

	_, err = dev.KernelFromProgram(program, "no_such_kernel")
	if err == nil {
		t.Fatal("expected to get an error while trying to load an unknown kernel")
	}
}

// createCpuTestDevice selects the first CPU device and initializes it
// (context, command queue, null-sentinel buffer). It does not compile
// any program: tests that need one do so explicitly.
func createCpuTestDevice() (*Device, error) {
	devList, err := SelectDevices(CpuDevice, "CPU")
	if err != nil {
		return nil, err
	}
	if len(devList) == 0 {
		return nil, err
	}

	dev := devList[0]
	if err := dev.Init(); err != nil {
		return nil, err
	}
	return dev, nil
}

// compileTestKernel compiles testKernelSource on dev and loads name out
// of it.
func compileTestKernel(dev *Device, name string) (*Kernel, cl.Program, error) {
	program, err := dev.CompileProgramFromSource(testKernelSource, dev.BuildOptions("", false))
	if err != nil {
		return nil, nil, err
	}
	kernel, err := dev.KernelFromProgram(program, name)
	if err != nil {
		cl.ReleaseProgram(program)
		return nil, nil, err
	}
	return kernel, program, nil
}
