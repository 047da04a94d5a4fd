package device

import (
	"os"
	"testing"
)

func TestSelectStrategy(t *testing.T) {
	os.Unsetenv(envSplitKernelTest)

	cases := []struct {
		name         string
		platformName string
		deviceType   DeviceType
		probeOK      bool
		want         bool
	}{
		{"failed probe always megakernel", amdPlatformName, GpuDevice, false, false},
		{"amd gpu selects split kernel", amdPlatformName, GpuDevice, true, true},
		{"amd cpu stays megakernel", amdPlatformName, CpuDevice, true, false},
		{"non-amd gpu stays megakernel", "NVIDIA CUDA", GpuDevice, true, false},
		{"non-amd cpu stays megakernel", "Intel(R) OpenCL", CpuDevice, true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SelectStrategy(tc.platformName, tc.deviceType, tc.probeOK); got != tc.want {
				t.Fatalf("SelectStrategy(%q, %v, %v) = %v, want %v", tc.platformName, tc.deviceType, tc.probeOK, got, tc.want)
			}
		})
	}
}

func TestSelectStrategyEnvOverrideForcesSplitKernel(t *testing.T) {
	os.Setenv(envSplitKernelTest, "1")
	defer os.Unsetenv(envSplitKernelTest)

	if !SelectStrategy("NVIDIA CUDA", GpuDevice, true) {
		t.Fatal("expected the env override to force split-kernel dispatch regardless of platform/device")
	}
	if SelectStrategy("NVIDIA CUDA", GpuDevice, false) {
		t.Fatal("expected a failed probe to still win over the env override")
	}
}
