package device

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/hydroflame/gopencl/v1.2/cl"

	"github.com/achilleasa/go-pathtrace/log"
)

var deviceLogger = log.New("device")

type DeviceType uint8

// Supported device types.
const (
	CpuDevice   DeviceType = 1 << iota
	GpuDevice              = 1 << iota
	OtherDevice            = 1 << iota
	AllDevices             = 0xFF
)

func (dt DeviceType) String() string {
	switch dt {
	case CpuDevice:
		return "CPU"
	case GpuDevice:
		return "GPU"
	case OtherDevice:
		return "Other"
	}
	panic("opencl: unsupported device type")
}

// amdPlatformName is the platform-name string device_opencl.cpp checks
// verbatim to select split-kernel dispatch and to halve the reported
// allocatable memory (spec §4.3, §4.6, SPEC_FULL supplement 3).
const amdPlatformName = "AMD Accelerated Parallel Processing"

// DeviceInfo identifies a platform/device pair by a flat integer index
// across all platforms, matching spec §3's external DeviceInfo
// contract. Num is compared against signed device counts the same way
// the original does (SPEC_FULL open question: replicate, don't clamp,
// the signed/unsigned comparison).
type DeviceInfo struct {
	Num             int
	Platform        cl.PlatformID
	PlatformName    string
	Device          cl.DeviceId
	DeviceType      DeviceType
	Description     string
	AdvancedShading bool

	// Vendor and DriverVersion are CL_DEVICE_VENDOR and
	// CL_DRIVER_VERSION, queried per-device rather than per-platform so
	// DeviceFingerprint can tell apart two devices (or a driver update on
	// the same device) that share a platform name.
	Vendor        string
	DriverVersion string
}

// Device is the DeviceBase of spec §4.3: platform/device selection,
// context + command-queue ownership, the null-sentinel buffer used for
// unbound texture arguments, and the error-latching/version/build-flag
// logic every dispatch strategy shares.
type Device struct {
	Name string
	Id   cl.DeviceId
	Type DeviceType

	Info DeviceInfo

	compUnits  uint32
	clockSpeed uint32

	// Speed estimate in GFlops.
	Speed uint32

	// Opencl handles; allocated when device is initialized.
	ctx      *cl.Context
	cmdQueue cl.CommandQueue
	program  cl.Program

	// nullMem is the 1-byte sentinel buffer bound to texture kernel
	// arguments that have no matching texture, since the runtime
	// rejects a literal null argument (spec §4.3).
	nullMem *Buffer

	cache *ProgramCache
	slot  *Slot

	Errors ErrorSink

	buildOptions string
}

// A list of devices.
type DeviceList []Device

// Implements Stringer.
func (d Device) String() string {
	return fmt.Sprintf(
		"Name: %s\nType: %s\nSpecs: %d computation units, %d Mhz clock, %d GFlops approximate speed",
		d.Name,
		d.Type.String(),
		d.compUnits,
		d.clockSpeed,
		d.Speed,
	)
}

// NewDevice wraps a platform/device pair discovered via GetPlatformInfo
// or SelectDeviceByNum. The ProgramCache defaults to the process-wide
// singleton; pass a private cache only in tests that need isolation.
func NewDevice(info DeviceInfo, cache *ProgramCache) *Device {
	if cache == nil {
		cache = DefaultProgramCache()
	}
	return &Device{
		Name:  info.Description,
		Id:    info.Device,
		Type:  info.DeviceType,
		Info:  info,
		cache: cache,
	}
}

// BuildOptions returns the vendor-specific compiler defines plus any
// caller-supplied extra flags, matching
// opencl_kernel_build_options (spec §4.3). The returned string
// participates in the device fingerprint used by BinaryCache.
func (d *Device) BuildOptions(extra string, debugSource bool) string {
	var b strings.Builder

	switch {
	case strings.Contains(d.Info.PlatformName, "NVIDIA"):
		b.WriteString("-D__KERNEL_OPENCL_NVIDIA__ -cl-nv-maxrregcount=32 -cl-nv-verbose ")
	case strings.Contains(d.Info.PlatformName, "Apple"):
		b.WriteString("-D__KERNEL_OPENCL_APPLE__ ")
	case d.Info.PlatformName == amdPlatformName:
		b.WriteString("-D__KERNEL_OPENCL_AMD__ ")
	case strings.Contains(d.Info.PlatformName, "Intel") && d.Type == CpuDevice:
		b.WriteString("-D__KERNEL_OPENCL_INTEL_CPU__ ")
		if debugSource {
			b.WriteString("-g -s ")
		}
	}

	b.WriteString("-cl-fast-relaxed-math ")

	if debugSource {
		b.WriteString("-D__KERNEL_OPENCL_DEBUG__ ")
	}

	if extra != "" {
		b.WriteString(extra)
	}

	d.buildOptions = strings.TrimSpace(b.String())
	return d.buildOptions
}

// Init acquires (or creates) the process-wide cached context for this
// device's (platform, device) pair via ProgramCache, then creates a
// dedicated in-order command queue and the null-sentinel buffer. It
// does not compile any program: Megakernel and SplitKernel each own
// their own load_kernels with their own build options and binary-cache
// keys.
func (d *Device) Init() error {
	if d.ctx != nil {
		return nil
	}

	d.slot = d.cache.Slot(d.Info.Platform, d.Info.Device)

	ctx, mustProduce := d.slot.GetContext()
	if mustProduce {
		var errCode cl.ErrorCode
		newCtx := cl.CreateContext(nil, 1, &d.Id, nil, nil, (*int32)(&errCode))
		if errCode != cl.SUCCESS {
			d.slot.AbortContext()
			err := fmt.Errorf("opencl device (%s): could not create opencl context (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
			d.Errors.Latch(err)
			return err
		}
		d.slot.StoreContext(newCtx)
		ctx = newCtx
	}
	d.ctx = ctx

	var errCode cl.ErrorCode
	d.cmdQueue = cl.CreateCommandQueue(*d.ctx, d.Id, 0, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		err := fmt.Errorf("opencl device (%s): could not create command queue (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
		d.Errors.Latch(err)
		return err
	}

	d.nullMem = d.Buffer("__null")
	if err := d.nullMem.Allocate(1, cl.MEM_READ_ONLY); err != nil {
		d.Errors.Latch(err)
		return err
	}

	deviceLogger.Infof("initialized device %s (platform %s)", d.Name, d.Info.PlatformName)
	return nil
}

// NullMem returns the device's 1-byte sentinel buffer.
func (d *Device) NullMem() *Buffer {
	return d.nullMem
}

// CheckVersions parses the "OpenCL %d.%d" platform version and
// "OpenCL C %d.%d" device version strings and requires major>=1 and
// minor>=1 for both, per spec §4.3. A parse failure or a version below
// the minimum fails with a descriptive error; load_kernels callers must
// treat that as fatal, not as a fallback trigger.
func CheckVersions(platformVersion, deviceCVersion string) error {
	pMajor, pMinor, err := parseVersion(platformVersion, "OpenCL")
	if err != nil {
		return err
	}
	if pMajor < 1 || (pMajor == 1 && pMinor < 1) {
		return fmt.Errorf("opencl device: platform version %q is below the minimum required 1.1", platformVersion)
	}

	cMajor, cMinor, err := parseVersion(deviceCVersion, "OpenCL C")
	if err != nil {
		return err
	}
	if cMajor < 1 || (cMajor == 1 && cMinor < 1) {
		return fmt.Errorf("opencl device: OpenCL C version %q is below the minimum required 1.1", deviceCVersion)
	}

	return nil
}

func parseVersion(version, prefix string) (major, minor int, err error) {
	_, scanErr := fmt.Sscanf(version, prefix+" %d.%d", &major, &minor)
	if scanErr != nil {
		return 0, 0, fmt.Errorf("opencl device: could not parse version string %q: %w", version, scanErr)
	}
	return major, minor, nil
}

// Shut down the device.
func (d *Device) Close() {
	if d.nullMem != nil {
		d.nullMem.Release()
		d.nullMem = nil
	}

	if d.program != nil {
		cl.ReleaseProgram(d.program)
		d.program = nil
	}

	if d.cmdQueue != nil {
		cl.ReleaseCommandQueue(d.cmdQueue)
		d.cmdQueue = nil
	}

	// The context is owned by the ProgramCache slot, not by this
	// device: releasing it here would break other devices sharing the
	// same (platform, device) slot. ProgramCache.Flush is the only
	// path that releases cached contexts.
	d.ctx = nil
}

// SetMainProgram binds program as d.program, the single compiled
// program Kernel looks kernels up in. Used by collaborators that load
// one fixed kernel set for the device's whole lifetime, rather than
// juggling several programs the way SplitKernel does.
func (d *Device) SetMainProgram(program cl.Program) {
	if d.program != nil {
		cl.ReleaseProgram(d.program)
	}
	d.program = program
}

// Load kernel by name.
func (d *Device) Kernel(name string) (*Kernel, error) {
	var errCode cl.ErrorCode
	kernelHandle := cl.CreateKernel(
		d.program,
		cl.Str(name+"\x00"),
		(*int32)(&errCode),
	)

	if errCode != cl.SUCCESS {
		return nil, fmt.Errorf("opencl device (%s): could not load kernel %s (error: %s; code %d)", d.Name, name, ErrorName(errCode), errCode)
	}

	return &Kernel{
		device:       d,
		kernelHandle: kernelHandle,
		name:         name,
	}, nil
}

// KernelFromProgram loads a named kernel out of an explicit program
// handle rather than d.program, used by SplitKernel which juggles
// eleven distinct programs instead of one.
func (d *Device) KernelFromProgram(program cl.Program, name string) (*Kernel, error) {
	var errCode cl.ErrorCode
	kernelHandle := cl.CreateKernel(program, cl.Str(name+"\x00"), (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return nil, fmt.Errorf("opencl device (%s): could not load kernel %s (error: %s; code %d)", d.Name, name, ErrorName(errCode), errCode)
	}
	return &Kernel{device: d, kernelHandle: kernelHandle, name: name}, nil
}

// Create an empty buffer.
func (d *Device) Buffer(name string) *Buffer {
	return &Buffer{
		device: d,
		name:   name,
	}
}

// Detect device speed.
func (d *Device) detectSpeed() error {
	// Calculate theoretical device speed as: compute units * 2ops/cycle * clock speed
	errCode := cl.GetDeviceInfo(d.Id, cl.DEVICE_MAX_COMPUTE_UNITS, 4, unsafe.Pointer(&d.compUnits), nil)
	if errCode != cl.SUCCESS {
		return fmt.Errorf("opencl device (%s): could not query MAX_COMPUTE_UNITS (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}
	errCode = cl.GetDeviceInfo(d.Id, cl.DEVICE_MAX_CLOCK_FREQUENCY, 4, unsafe.Pointer(&d.clockSpeed), nil)
	if errCode != cl.SUCCESS {
		return fmt.Errorf("opencl device (%s): could not query MAX_CLOCK_FREQUENCY (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}
	d.Speed = d.compUnits * d.clockSpeed / 1000

	return nil
}

// maxWorkItemSizes queries CL_DEVICE_MAX_WORK_ITEM_SIZES for the first
// two dimensions, used by the shared dispatch-geometry calculation.
func (d *Device) maxWorkItemSizes() (x, y uint64, err error) {
	sizes := make([]uint64, 3)
	errCode := cl.GetDeviceInfo(d.Id, cl.DEVICE_MAX_WORK_ITEM_SIZES, uint64(len(sizes))*8, unsafe.Pointer(&sizes[0]), nil)
	if errCode != cl.SUCCESS {
		return 0, 0, fmt.Errorf("opencl device (%s): could not query MAX_WORK_ITEM_SIZES (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}
	return sizes[0], sizes[1], nil
}

// maxWorkGroupSize queries CL_KERNEL_WORK_GROUP_SIZE for k.
func (d *Device) maxWorkGroupSize(k *Kernel) (uint64, error) {
	var wg uint64
	errCode := cl.GetKernelWorkGroupInfo(k.kernelHandle, d.Id, cl.KERNEL_WORK_GROUP_SIZE, 8, unsafe.Pointer(&wg), nil)
	if errCode != cl.SUCCESS {
		return 0, fmt.Errorf("opencl device (%s): could not query KERNEL_WORK_GROUP_SIZE (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}
	return wg, nil
}

// DispatchGeometry implements spec §4.3's shared local/global work-size
// selection for the shader/bake/film-convert kernel family:
// local = (floor(sqrt(workgroup_size)), floor(sqrt(workgroup_size)))
// clamped on the second dimension to the device's max, with the first
// dimension rescaled to preserve the product; global is each requested
// dimension rounded up to a multiple of the matching local dimension.
func (d *Device) DispatchGeometry(k *Kernel, requestedW, requestedH int) (localW, localH, globalW, globalH int, err error) {
	wg, err := d.maxWorkGroupSize(k)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	maxX, maxY, err := d.maxWorkItemSizes()
	if err != nil {
		return 0, 0, 0, 0, err
	}

	side := isqrt(wg)
	lw, lh := side, side
	if uint64(lh) > maxY {
		lh = int(maxY)
		if lh == 0 {
			lh = 1
		}
		lw = int(wg) / lh
	}
	if uint64(lw) > maxX {
		lw = int(maxX)
	}
	if lw == 0 {
		lw = 1
	}
	if lh == 0 {
		lh = 1
	}

	gw := roundUpMultiple(requestedW, lw)
	gh := roundUpMultiple(requestedH, lh)

	return lw, lh, gw, gh, nil
}

// isqrt returns floor(sqrt(n)) for n >= 0.
func isqrt(n uint64) int {
	if n == 0 {
		return 0
	}
	x := n
	for {
		next := (x + n/x) / 2
		if next >= x {
			break
		}
		x = next
	}
	return int(x)
}

// roundUpMultiple rounds v up to the next multiple of m (m > 0).
func roundUpMultiple(v, m int) int {
	if m <= 0 {
		return v
	}
	if v%m == 0 {
		return v
	}
	return ((v / m) + 1) * m
}

// Return a textual description of an opencl error code.
func ErrorName(errCode cl.ErrorCode) string {
	switch errCode {
	case 0:
		return "SUCCESS"
	case -1:
		return "DEVICE_NOT_FOUND"
	case -2:
		return "DEVICE_NOT_AVAILABLE"
	case -3:
		return "COMPILER_NOT_AVAILABLE"
	case -4:
		return "MEM_OBJECT_ALLOCATION_FAILURE"
	case -5:
		return "OUT_OF_RESOURCES"
	case -6:
		return "OUT_OF_HOST_MEMORY"
	case -7:
		return "PROFILING_INFO_NOT_AVAILABLE"
	case -8:
		return "MEM_COPY_OVERLAP"
	case -9:
		return "IMAGE_FORMAT_MISMATCH"
	case -10:
		return "IMAGE_FORMAT_NOT_SUPPORTED"
	case -11:
		return "BUILD_PROGRAM_FAILURE"
	case -12:
		return "MAP_FAILURE"
	case -30:
		return "INVALID_VALUE"
	case -31:
		return "INVALID_DEVICE_TYPE"
	case -32:
		return "INVALID_PLATFORM"
	case -33:
		return "INVALID_DEVICE"
	case -34:
		return "INVALID_CONTEXT"
	case -35:
		return "INVALID_QUEUE_PROPERTIES"
	case -36:
		return "INVALID_COMMAND_QUEUE"
	case -37:
		return "INVALID_HOST_PTR"
	case -38:
		return "INVALID_MEM_OBJECT"
	case -39:
		return "INVALID_IMAGE_FORMAT_DESCRIPTOR"
	case -40:
		return "INVALID_IMAGE_SIZE"
	case -41:
		return "INVALID_SAMPLER"
	case -42:
		return "INVALID_BINARY"
	case -43:
		return "INVALID_BUILD_OPTIONS"
	case -44:
		return "INVALID_PROGRAM"
	case -45:
		return "INVALID_PROGRAM_EXECUTABLE"
	case -46:
		return "INVALID_KERNEL_NAME"
	case -47:
		return "INVALID_KERNEL_DEFINITION"
	case -48:
		return "INVALID_KERNEL"
	case -49:
		return "INVALID_ARG_INDEX"
	case -50:
		return "INVALID_ARG_VALUE"
	case -51:
		return "INVALID_ARG_SIZE"
	case -52:
		return "INVALID_KERNEL_ARGS"
	case -53:
		return "INVALID_WORK_DIMENSION"
	case -54:
		return "INVALID_WORK_GROUP_SIZE"
	case -55:
		return "INVALID_WORK_ITEM_SIZE"
	case -56:
		return "INVALID_GLOBAL_OFFSET"
	case -57:
		return "INVALID_EVENT_WAIT_LIST"
	case -58:
		return "INVALID_EVENT"
	case -59:
		return "INVALID_OPERATION"
	case -60:
		return "INVALID_GL_OBJECT"
	case -61:
		return "INVALID_BUFFER_SIZE"
	case -62:
		return "INVALID_MIP_LEVEL"
	case -63:
		return "INVALID_GLOBAL_WORK_SIZE"
	default:
		return fmt.Sprintf("unknown error code %d", errCode)
	}
}
