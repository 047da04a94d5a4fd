package device

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unsafe"

	"github.com/hydroflame/gopencl/v1.2/cl"
)

const (
	platformBufferSize = 100
	deviceBufferSize   = 100
	dataBufferSize     = 1024
)

var indentRegex = regexp.MustCompile("(?m)^")

// Information about a system's opencl platform and supported devices.
type PlatformInfo struct {
	Profile    string
	Version    string
	Name       string
	Vendor     string
	Extensions string
	Devices    []*Device
}

func (pl PlatformInfo) String() string {
	var buf bytes.Buffer

	buf.WriteString(
		fmt.Sprintf(
			"Version:    %s\nName:       %s\nVendor:     %s\nExtensions: %s\nDevices:\n",
			pl.Version,
			pl.Name,
			pl.Vendor,
			pl.Extensions,
		),
	)

	for dIdx, d := range pl.Devices {
		buf.WriteString(fmt.Sprintf("  Device %02d:\n", dIdx))
		buf.WriteString(indentRegex.ReplaceAllString(d.String(), "    "))
		buf.WriteString("\n\n")
	}

	return buf.String()
}

// Get information about supported opencl platforms and devices.
func GetPlatformInfo() ([]PlatformInfo, error) {

	pids := make([]cl.PlatformID, platformBufferSize)
	data := make([]byte, dataBufferSize)
	dataLen := uint64(0)

	devices := make([]cl.DeviceId, deviceBufferSize)
	deviceCount := uint32(0)

	pidCount := uint32(0)
	cl.GetPlatformIDs(uint32(len(pids)), &pids[0], &pidCount)

	infoList := make([]PlatformInfo, int(pidCount))
	for pIdx := 0; pIdx < int(pidCount); pIdx++ {
		infoList[pIdx].Devices = make([]*Device, 0)

		dataLen = 0
		cl.GetPlatformInfo(pids[pIdx], cl.PLATFORM_PROFILE, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
		infoList[pIdx].Profile = string(data[0 : dataLen-1])

		cl.GetPlatformInfo(pids[pIdx], cl.PLATFORM_VERSION, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
		infoList[pIdx].Version = string(data[0 : dataLen-1])

		cl.GetPlatformInfo(pids[pIdx], cl.PLATFORM_NAME, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
		infoList[pIdx].Name = string(data[0 : dataLen-1])

		cl.GetPlatformInfo(pids[pIdx], cl.PLATFORM_VENDOR, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
		infoList[pIdx].Vendor = string(data[0 : dataLen-1])

		cl.GetPlatformInfo(pids[pIdx], cl.PLATFORM_EXTENSIONS, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
		infoList[pIdx].Extensions = string(data[0 : dataLen-1])

		// Enumerate CPU devices
		deviceCount = 0
		cl.GetDeviceIDs(pids[pIdx], cl.DEVICE_TYPE_CPU, uint32(deviceBufferSize), &devices[0], &deviceCount)
		for dIdx := 0; dIdx < int(deviceCount); dIdx++ {
			cl.GetDeviceInfo(devices[dIdx], cl.DEVICE_NAME, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
			name := string(data[0 : dataLen-1])
			vendor, driverVersion := deviceIdentity(devices[dIdx], data)
			infoList[pIdx].Devices = append(
				infoList[pIdx].Devices,
				NewDevice(DeviceInfo{
					Platform:      pids[pIdx],
					PlatformName:  infoList[pIdx].Name,
					Device:        devices[dIdx],
					DeviceType:    CpuDevice,
					Description:   name,
					Vendor:        vendor,
					DriverVersion: driverVersion,
				}, nil),
			)
		}

		// Enumerate GPU devices
		deviceCount = 0
		cl.GetDeviceIDs(pids[pIdx], cl.DEVICE_TYPE_GPU, uint32(deviceBufferSize), &devices[0], &deviceCount)
		for dIdx := 0; dIdx < int(deviceCount); dIdx++ {
			cl.GetDeviceInfo(devices[dIdx], cl.DEVICE_NAME, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
			name := string(data[0 : dataLen-1])
			vendor, driverVersion := deviceIdentity(devices[dIdx], data)
			infoList[pIdx].Devices = append(
				infoList[pIdx].Devices,
				NewDevice(DeviceInfo{
					Platform:      pids[pIdx],
					PlatformName:  infoList[pIdx].Name,
					Device:        devices[dIdx],
					DeviceType:    GpuDevice,
					Description:   name,
					Vendor:        vendor,
					DriverVersion: driverVersion,
				}, nil),
			)
		}

		// Enumerate speed for all platform devices
		for _, dev := range infoList[pIdx].Devices {
			err := dev.detectSpeed()
			if err != nil {
				return nil, err
			}
		}
	}

	return infoList, nil
}

// deviceIdentity queries CL_DEVICE_VENDOR and CL_DRIVER_VERSION for id.
// Both feed DeviceFingerprint alongside the platform name and device
// name so two devices (or a driver update on the same device) sharing a
// platform name still hash to distinct binary-cache entries.
func deviceIdentity(id cl.DeviceId, scratch []byte) (vendor, driverVersion string) {
	var dataLen uint64

	cl.GetDeviceInfo(id, cl.DEVICE_VENDOR, uint64(len(scratch)), unsafe.Pointer(&scratch[0]), &dataLen)
	if dataLen > 0 {
		vendor = string(scratch[0 : dataLen-1])
	}

	cl.GetDeviceInfo(id, cl.DRIVER_VERSION, uint64(len(scratch)), unsafe.Pointer(&scratch[0]), &dataLen)
	if dataLen > 0 {
		driverVersion = string(scratch[0 : dataLen-1])
	}

	return vendor, driverVersion
}

// Scan all available opencl platforms and select devices that match the given query.
func SelectDevices(typeMask DeviceType, matchName string) ([]*Device, error) {
	platforms, err := GetPlatformInfo()
	if err != nil {
		return nil, err
	}
	list := make([]*Device, 0)
	for _, p := range platforms {
		for _, d := range p.Devices {
			// Match type
			if d.Type&typeMask != d.Type {
				continue
			}

			// Match name
			if matchName != "" && !strings.Contains(d.Name, matchName) {
				continue
			}

			list = append(list, d)
		}
	}
	return list, nil
}

// EnumerateDeviceInfo discovers every platform/device pair and assigns
// each a flat Num index across all platforms, in platform-then-device
// order, matching device_opencl.cpp's device_opencl_info. This is the
// external bootstrap collaborator spec §1 names as out of core scope;
// it is kept so SelectDeviceByNum and the cmd/list-devices CLI surface
// have something concrete to call.
func EnumerateDeviceInfo(typeMask DeviceType) ([]DeviceInfo, error) {
	pids := make([]cl.PlatformID, platformBufferSize)
	data := make([]byte, dataBufferSize)
	var dataLen uint64

	pidCount := uint32(0)
	cl.GetPlatformIDs(uint32(len(pids)), &pids[0], &pidCount)

	var infos []DeviceInfo
	num := 0

	devices := make([]cl.DeviceId, deviceBufferSize)

	for pIdx := 0; pIdx < int(pidCount); pIdx++ {
		cl.GetPlatformInfo(pids[pIdx], cl.PLATFORM_NAME, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
		platformName := string(data[0 : dataLen-1])

		for _, clType := range typesFor(typeMask) {
			deviceCount := uint32(0)
			if cl.GetDeviceIDs(pids[pIdx], clType.clType, uint32(deviceBufferSize), &devices[0], &deviceCount) != cl.SUCCESS || deviceCount == 0 {
				continue
			}

			for dIdx := 0; dIdx < int(deviceCount); dIdx++ {
				cl.GetDeviceInfo(devices[dIdx], cl.DEVICE_NAME, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
				name := string(data[0 : dataLen-1])
				vendor, driverVersion := deviceIdentity(devices[dIdx], data)

				infos = append(infos, DeviceInfo{
					Num:             num,
					Platform:        pids[pIdx],
					PlatformName:    platformName,
					Device:          devices[dIdx],
					DeviceType:      clType.goType,
					Description:     name,
					AdvancedShading: platformName != "Intel(R) OpenCL",
					Vendor:          vendor,
					DriverVersion:   driverVersion,
				})
				num++
			}
		}
	}

	return infos, nil
}

type deviceTypePair struct {
	clType cl.DeviceType
	goType DeviceType
}

func typesFor(mask DeviceType) []deviceTypePair {
	all := []deviceTypePair{
		{cl.DEVICE_TYPE_CPU, CpuDevice},
		{cl.DEVICE_TYPE_GPU, GpuDevice},
	}
	out := make([]deviceTypePair, 0, len(all))
	for _, t := range all {
		if t.goType&mask == t.goType {
			out = append(out, t)
		}
	}
	return out
}

// SelectDeviceByNum replicates the original constructor's flat-index
// platform/device selection (spec §4.3): iterate platforms in order,
// decrementing the remaining index by each platform's matching device
// count, stopping on the platform that contains index num.
func SelectDeviceByNum(num int, typeMask DeviceType) (DeviceInfo, error) {
	infos, err := EnumerateDeviceInfo(typeMask)
	if err != nil {
		return DeviceInfo{}, err
	}
	if num < 0 || num >= len(infos) {
		return DeviceInfo{}, fmt.Errorf("opencl device: no device with flat index %d (found %d devices)", num, len(infos))
	}
	return infos[num], nil
}
