package device

import (
	"fmt"
	"unsafe"

	"github.com/hydroflame/gopencl/v1.2/cl"
)

// maxBuildLogSize bounds the buffer used to read back a failed build's
// log; the teacher's Device.Init used the same fixed-size scratch
// buffer for this.
const maxBuildLogSize = 120000

// CompileProgramFromSource compiles source (a full kernel source
// string, includes already resolved) with the given build-options
// string and returns the built program. On a build failure the full
// build log is embedded in the returned error, matching spec §4.3's
// call for full build-log error reporting.
func (d *Device) CompileProgramFromSource(source, buildOptions string) (cl.Program, error) {
	var errCode cl.ErrorCode

	progSrc := cl.Str(source + "\x00")
	program := cl.CreateProgramWithSource(*d.ctx, 1, &progSrc, nil, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return nil, fmt.Errorf("opencl device (%s): could not create program (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}

	errCode = cl.BuildProgram(program, 1, &d.Id, cl.Str(buildOptions+"\x00"), nil, nil)
	if errCode != cl.SUCCESS {
		return nil, d.buildError(program, errCode)
	}

	return program, nil
}

// LoadProgramFromBinary attempts to create and build a program from a
// previously compiled binary. Any failure (malformed binary, stale
// binary rejected by the driver) is reported as an error; the caller
// falls back to CompileProgramFromSource, matching spec §4.2's "corrupt
// binaries are cache misses" contract.
func (d *Device) LoadProgramFromBinary(binary []byte, buildOptions string) (cl.Program, error) {
	var errCode cl.ErrorCode
	var binaryStatus int32

	length := uint64(len(binary))
	binPtr := unsafe.Pointer(&binary[0])

	program := cl.CreateProgramWithBinary(*d.ctx, 1, &d.Id, &length, &binPtr, &binaryStatus, (*int32)(&errCode))
	if errCode != cl.SUCCESS || binaryStatus != int32(cl.SUCCESS) {
		return nil, fmt.Errorf("opencl device (%s): could not create program from binary (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}

	errCode = cl.BuildProgram(program, 1, &d.Id, cl.Str(buildOptions+"\x00"), nil, nil)
	if errCode != cl.SUCCESS {
		return nil, d.buildError(program, errCode)
	}

	return program, nil
}

// ProgramBinary extracts the compiled binary for program so it can be
// written to the BinaryCache.
func (d *Device) ProgramBinary(program cl.Program) ([]byte, error) {
	var size uint64
	errCode := cl.GetProgramInfo(program, cl.PROGRAM_BINARY_SIZES, 8, unsafe.Pointer(&size), nil)
	if errCode != cl.SUCCESS {
		return nil, fmt.Errorf("opencl device (%s): could not query PROGRAM_BINARY_SIZES (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}
	if size == 0 {
		return nil, fmt.Errorf("opencl device (%s): compiled program reported zero-length binary", d.Name)
	}

	binary := make([]byte, size)
	binPtr := unsafe.Pointer(&binary[0])
	errCode = cl.GetProgramInfo(program, cl.PROGRAM_BINARIES, 8, unsafe.Pointer(&binPtr), nil)
	if errCode != cl.SUCCESS {
		return nil, fmt.Errorf("opencl device (%s): could not read PROGRAM_BINARIES (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}

	return binary, nil
}

func (d *Device) buildError(program cl.Program, errCode cl.ErrorCode) error {
	data := make([]byte, maxBuildLogSize)
	var dataLen uint64
	cl.GetProgramBuildInfo(program, d.Id, cl.PROGRAM_BUILD_LOG, uint64(len(data)), unsafe.Pointer(&data[0]), &dataLen)

	logTail := ""
	if dataLen > 0 {
		logTail = string(data[0 : dataLen-1])
	}
	return fmt.Errorf("opencl device (%s): could not build program (error: %s; code %d):\n%s", d.Name, ErrorName(errCode), errCode, logTail)
}
