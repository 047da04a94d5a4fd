package cmd

import (
	"bytes"
	"fmt"

	"github.com/achilleasa/go-pathtrace/tracer/opencl/device"
	"github.com/urfave/cli"
)

// List available opencl devices.
func ListDevices(ctx *cli.Context) error {
	var storage []byte
	buf := bytes.NewBuffer(storage)

	platforms, err := device.GetPlatformInfo()
	if err != nil {
		return err
	}

	buf.WriteString(fmt.Sprintf("\nSystem provides %d opencl platform(s):\n\n", len(platforms)))
	for pIdx, platformInfo := range platforms {
		buf.WriteString(fmt.Sprintf("[Platform %02d]\n  Name    %s\n  Version %s\n  Profile %s\n  Devices %d\n\n", pIdx, platformInfo.Name, platformInfo.Version, platformInfo.Profile, len(platformInfo.Devices)))
		for dIdx, d := range platformInfo.Devices {
			buf.WriteString(fmt.Sprintf("  [Device %02d]\n    Name  %s\n    Type  %s\n    Speed %3.1f\n\n", dIdx, d.Name, d.Type, d.Speed))
		}
	}

	logger.Print(buf.String())
	return nil
}
