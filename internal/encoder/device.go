package encoder

import (
	"fmt"
	"os"
	"strings"
)

// Device selects where a model runs
type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// ResolveDevice turns a requested device into a concrete one.
// It is called once at startup; the result is passed to model constructors.
// "auto" picks cuda when CUDA_VISIBLE_DEVICES names at least one device.
func ResolveDevice(requested string) (Device, error) {
	switch Device(strings.ToLower(strings.TrimSpace(requested))) {
	case "", DeviceAuto:
		visible := strings.TrimSpace(os.Getenv("CUDA_VISIBLE_DEVICES"))
		if visible != "" && visible != "-1" {
			return DeviceCUDA, nil
		}
		return DeviceCPU, nil
	case DeviceCPU:
		return DeviceCPU, nil
	case DeviceCUDA:
		return DeviceCUDA, nil
	default:
		return "", fmt.Errorf("unknown device %q", requested)
	}
}
