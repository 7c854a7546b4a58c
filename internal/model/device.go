package model

import (
	"os"
	"strings"
)

// ResolveDevice maps a configured preference onto a concrete device.
// "auto" picks CUDA only when the probe reports an accelerator.
func ResolveDevice(preference string, probe func() bool) Device {
	switch strings.ToLower(preference) {
	case "cuda":
		return DeviceCUDA
	case "cpu":
		return DeviceCPU
	}
	if probe != nil && probe() {
		return DeviceCUDA
	}
	return DeviceCPU
}

// ProbeCUDA reports whether an NVIDIA device looks usable
func ProbeCUDA() bool {
	if v, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok {
		v = strings.TrimSpace(v)
		return v != "" && v != "-1"
	}
	_, err := os.Stat("/dev/nvidia0")
	return err == nil
}
