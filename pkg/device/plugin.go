// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package device

import (
	"unsafe"

	"github.com/gomlx/tfdevice/pkg/config"
	"github.com/gomlx/tfdevice/pkg/status"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Struct sizes for this ABI version. The host compares them with its own view of the
// structures and rejects the plugin on a mismatch.
const (
	RegistrationParamsStructSize = uint64(unsafe.Sizeof(RegistrationParams{}))
	PlatformStructSize           = uint64(unsafe.Sizeof(Platform{}))
	PlatformFnsStructSize        = uint64(unsafe.Sizeof(PlatformFnsTable{}))
	DeviceStructSize             = uint64(unsafe.Sizeof(Device{}))
	DeviceFnsStructSize          = uint64(unsafe.Sizeof(DeviceFns{}))
	StreamExecutorStructSize     = uint64(unsafe.Sizeof(StreamExecutorTable{}))
	TimerFnsStructSize           = uint64(unsafe.Sizeof(TimerFnsTable{}))
	DeviceMemoryBaseStructSize   = uint64(unsafe.Sizeof(DeviceMemoryBase{}))
	AllocatorStatsStructSize     = uint64(unsafe.Sizeof(AllocatorStats{}))
)

// PlatformFnsTable is the host-allocated holder of the platform functions.
type PlatformFnsTable struct {
	StructSize uint64
	Fns        PlatformFns
}

// RegistrationParams is handed by the host to InitPlugin, with Platform and PlatformFns
// already allocated.
type RegistrationParams struct {
	StructSize  uint64
	Platform    *Platform
	PlatformFns *PlatformFnsTable

	// DestroyPlatform and DestroyPlatformFns are set by the plugin and called by the host at teardown.
	DestroyPlatform    func(platform *Platform)
	DestroyPlatformFns func(table *PlatformFnsTable)
}

// InitPlugin is the plugin entry point, called once per process by the host.
//
// It fills the struct sizes of the registration parameters, the platform identity and the
// platform functions table, and returns the Backend serving them.
func InitPlugin(identity config.Identity, params *RegistrationParams, st *status.Status) *Backend {
	st.SetOK()
	if params == nil || params.Platform == nil || params.PlatformFns == nil {
		st.Set(status.InvalidArgument, "InitPlugin: registration parameters not allocated by the host")
		return nil
	}
	var backend *Backend
	status.Guard(st, "InitPlugin", func() {
		backend = New(identity)
	})
	if !st.Ok() {
		return nil
	}

	params.StructSize = RegistrationParamsStructSize
	params.DestroyPlatform = func(*Platform) {}
	params.DestroyPlatformFns = func(table *PlatformFnsTable) { table.Fns = nil }

	platform := backend.Platform()
	*params.Platform = *platform

	params.PlatformFns.StructSize = PlatformFnsStructSize
	params.PlatformFns.Fns = backend
	klog.V(1).Infof("initialized plugin for platform %q of type %q", platform.Name, platform.Type)
	return backend
}

// CheckStructSize returns an error if a structure filled by the plugin doesn't have the size
// the host expects. Hosts use it to reject plugins built for another ABI version.
func CheckStructSize(name string, got, want uint64) error {
	if got != want {
		return errors.Errorf("struct size mismatch for %s: plugin set %d, host expects %d", name, got, want)
	}
	return nil
}
