// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package device

import (
	"github.com/gomlx/tfdevice/pkg/config"
	"github.com/gomlx/tfdevice/pkg/status"
)

// StreamExecutor is the table of memory, stream, event, timer and transfer functions the host
// calls for a device.
type StreamExecutor interface {
	Allocate(dev *Device, size uint64, memorySpace int64, mem *DeviceMemoryBase, st *status.Status)
	Deallocate(dev *Device, mem *DeviceMemoryBase, st *status.Status)
	HostMemoryAllocate(dev *Device, size uint64, st *status.Status) *HostMemory
	HostMemoryDeallocate(dev *Device, mem *HostMemory, st *status.Status)
	GetAllocatorStats(dev *Device, stats *AllocatorStats, st *status.Status) bool
	DeviceMemoryUsage(dev *Device, st *status.Status) (free, total int64, ok bool)

	CreateStream(dev *Device, st *status.Status) *Stream
	DestroyStream(dev *Device, stream *Stream, st *status.Status)
	CreateStreamDependency(dev *Device, dependent, other *Stream, st *status.Status)
	GetStreamStatus(dev *Device, stream *Stream, st *status.Status)

	CreateEvent(dev *Device, st *status.Status) *Event
	DestroyEvent(dev *Device, event *Event, st *status.Status)
	GetEventStatus(dev *Device, event *Event, st *status.Status) EventStatus
	RecordEvent(dev *Device, stream *Stream, event *Event, st *status.Status)
	WaitForEvent(dev *Device, stream *Stream, event *Event, st *status.Status)

	CreateTimer(dev *Device, st *status.Status) *Timer
	DestroyTimer(dev *Device, timer *Timer, st *status.Status)
	StartTimer(dev *Device, stream *Stream, timer *Timer, st *status.Status)
	StopTimer(dev *Device, stream *Stream, timer *Timer, st *status.Status)

	MemcpyDToH(dev *Device, stream *Stream, hostDst []byte, deviceSrc *DeviceMemoryBase, size uint64, st *status.Status)
	MemcpyHToD(dev *Device, stream *Stream, deviceDst *DeviceMemoryBase, hostSrc []byte, size uint64, st *status.Status)
	MemcpyDToD(dev *Device, stream *Stream, deviceDst, deviceSrc *DeviceMemoryBase, size uint64, st *status.Status)
	SyncMemcpyDToH(dev *Device, hostDst []byte, deviceSrc *DeviceMemoryBase, size uint64, st *status.Status)
	SyncMemcpyHToD(dev *Device, deviceDst *DeviceMemoryBase, hostSrc []byte, size uint64, st *status.Status)
	SyncMemcpyDToD(dev *Device, deviceDst, deviceSrc *DeviceMemoryBase, size uint64, st *status.Status)

	BlockHostUntilDone(dev *Device, stream *Stream, st *status.Status)
	BlockHostForEvent(dev *Device, event *Event, st *status.Status)
	SynchronizeAllActivity(dev *Device, st *status.Status)

	MemZero(dev *Device, stream *Stream, location *DeviceMemoryBase, size uint64, st *status.Status)
	Memset(dev *Device, stream *Stream, location *DeviceMemoryBase, pattern uint8, size uint64, st *status.Status)
	Memset32(dev *Device, stream *Stream, location *DeviceMemoryBase, pattern uint32, size uint64, st *status.Status)

	HostCallback(dev *Device, stream *Stream, callback StatusCallback, st *status.Status) bool
}

// StreamExecutorTable is the host-allocated holder the platform fills in CreateStreamExecutor.
type StreamExecutorTable struct {
	StructSize uint64
	Fns        StreamExecutor
}

// StatusCallback is a host function scheduled on a stream with HostCallback.
type StatusCallback func(st *status.Status)

// Executor implements StreamExecutor for the virtual device.
//
// It holds no mutable state: every object it creates is owned by the caller until the matching
// destroy/deallocate call.
type Executor struct {
	identity config.Identity
}

// Compile-time check that *Executor implements StreamExecutor.
var _ StreamExecutor = (*Executor)(nil)

// NewExecutor returns an Executor for the devices of the given identity.
func NewExecutor(identity config.Identity) *Executor {
	return &Executor{identity: identity}
}

// checkDevice sets st to a failure and returns false if dev is not a live device.
func checkDevice(op string, dev *Device, st *status.Status) bool {
	if dev == nil || dev.Handle == nil {
		st.Set(status.FailedPrecondition, "%s: device is nil or was destroyed", op)
		return false
	}
	return true
}
