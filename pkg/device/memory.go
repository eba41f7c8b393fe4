// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package device

import (
	"github.com/dustin/go-humanize"
	"github.com/gomlx/tfdevice/pkg/status"
	"k8s.io/klog/v2"
)

// DeviceMemoryBase is a region of device memory, produced by exactly one Allocate and consumed
// by exactly one Deallocate.
//
// Opaque is nil and Size is 0 once the region has been deallocated.
type DeviceMemoryBase struct {
	StructSize uint64
	Opaque     []byte
	Size       uint64
}

// IsNull returns whether the region holds no memory (never allocated, or already deallocated).
func (mem *DeviceMemoryBase) IsNull() bool {
	return mem == nil || mem.Opaque == nil
}

// HostMemory is a host-resident buffer allocated by HostMemoryAllocate.
type HostMemory struct {
	Data []byte
}

// AllocatorStats reported to the host.
type AllocatorStats struct {
	StructSize       uint64
	NumAllocs        int64
	BytesInUse       int64
	PeakBytesInUse   int64
	LargestAllocSize int64
	BytesLimit       int64
	HasBytesLimit    bool
}

// Placeholder figures reported by GetAllocatorStats and DeviceMemoryUsage.
// The virtual device does no allocator accounting.
const (
	PlaceholderBytesInUse  = 123
	PlaceholderFreeMemory  = 256_000_000
	PlaceholderTotalMemory = 512_000_000
)

// Allocate a new zeroed region of size bytes into mem. The memorySpace is ignored.
//
// On failure mem is left null.
func (e *Executor) Allocate(dev *Device, size uint64, memorySpace int64, mem *DeviceMemoryBase, st *status.Status) {
	st.SetOK()
	if mem == nil {
		st.Set(status.InvalidArgument, "Allocate: nil memory descriptor")
		return
	}
	mem.StructSize = DeviceMemoryBaseStructSize
	mem.Opaque = nil
	mem.Size = 0
	if !checkDevice("Allocate", dev, st) {
		return
	}
	status.Guard(st, "Allocate", func() {
		mem.Opaque = make([]byte, size)
		mem.Size = size
	})
	if !st.Ok() {
		mem.Opaque = nil
		mem.Size = 0
		return
	}
	if klog.V(2).Enabled() {
		klog.Infof("allocated %s on %s:%d (memory space %d)", humanize.Bytes(size), e.identity.DeviceType, dev.Ordinal, memorySpace)
	}
}

// Deallocate releases the region and clears its pointer and size.
//
// Deallocating a region that is already null is a no-op, so a repeated call never frees twice.
func (e *Executor) Deallocate(_ *Device, mem *DeviceMemoryBase, st *status.Status) {
	st.SetOK()
	if mem.IsNull() {
		klog.V(1).Infof("Deallocate: region already released, ignoring")
		return
	}
	if klog.V(2).Enabled() {
		klog.Infof("deallocating %s from %s", humanize.Bytes(mem.Size), e.identity.DeviceType)
	}
	mem.Opaque = nil
	mem.Size = 0
}

// HostMemoryAllocate returns a new host buffer of size bytes, or nil on failure.
func (e *Executor) HostMemoryAllocate(dev *Device, size uint64, st *status.Status) *HostMemory {
	st.SetOK()
	if !checkDevice("HostMemoryAllocate", dev, st) {
		return nil
	}
	var mem *HostMemory
	status.Guard(st, "HostMemoryAllocate", func() {
		mem = &HostMemory{Data: make([]byte, size)}
	})
	if !st.Ok() {
		return nil
	}
	if klog.V(2).Enabled() {
		klog.Infof("allocated %s of host memory for %s", humanize.Bytes(size), e.identity.DeviceType)
	}
	return mem
}

// HostMemoryDeallocate releases the host buffer. Releasing it twice is a no-op.
func (e *Executor) HostMemoryDeallocate(_ *Device, mem *HostMemory, st *status.Status) {
	st.SetOK()
	if mem == nil || mem.Data == nil {
		klog.V(1).Infof("HostMemoryDeallocate: host buffer already released, ignoring")
		return
	}
	mem.Data = nil
}

// GetAllocatorStats fills stats with placeholder figures: only BytesInUse is set.
func (e *Executor) GetAllocatorStats(_ *Device, stats *AllocatorStats, st *status.Status) bool {
	st.SetOK()
	if stats == nil {
		st.Set(status.InvalidArgument, "GetAllocatorStats: nil stats")
		return false
	}
	stats.StructSize = AllocatorStatsStructSize
	stats.BytesInUse = PlaceholderBytesInUse
	return true
}

// DeviceMemoryUsage returns placeholder free and total memory figures.
func (e *Executor) DeviceMemoryUsage(_ *Device, st *status.Status) (free, total int64, ok bool) {
	st.SetOK()
	return PlaceholderFreeMemory, PlaceholderTotalMemory, true
}
