// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package device

import (
	"encoding/binary"

	"github.com/gomlx/tfdevice/pkg/status"
)

// checkRegion throws an OutOfRange (or InvalidArgument for null regions) status if size bytes
// don't fit in buf. It must be called under status.Guard.
func checkRegion(what string, buf []byte, size uint64) {
	if buf == nil {
		status.Throw(status.InvalidArgument, "%s region is null", what)
	}
	if uint64(len(buf)) < size {
		status.Throw(status.OutOfRange, "%d bytes don't fit in %s region of %d bytes", size, what, len(buf))
	}
}

func deviceBytes(mem *DeviceMemoryBase) []byte {
	if mem == nil {
		return nil
	}
	return mem.Opaque
}

// copyBytes copies size bytes from src to dst, after checking both regions.
func copyBytes(op string, dst, src []byte, size uint64, st *status.Status) {
	st.SetOK()
	status.Guard(st, op, func() {
		checkRegion("destination", dst, size)
		checkRegion("source", src, size)
		copy(dst[:size], src[:size])
	})
}

// MemcpyDToH copies size bytes from device memory to host memory.
func (e *Executor) MemcpyDToH(_ *Device, _ *Stream, hostDst []byte, deviceSrc *DeviceMemoryBase, size uint64, st *status.Status) {
	copyBytes("MemcpyDToH", hostDst, deviceBytes(deviceSrc), size, st)
}

// MemcpyHToD copies size bytes from host memory to device memory.
func (e *Executor) MemcpyHToD(_ *Device, _ *Stream, deviceDst *DeviceMemoryBase, hostSrc []byte, size uint64, st *status.Status) {
	copyBytes("MemcpyHToD", deviceBytes(deviceDst), hostSrc, size, st)
}

// MemcpyDToD copies size bytes between device regions.
func (e *Executor) MemcpyDToD(_ *Device, _ *Stream, deviceDst, deviceSrc *DeviceMemoryBase, size uint64, st *status.Status) {
	copyBytes("MemcpyDToD", deviceBytes(deviceDst), deviceBytes(deviceSrc), size, st)
}

// SyncMemcpyDToH is MemcpyDToH without a stream.
func (e *Executor) SyncMemcpyDToH(_ *Device, hostDst []byte, deviceSrc *DeviceMemoryBase, size uint64, st *status.Status) {
	copyBytes("SyncMemcpyDToH", hostDst, deviceBytes(deviceSrc), size, st)
}

// SyncMemcpyHToD is MemcpyHToD without a stream.
func (e *Executor) SyncMemcpyHToD(_ *Device, deviceDst *DeviceMemoryBase, hostSrc []byte, size uint64, st *status.Status) {
	copyBytes("SyncMemcpyHToD", deviceBytes(deviceDst), hostSrc, size, st)
}

// SyncMemcpyDToD is MemcpyDToD without a stream.
func (e *Executor) SyncMemcpyDToD(_ *Device, deviceDst, deviceSrc *DeviceMemoryBase, size uint64, st *status.Status) {
	copyBytes("SyncMemcpyDToD", deviceBytes(deviceDst), deviceBytes(deviceSrc), size, st)
}

// MemZero sets size bytes of location to zero.
func (e *Executor) MemZero(dev *Device, stream *Stream, location *DeviceMemoryBase, size uint64, st *status.Status) {
	e.Memset32(dev, stream, location, 0, size, st)
}

// Memset sets size bytes of location to pattern. The pattern is replicated to 32 bits and
// the fill is done by Memset32.
func (e *Executor) Memset(dev *Device, stream *Stream, location *DeviceMemoryBase, pattern uint8, size uint64, st *status.Status) {
	p := uint32(pattern)
	e.Memset32(dev, stream, location, p<<24|p<<16|p<<8|p, size, st)
}

// Memset32 fills size bytes of location with the repeated 32-bit pattern, in little-endian
// byte order. If size is not a multiple of 4, the last bytes get the leading bytes of the pattern.
func (e *Executor) Memset32(_ *Device, _ *Stream, location *DeviceMemoryBase, pattern uint32, size uint64, st *status.Status) {
	st.SetOK()
	status.Guard(st, "Memset32", func() {
		buf := deviceBytes(location)
		checkRegion("destination", buf, size)
		fill32(buf[:size], pattern)
	})
}

// fill32 fills buf with the little-endian pattern, doubling the filled prefix on each copy.
func fill32(buf []byte, pattern uint32) {
	if len(buf) == 0 {
		return
	}
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], pattern)
	filled := copy(buf, word[:])
	for filled < len(buf) {
		filled += copy(buf[filled:], buf[:filled])
	}
}
