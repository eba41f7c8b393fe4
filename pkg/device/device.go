// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package device implements the platform, device and stream-executor contract the host runtime
// requires from a pluggable device, for a synchronous, memory-backed virtual device.
//
// The host owns the call order: it asks the Backend (the platform functions table) for devices
// and for a StreamExecutor, and then calls the executor to allocate memory, manage
// streams, events and timers, and transfer data. Every call receives a *status.Status
// out-parameter and sets it before returning. Faults inside a call are converted into a failure
// status (see status.Guard), never into a process abort.
//
// There is no asynchrony: streams carry no pending work, events are always complete and every
// wait returns immediately. There is also no shared mutable state between objects, so all calls
// are safe to use concurrently for distinct devices, streams and memory regions.
package device

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/tfdevice/pkg/config"
	"github.com/gomlx/tfdevice/pkg/status"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// DeviceCount is the number of devices the platform reports.
const DeviceCount = 1

// Platform is the process-wide identity of the device platform, as reported to the host.
type Platform struct {
	StructSize uint64
	Name       string
	Type       string
}

// Handle is the opaque, heap-owned payload of a device. Streams keep a copy of it, and kernels
// receive it through their stream.
type Handle struct {
	ID      uuid.UUID
	Payload string
}

// String implements fmt.Stringer.
func (h *Handle) String() string {
	if h == nil {
		return "<nil device handle>"
	}
	return h.Payload + "@" + h.ID.String()
}

// Device is one instance of the virtual device.
type Device struct {
	StructSize uint64
	Ordinal    int32
	Handle     *Handle
}

// CreateDeviceParams is filled by the host with the requested ordinal and a Device to initialize.
type CreateDeviceParams struct {
	StructSize uint64
	Ordinal    int32
	Device     *Device
}

// DeviceFns holds the optional per-device functions. The virtual device provides none.
type DeviceFns struct {
	StructSize uint64
}

// PlatformFns is the platform functions table the host calls.
type PlatformFns interface {
	DeviceCount(st *status.Status) int
	CreateDevice(params *CreateDeviceParams, st *status.Status)
	DestroyDevice(dev *Device, st *status.Status)
	CreateDeviceFns(fns *DeviceFns, st *status.Status)
	DestroyDeviceFns(fns *DeviceFns, st *status.Status)
	CreateStreamExecutor(table *StreamExecutorTable, st *status.Status)
	DestroyStreamExecutor(table *StreamExecutorTable, st *status.Status)
	CreateTimerFns(table *TimerFnsTable, st *status.Status)
	DestroyTimerFns(table *TimerFnsTable, st *status.Status)
}

// Backend implements PlatformFns for the virtual device.
type Backend struct {
	identity config.Identity
}

// Compile-time check that *Backend implements PlatformFns.
var _ PlatformFns = (*Backend)(nil)

// New returns a Backend for the given identity.
//
// It panics if the identity has invalid names: that is a build-time misconfiguration.
func New(identity config.Identity) *Backend {
	if err := identity.Validate(); err != nil {
		exceptions.Panicf("device.New(%s): %+v", identity, err)
	}
	return &Backend{identity: identity}
}

// Identity of the device served by the backend.
func (b *Backend) Identity() config.Identity {
	return b.identity
}

// Platform returns a new Platform description for the backend identity.
func (b *Backend) Platform() *Platform {
	return &Platform{
		StructSize: PlatformStructSize,
		Name:       b.identity.PlatformName,
		Type:       b.identity.PlatformType,
	}
}

// DeviceCount always returns 1.
func (b *Backend) DeviceCount(st *status.Status) int {
	st.SetOK()
	return DeviceCount
}

// CreateDevice initializes params.Device with a new handle and the requested ordinal.
func (b *Backend) CreateDevice(params *CreateDeviceParams, st *status.Status) {
	st.SetOK()
	status.Guard(st, "CreateDevice", func() {
		if params == nil || params.Device == nil {
			st.Set(status.InvalidArgument, "CreateDevice: no device to initialize")
			return
		}
		if params.Ordinal < 0 || params.Ordinal >= DeviceCount {
			st.Set(status.OutOfRange, "CreateDevice: ordinal %d out of range, there are %d devices",
				params.Ordinal, DeviceCount)
			return
		}
		dev := params.Device
		if dev.Handle != nil {
			st.Set(status.AlreadyExists, "CreateDevice: device %d already has handle %s", dev.Ordinal, dev.Handle)
			return
		}
		dev.StructSize = DeviceStructSize
		dev.Handle = &Handle{ID: uuid.New(), Payload: b.identity.HandlePayload}
		dev.Ordinal = params.Ordinal
		klog.V(1).Infof("created device %s:%d with handle %s", b.identity.DeviceType, dev.Ordinal, dev.Handle)
	})
}

// DestroyDevice frees the device handle and invalidates the ordinal.
// Destroying an already destroyed device is a logged no-op.
func (b *Backend) DestroyDevice(dev *Device, st *status.Status) {
	st.SetOK()
	if dev == nil || dev.Handle == nil {
		klog.Warningf("DestroyDevice: device already destroyed, ignoring")
		return
	}
	klog.V(1).Infof("destroying device %s:%d with handle %s", b.identity.DeviceType, dev.Ordinal, dev.Handle)
	dev.Handle = nil
	dev.Ordinal = -1
}

// CreateDeviceFns sets the struct size of the (empty) device functions table.
func (b *Backend) CreateDeviceFns(fns *DeviceFns, st *status.Status) {
	st.SetOK()
	if fns == nil {
		st.Set(status.InvalidArgument, "CreateDeviceFns: nil table")
		return
	}
	fns.StructSize = DeviceFnsStructSize
}

// DestroyDeviceFns is a no-op.
func (b *Backend) DestroyDeviceFns(_ *DeviceFns, st *status.Status) {
	st.SetOK()
}

// CreateStreamExecutor fills the table with a new Executor.
func (b *Backend) CreateStreamExecutor(table *StreamExecutorTable, st *status.Status) {
	st.SetOK()
	if table == nil {
		st.Set(status.InvalidArgument, "CreateStreamExecutor: nil table")
		return
	}
	table.StructSize = StreamExecutorStructSize
	table.Fns = NewExecutor(b.identity)
}

// DestroyStreamExecutor drops the executor from the table.
func (b *Backend) DestroyStreamExecutor(table *StreamExecutorTable, st *status.Status) {
	st.SetOK()
	if table != nil {
		table.Fns = nil
	}
}

// CreateTimerFns fills the table with the timer functions.
func (b *Backend) CreateTimerFns(table *TimerFnsTable, st *status.Status) {
	st.SetOK()
	if table == nil {
		st.Set(status.InvalidArgument, "CreateTimerFns: nil table")
		return
	}
	table.StructSize = TimerFnsStructSize
	table.Fns = timerFns{}
}

// DestroyTimerFns drops the timer functions from the table.
func (b *Backend) DestroyTimerFns(table *TimerFnsTable, st *status.Status) {
	st.SetOK()
	if table != nil {
		table.Fns = nil
	}
}
