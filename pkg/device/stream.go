// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package device

import (
	"github.com/gomlx/tfdevice/pkg/status"
	"k8s.io/klog/v2"
)

// Stream is an ordered queue of operations for one device. Operations on the virtual device run
// synchronously, so the stream only carries a copy of its device's handle.
type Stream struct {
	handle *Handle
}

// Handle returns the handle of the device that owns the stream, or nil if the stream was destroyed.
func (s *Stream) Handle() *Handle {
	if s == nil {
		return nil
	}
	return s.handle
}

// NewStream returns a stream for the given device handle.
// The host normally gets streams from Executor.CreateStream.
func NewStream(handle *Handle) *Stream {
	return &Stream{handle: handle}
}

// EventStatus is the state of an Event.
type EventStatus int

const (
	EventUnknown EventStatus = iota
	EventError
	EventPending
	EventComplete
)

// Event is a synchronization token recorded into a stream. It is always complete.
type Event struct {
	recorded bool
}

// Timer is an interval timer. Its Handle is reported directly as the elapsed nanoseconds.
type Timer struct {
	Handle int64
}

// TimerFns is the timer functions table.
type TimerFns interface {
	Nanoseconds(timer *Timer) uint64
}

// TimerFnsTable is the host-allocated holder the platform fills in CreateTimerFns.
type TimerFnsTable struct {
	StructSize uint64
	Fns        TimerFns
}

type timerFns struct{}

// Nanoseconds returns the timer handle value.
func (timerFns) Nanoseconds(timer *Timer) uint64 {
	if timer == nil {
		return 0
	}
	return uint64(timer.Handle)
}

// CreateStream returns a new stream holding a copy of dev's handle.
func (e *Executor) CreateStream(dev *Device, st *status.Status) *Stream {
	st.SetOK()
	if !checkDevice("CreateStream", dev, st) {
		return nil
	}
	klog.V(2).Infof("creating stream for %s:%d", e.identity.DeviceType, dev.Ordinal)
	return NewStream(dev.Handle)
}

// DestroyStream releases the stream. Destroying it twice is a logged no-op.
func (e *Executor) DestroyStream(_ *Device, stream *Stream, st *status.Status) {
	st.SetOK()
	if stream == nil || stream.handle == nil {
		klog.Warningf("DestroyStream: stream already destroyed, ignoring")
		return
	}
	stream.handle = nil
}

// CreateStreamDependency is accepted but enforces no ordering: operations run synchronously.
func (e *Executor) CreateStreamDependency(_ *Device, _, _ *Stream, st *status.Status) {
	st.SetOK()
}

// GetStreamStatus is always OK.
func (e *Executor) GetStreamStatus(_ *Device, _ *Stream, st *status.Status) {
	st.SetOK()
}

// CreateEvent returns a new event.
func (e *Executor) CreateEvent(dev *Device, st *status.Status) *Event {
	st.SetOK()
	if !checkDevice("CreateEvent", dev, st) {
		return nil
	}
	return &Event{}
}

// DestroyEvent releases the event.
func (e *Executor) DestroyEvent(_ *Device, _ *Event, st *status.Status) {
	st.SetOK()
}

// GetEventStatus returns EventComplete for any event, or EventError (and an InvalidArgument
// status) for a nil one.
func (e *Executor) GetEventStatus(_ *Device, event *Event, st *status.Status) EventStatus {
	st.SetOK()
	if event == nil {
		st.Set(status.InvalidArgument, "GetEventStatus: nil event")
		return EventError
	}
	return EventComplete
}

// RecordEvent marks the event as recorded. There is no pending work to wait for.
func (e *Executor) RecordEvent(_ *Device, _ *Stream, event *Event, st *status.Status) {
	st.SetOK()
	if event != nil {
		event.recorded = true
	}
}

// WaitForEvent returns immediately.
func (e *Executor) WaitForEvent(_ *Device, _ *Stream, _ *Event, st *status.Status) {
	st.SetOK()
}

// CreateTimer returns a new inert timer.
func (e *Executor) CreateTimer(dev *Device, st *status.Status) *Timer {
	st.SetOK()
	if !checkDevice("CreateTimer", dev, st) {
		return nil
	}
	return &Timer{}
}

// DestroyTimer releases the timer.
func (e *Executor) DestroyTimer(_ *Device, _ *Timer, st *status.Status) {
	st.SetOK()
}

// StartTimer is a no-op.
func (e *Executor) StartTimer(_ *Device, _ *Stream, _ *Timer, st *status.Status) {
	st.SetOK()
}

// StopTimer is a no-op.
func (e *Executor) StopTimer(_ *Device, _ *Stream, _ *Timer, st *status.Status) {
	st.SetOK()
}

// BlockHostUntilDone returns immediately: the stream has no pending work.
func (e *Executor) BlockHostUntilDone(_ *Device, _ *Stream, st *status.Status) {
	st.SetOK()
}

// BlockHostForEvent returns immediately: events are always complete.
func (e *Executor) BlockHostForEvent(_ *Device, _ *Event, st *status.Status) {
	st.SetOK()
}

// SynchronizeAllActivity returns immediately.
func (e *Executor) SynchronizeAllActivity(_ *Device, st *status.Status) {
	st.SetOK()
}

// HostCallback runs callback synchronously and reports that it was accepted.
// A failure reported by the callback is logged.
func (e *Executor) HostCallback(_ *Device, _ *Stream, callback StatusCallback, st *status.Status) bool {
	st.SetOK()
	if callback == nil {
		return true
	}
	cbStatus := status.New()
	status.Guard(cbStatus, "HostCallback", func() { callback(cbStatus) })
	if !cbStatus.Ok() {
		klog.Warningf("host callback on %s reported failure: %s", e.identity.DeviceType, cbStatus)
	}
	return true
}
