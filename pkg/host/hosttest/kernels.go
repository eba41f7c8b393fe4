// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package hosttest implements the host side of the plugin ABI in memory, for tests and tools.
//
// Host records kernel registrations and drives their create/compute/delete lifecycle.
// Runtime loads the device plugin, creates device 0 and a stream, and allocates tensors on the
// device through the plugin's stream executor. Context is a per-call compute context whose host
// calls can be made to fail.
package hosttest

import (
	"maps"
	"slices"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tfdevice/pkg/host"
	"github.com/gomlx/tfdevice/pkg/status"
	"github.com/pkg/errors"
)

// Registration of a kernel, as seen by the host.
type Registration struct {
	KernelName, OpName, DeviceType string
	Constraints                    map[string]dtypes.DType
	Callbacks                      host.Callbacks
}

// Host implements host.KernelHost in memory.
type Host struct {
	mu                sync.Mutex
	registrations     []*Registration
	failConstraints   map[string]bool
	failRegistrations map[string]bool
	liveBuilders      int
}

// Compile-time check.
var _ host.KernelHost = (*Host)(nil)

// NewHost returns an empty Host.
func NewHost() *Host {
	return &Host{
		failConstraints:   make(map[string]bool),
		failRegistrations: make(map[string]bool),
	}
}

// FailTypeConstraint makes TypeConstraint fail for the given kernel name and attribute.
func (h *Host) FailTypeConstraint(kernelName, attrName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failConstraints[kernelName+"/"+attrName] = true
}

// FailRegistration makes Register fail for the given op name.
func (h *Host) FailRegistration(opName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failRegistrations[opName] = true
}

// NewKernelBuilder implements host.KernelHost.
func (h *Host) NewKernelBuilder(kernelName, deviceType string, callbacks host.Callbacks) host.KernelBuilder {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveBuilders++
	return &kernelBuilder{
		host: h,
		registration: Registration{
			KernelName:  kernelName,
			DeviceType:  deviceType,
			Constraints: make(map[string]dtypes.DType),
			Callbacks:   callbacks,
		},
	}
}

// Registrations returns the kernels registered so far, in registration order.
func (h *Host) Registrations() []*Registration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.registrations)
}

// LiveBuilders returns the number of builders neither registered nor deleted.
func (h *Host) LiveBuilders() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.liveBuilders
}

// Lookup the registration of opName for deviceType.
func (h *Host) Lookup(opName, deviceType string) (*Registration, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.registrations {
		if r.OpName == opName && r.DeviceType == deviceType {
			return r, nil
		}
	}
	return nil, errors.Errorf("no kernel registered for op %q on device type %q", opName, deviceType)
}

type kernelBuilder struct {
	host         *Host
	registration Registration
	done         bool
}

func (b *kernelBuilder) TypeConstraint(attrName string, dtype dtypes.DType, st *status.Status) {
	st.SetOK()
	if b.done {
		st.Set(status.FailedPrecondition, "kernel builder for %q already consumed", b.registration.KernelName)
		return
	}
	b.host.mu.Lock()
	fail := b.host.failConstraints[b.registration.KernelName+"/"+attrName]
	b.host.mu.Unlock()
	if fail {
		st.Set(status.InvalidArgument, "type constraint %q=%s rejected for kernel %q", attrName, dtype, b.registration.KernelName)
		return
	}
	b.registration.Constraints[attrName] = dtype
}

func (b *kernelBuilder) Register(opName string, st *status.Status) {
	st.SetOK()
	if b.done {
		st.Set(status.FailedPrecondition, "kernel builder for %q already consumed", b.registration.KernelName)
		return
	}
	b.host.mu.Lock()
	defer b.host.mu.Unlock()
	if b.host.failRegistrations[opName] {
		st.Set(status.AlreadyExists, "registration of op %q rejected", opName)
		return
	}
	b.done = true
	b.host.liveBuilders--
	r := b.registration
	r.OpName = opName
	r.Constraints = maps.Clone(r.Constraints)
	b.host.registrations = append(b.host.registrations, &r)
}

func (b *kernelBuilder) Delete() {
	if b.done {
		return
	}
	b.done = true
	b.host.mu.Lock()
	defer b.host.mu.Unlock()
	b.host.liveBuilders--
}
