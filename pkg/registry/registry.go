// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package registry builds kernel descriptors and registers them with the host.
//
// A kernel is declared with a Builder over its per-instance state type T:
//
//	kernel, err := registry.NewBuilder[reluKernel]("Relu", "ReluOp", reg.DeviceType()).
//		Constraint("T", dtypes.Float32).
//		Create(newRelu).
//		Compute(computeRelu).
//		Register(reg)
//
// The host only sees opaque instance handles. The Kernel returned by Register keeps the
// instances in an arena and enforces their lifecycle: create runs once per handle, compute
// only runs on live instances (and never concurrently with their delete), and delete runs
// exactly once.
package registry

import (
	"maps"
	"slices"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tfdevice/pkg/config"
	"github.com/gomlx/tfdevice/pkg/host"
)

// Descriptor of a kernel. It is immutable once registered: accessors return copies.
type Descriptor struct {
	KernelName string
	OpName     string
	DeviceType string

	// Constraints maps attribute names to the element type they require.
	Constraints map[string]dtypes.DType
}

// Clone returns a deep copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	d.Constraints = maps.Clone(d.Constraints)
	return d
}

// ConstraintNames returns the constrained attribute names, sorted.
func (d Descriptor) ConstraintNames() []string {
	return slices.Sorted(maps.Keys(d.Constraints))
}

// Registry registers kernels with a host for one device identity, and keeps the catalog of
// the descriptors successfully registered.
//
// It is safe for concurrent use.
type Registry struct {
	host     host.KernelHost
	identity config.Identity

	mu          sync.Mutex
	descriptors []Descriptor
}

// New returns a Registry for the host and identity.
func New(kernelHost host.KernelHost, identity config.Identity) *Registry {
	return &Registry{host: kernelHost, identity: identity}
}

// DeviceType kernels of this registry are registered for.
func (r *Registry) DeviceType() string {
	return r.identity.DeviceType
}

// Identity of the device the registry serves.
func (r *Registry) Identity() config.Identity {
	return r.identity
}

// Descriptors returns copies of the descriptors registered so far, in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	descriptors := make([]Descriptor, len(r.descriptors))
	for i, d := range r.descriptors {
		descriptors[i] = d.Clone()
	}
	return descriptors
}

func (r *Registry) add(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors = append(r.descriptors, d.Clone())
}
