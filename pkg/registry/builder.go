// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package registry

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tfdevice/pkg/config"
	"github.com/gomlx/tfdevice/pkg/host"
	"github.com/gomlx/tfdevice/pkg/status"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CreateFn creates the state of a new kernel instance. Returning an error (or a nil state)
// fails the construction.
type CreateFn[T any] func(ctx host.ConstructionContext) (*T, error)

// ComputeFn runs the kernel on one instance. Host failures are reported with ctx.Failure.
type ComputeFn[T any] func(state *T, ctx host.ComputeContext)

// DeleteFn releases what CreateFn allocated for the instance.
type DeleteFn[T any] func(state *T)

// Builder assembles the Descriptor and lifecycle functions of a kernel with per-instance state T.
type Builder[T any] struct {
	descriptor Descriptor
	create     CreateFn[T]
	compute    ComputeFn[T]
	delete     DeleteFn[T]
	consumed   bool
}

// NewBuilder starts the declaration of a kernel.
//
// It panics if any of the names is not a valid host identifier: this is a build-time
// misconfiguration.
func NewBuilder[T any](kernelName, opName, deviceType string) *Builder[T] {
	for _, name := range []string{kernelName, opName, deviceType} {
		if err := config.ValidateIdentifier(name); err != nil {
			exceptions.Panicf("registry.NewBuilder(%q, %q, %q): %v", kernelName, opName, deviceType, err)
		}
	}
	return &Builder[T]{
		descriptor: Descriptor{
			KernelName:  kernelName,
			OpName:      opName,
			DeviceType:  deviceType,
			Constraints: make(map[string]dtypes.DType),
		},
	}
}

// Constraint requires attribute attrName to be of the given element type. A second constraint
// on the same attribute overwrites the first.
//
// It panics if attrName is not a valid host identifier.
func (b *Builder[T]) Constraint(attrName string, dtype dtypes.DType) *Builder[T] {
	if err := config.ValidateIdentifier(attrName); err != nil {
		exceptions.Panicf("kernel %q constraint: %v", b.descriptor.KernelName, err)
	}
	b.descriptor.Constraints[attrName] = dtype
	return b
}

// Create sets the function that creates an instance's state. Without it, instances start
// with a zero T.
func (b *Builder[T]) Create(fn CreateFn[T]) *Builder[T] {
	b.create = fn
	return b
}

// Compute sets the compute function.
func (b *Builder[T]) Compute(fn ComputeFn[T]) *Builder[T] {
	b.compute = fn
	return b
}

// Delete sets the function that releases an instance's state.
func (b *Builder[T]) Delete(fn DeleteFn[T]) *Builder[T] {
	b.delete = fn
	return b
}

// Descriptor returns a copy of the descriptor being built.
func (b *Builder[T]) Descriptor() Descriptor {
	return b.descriptor.Clone()
}

// Register consumes the builder: it applies the type constraints and registers the kernel
// with the registry's host.
//
// A failure is logged and abandons only this kernel: the host builder is deleted, the kernel
// is not added to the catalog and the error is returned. Using the builder again panics.
func (b *Builder[T]) Register(r *Registry) (*Kernel[T], error) {
	if b.consumed {
		exceptions.Panicf("kernel builder for %q (op %q) was already registered", b.descriptor.KernelName, b.descriptor.OpName)
	}
	b.consumed = true
	desc := b.descriptor.Clone()
	kernel := newKernel(desc, b.create, b.compute, b.delete)
	hostBuilder := r.host.NewKernelBuilder(desc.KernelName, desc.DeviceType, kernel.callbacks())

	st := status.New()
	for _, attrName := range desc.ConstraintNames() {
		hostBuilder.TypeConstraint(attrName, desc.Constraints[attrName], st)
		if !st.Ok() {
			klog.Errorf("Error while registering %s kernel with attribute %s: %s", desc.OpName, attrName, st)
			hostBuilder.Delete()
			return nil, errors.WithMessagef(st.Err(), "kernel %q: type constraint %s=%s", desc.KernelName, attrName, desc.Constraints[attrName])
		}
	}
	hostBuilder.Register(desc.OpName, st)
	if !st.Ok() {
		klog.Errorf("Error while registering %s kernel: %s", desc.OpName, st)
		hostBuilder.Delete()
		return nil, errors.WithMessagef(st.Err(), "kernel %q: registration of op %q", desc.KernelName, desc.OpName)
	}
	r.add(desc)
	klog.V(1).Infof("registered kernel %q for op %q on %s, constraints %v", desc.KernelName, desc.OpName, desc.DeviceType, desc.Constraints)
	return kernel, nil
}
