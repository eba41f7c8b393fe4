// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package host models the parts of the host runtime's kernel ABI the plugin uses: kernel
// registration, the construction-time attribute protocol and the per-call compute context.
//
// The interfaces expose only the operations the plugin needs. A thin adapter to the host's
// native interface implements them in production; package hosttest implements them in memory.
package host

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tfdevice/pkg/device"
	"github.com/gomlx/tfdevice/pkg/status"
	"github.com/pkg/errors"
)

// ScalarAttr is the list size the host reports for an attribute that is not a list.
const ScalarAttr = -1

// ConstructionContext is passed to a kernel's create function.
type ConstructionContext interface {
	// AttrSize returns the list size (ScalarAttr for a scalar) and the total size in bytes of the attribute.
	AttrSize(name string, st *status.Status) (listSize, totalSize int32)

	// AttrString copies the string attribute into buf, which must have the total size returned by AttrSize.
	AttrString(name string, buf []byte, st *status.Status)

	// Failure marks the kernel construction as failed.
	Failure(st *status.Status)
}

// ComputeContext is passed to every call of a kernel's compute function.
type ComputeContext interface {
	// Stream returns the device stream the kernel runs on.
	Stream(st *status.Status) *device.Stream

	// Input returns the i-th input tensor.
	Input(i int, st *status.Status) *Tensor

	// AllocateOutput allocates the i-th output with the given dims and byte length.
	AllocateOutput(i int, dims []int64, byteLen uint64, st *status.Status) *Tensor

	// Failure marks the compute call as failed with the given status.
	Failure(st *status.Status)
}

// InstanceHandle is the opaque token for a kernel instance, returned by the create callback and
// passed back to compute and delete. NullInstance means the creation failed.
type InstanceHandle uint64

// NullInstance is the failure sentinel of Callbacks.Create.
const NullInstance InstanceHandle = 0

// Callbacks are the lifecycle functions registered for a kernel. Any of them may be nil.
type Callbacks struct {
	Create  func(ctx ConstructionContext) InstanceHandle
	Compute func(handle InstanceHandle, ctx ComputeContext)
	Delete  func(handle InstanceHandle)
}

// KernelHost is the kernel registration side of the host.
type KernelHost interface {
	// NewKernelBuilder starts the registration of a kernel.
	NewKernelBuilder(kernelName, deviceType string, callbacks Callbacks) KernelBuilder
}

// KernelBuilder is the host-side builder of one kernel registration.
type KernelBuilder interface {
	// TypeConstraint requires the attribute attrName to be of the given element type.
	TypeConstraint(attrName string, dtype dtypes.DType, st *status.Status)

	// Register the kernel for the op named opName. The builder is owned by the host afterwards.
	Register(opName string, st *status.Status)

	// Delete releases a builder that won't be registered.
	Delete()
}

// AttrString reads a scalar string attribute with the two-stage protocol: first AttrSize, which
// must report a scalar (list size ScalarAttr), then AttrString with a buffer of the total size.
func AttrString(ctx ConstructionContext, name string) (string, error) {
	st := status.New()
	listSize, totalSize := ctx.AttrSize(name, st)
	if !st.Ok() {
		return "", errors.WithMessagef(st.Err(), "failed to get size of attribute %q", name)
	}
	if listSize != ScalarAttr {
		return "", errors.Errorf("attribute %q is not a scalar string: list size is %d", name, listSize)
	}
	if totalSize < 0 {
		return "", errors.Errorf("attribute %q has invalid size %d", name, totalSize)
	}
	buf := make([]byte, totalSize)
	ctx.AttrString(name, buf, st)
	if !st.Ok() {
		return "", errors.WithMessagef(st.Err(), "failed to get attribute %q", name)
	}
	return string(buf), nil
}
