// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kernels implements the BiasAdd and Relu kernels of the virtual device.
//
// Both kernels work on float32 tensors in device memory, read and write them in place through
// their stream's device (the virtual device is memory-backed), and use package layout to address
// elements for any data format.
package kernels

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tfdevice/internal/workerspool"
	"github.com/gomlx/tfdevice/pkg/host"
	"github.com/gomlx/tfdevice/pkg/layout"
	"github.com/gomlx/tfdevice/pkg/registry"
	"github.com/gomlx/tfdevice/pkg/status"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// TypeConstraintT is the attribute holding the element type of the kernels.
	TypeConstraintT = "T"

	// DataFormatAttr is the attribute holding the data format of BiasAdd, a permutation of "NHWC".
	DataFormatAttr = "data_format"

	BiasAddKernelName = "BiasAdd"
	BiasAddOpName     = "BiasAddOp"
	ReluKernelName    = "Relu"
	ReluOpName        = "ReluOp"
)

// parallelChunkElements is the minimum number of elements processed by one worker.
const parallelChunkElements = 16 * 1024

// elementType of the tensors handled by the kernels.
const elementType = dtypes.Float32

// InitKernels registers BiasAdd and Relu for the registry's device type.
//
// The registration of each kernel is independent: a failing one is logged and its error
// returned, and the other is still registered.
func InitKernels(reg *registry.Registry) []error {
	var errs []error
	pool := workerspool.Default()
	if _, err := newBiasAddBuilder(reg.DeviceType(), pool).Register(reg); err != nil {
		errs = append(errs, err)
	}
	if _, err := newReluBuilder(reg.DeviceType(), pool).Register(reg); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		klog.Warningf("%d of 2 kernels failed to register for device type %q", len(errs), reg.DeviceType())
	}
	return errs
}

// computeInputs fetches the stream and the first numInputs inputs of the compute call.
// On a host failure it forwards the status to ctx and returns nil.
func computeInputs(kernelName string, ctx host.ComputeContext, numInputs int) []*host.Tensor {
	st := status.New()
	stream := ctx.Stream(st)
	if !st.Ok() {
		ctx.Failure(st)
		return nil
	}
	klog.V(2).Infof("%s running on device %s", kernelName, stream.Handle())
	inputs := make([]*host.Tensor, numInputs)
	for i := range inputs {
		inputs[i] = ctx.Input(i, st)
		if !st.Ok() {
			ctx.Failure(st)
			return nil
		}
		if inputs[i].DType() != elementType {
			status.Throw(status.InvalidArgument, "%s input #%d must be %s, got %s", kernelName, i, elementType, inputs[i])
		}
	}
	return inputs
}

// allocateLike allocates output 0 with the shape of input, as float32. On a host failure it
// forwards the status to ctx and returns nil.
func allocateLike(ctx host.ComputeContext, input *host.Tensor) *host.Tensor {
	st := status.New()
	byteLen := uint64(input.ElementCount()) * uint64(elementType.Size())
	output := ctx.AllocateOutput(0, input.Dims(), byteLen, st)
	if !st.Ok() {
		ctx.Failure(st)
		return nil
	}
	if output == nil {
		ctx.Failure(status.Newf(status.Internal, "host returned no output tensor"))
		return nil
	}
	return output
}

// invalidArgument wraps err into an InvalidArgument status, keeping err's message.
func invalidArgument(err error, format string, args ...any) error {
	return errors.WithMessagef(status.Newf(status.InvalidArgument, "%v", err), format, args...)
}

// checkFormat returns an error if format is not a permutation of layout.Letters.
func checkFormat(format string) error {
	return exceptions.TryCatch[error](func() { layout.ValidateFormat(format) })
}
