// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"github.com/gomlx/tfdevice/internal/workerspool"
	"github.com/gomlx/tfdevice/pkg/host"
	"github.com/gomlx/tfdevice/pkg/layout"
	"github.com/gomlx/tfdevice/pkg/registry"
	"github.com/gomlx/tfdevice/pkg/status"
	"k8s.io/klog/v2"
)

// biasAddKernel is the state of one BiasAdd instance.
type biasAddKernel struct {
	format string
	pool   *workerspool.Pool
}

func newBiasAddBuilder(deviceType string, pool *workerspool.Pool) *registry.Builder[biasAddKernel] {
	return registry.NewBuilder[biasAddKernel](BiasAddKernelName, BiasAddOpName, deviceType).
		Constraint(TypeConstraintT, elementType).
		Create(func(ctx host.ConstructionContext) (*biasAddKernel, error) {
			return newBiasAdd(ctx, pool)
		}).
		Compute((*biasAddKernel).compute).
		Delete((*biasAddKernel).release)
}

// newBiasAdd reads and validates the data format of the instance.
func newBiasAdd(ctx host.ConstructionContext, pool *workerspool.Pool) (*biasAddKernel, error) {
	format, err := host.AttrString(ctx, DataFormatAttr)
	if err != nil {
		return nil, err
	}
	if err := checkFormat(format); err != nil {
		return nil, invalidArgument(err, "%s attribute %s", BiasAddKernelName, DataFormatAttr)
	}
	klog.V(1).Infof("%s instance created with %s=%q", BiasAddKernelName, DataFormatAttr, format)
	return &biasAddKernel{format: format, pool: pool}, nil
}

// compute writes output[addr] = input[addr] + bias[c] for every (n, h, w, c) coordinate of
// the input, where addr is the offset of the coordinate in the instance's data format.
func (k *biasAddKernel) compute(ctx host.ComputeContext) {
	inputs := computeInputs(BiasAddKernelName, ctx, 2)
	if inputs == nil {
		return
	}
	input, bias := inputs[0], inputs[1]
	if input.NumDims() != layout.Rank {
		status.Throw(status.InvalidArgument, "%s input must have rank %d, got %s", BiasAddKernelName, layout.Rank, input)
	}
	named := input.NamedDims(k.format)
	if bias.NumDims() != 1 {
		status.Throw(status.InvalidArgument, "%s bias must have rank 1, got %s", BiasAddKernelName, bias)
	}
	if bias.Dim(0) != named.C {
		status.Throw(status.InvalidArgument, "%s bias length %d must match the channel dimension %d of input %s (format %s)",
			BiasAddKernelName, bias.Dim(0), named.C, input, k.format)
	}
	if input.ElementCount() == 0 {
		return
	}
	output := allocateLike(ctx, input)
	if output == nil {
		return
	}

	in, b, out := host.Flat[float32](input), host.Flat[float32](bias), host.Flat[float32](output)
	addr := layout.NewAddressor(input.Dims(), k.format)
	perN := int(named.H * named.W * named.C)
	k.pool.ParallelFor(int(named.N), max(1, parallelChunkElements/perN), func(start, end int) {
		for n := start; n < end; n++ {
			for h := range int(named.H) {
				for w := range int(named.W) {
					for c := range int(named.C) {
						i := addr.Offset(n, h, w, c)
						out[i] = in[i] + b[c]
					}
				}
			}
		}
	})
}

func (k *biasAddKernel) release() {
	klog.V(1).Infof("%s instance with %s=%q deleted", BiasAddKernelName, DataFormatAttr, k.format)
	k.pool = nil
}
