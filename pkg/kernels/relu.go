// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"github.com/gomlx/tfdevice/internal/workerspool"
	"github.com/gomlx/tfdevice/pkg/host"
	"github.com/gomlx/tfdevice/pkg/registry"
)

// reluKernel is the state of one Relu instance. Relu has no attributes.
type reluKernel struct {
	pool *workerspool.Pool
}

func newReluBuilder(deviceType string, pool *workerspool.Pool) *registry.Builder[reluKernel] {
	return registry.NewBuilder[reluKernel](ReluKernelName, ReluOpName, deviceType).
		Constraint(TypeConstraintT, elementType).
		Create(func(_ host.ConstructionContext) (*reluKernel, error) {
			return &reluKernel{pool: pool}, nil
		}).
		Compute((*reluKernel).compute)
}

// compute writes max(x, 0) for every element x of the input. NaN inputs yield 0.
func (k *reluKernel) compute(ctx host.ComputeContext) {
	inputs := computeInputs(ReluKernelName, ctx, 1)
	if inputs == nil {
		return
	}
	input := inputs[0]
	if input.ElementCount() == 0 {
		return
	}
	output := allocateLike(ctx, input)
	if output == nil {
		return
	}
	in, out := host.Flat[float32](input), host.Flat[float32](output)
	k.pool.ParallelFor(len(in), parallelChunkElements, func(start, end int) {
		for i := start; i < end; i++ {
			if x := in[i]; x > 0 {
				out[i] = x
			} else {
				out[i] = 0
			}
		}
	})
}
