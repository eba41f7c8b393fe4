// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package host

import (
	"fmt"
	"slices"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tfdevice/pkg/layout"
)

// Tensor is a view of a host-owned tensor: the plugin reads and writes its data but never owns it.
type Tensor struct {
	dtype dtypes.DType
	dims  []int64
	data  []byte
}

// NewTensor returns a view over data. It panics if data is smaller than the shape requires.
func NewTensor(dtype dtypes.DType, dims []int64, data []byte) *Tensor {
	t := &Tensor{dtype: dtype, dims: slices.Clone(dims), data: data}
	if need := t.ElementCount() * int64(dtype.Size()); int64(len(data)) < need {
		exceptions.Panicf("tensor %s%v needs %d bytes, only %d given", dtype, dims, need, len(data))
	}
	return t
}

// DType of the elements.
func (t *Tensor) DType() dtypes.DType { return t.dtype }

// NumDims returns the rank of the tensor.
func (t *Tensor) NumDims() int { return len(t.dims) }

// Dim returns the size of axis i.
func (t *Tensor) Dim(i int) int64 { return t.dims[i] }

// Dims returns a copy of the dimensions.
func (t *Tensor) Dims() []int64 { return slices.Clone(t.dims) }

// ElementCount is the number of elements: the product of the dims.
func (t *Tensor) ElementCount() int64 {
	count := int64(1)
	for _, dim := range t.dims {
		count *= dim
	}
	return count
}

// Bytes returns the underlying host memory.
func (t *Tensor) Bytes() []byte { return t.data }

// NamedDims decodes the rank-4 dims for the given format. It panics if the tensor is not rank 4
// or the format is invalid.
func (t *Tensor) NamedDims(format string) layout.NamedDims {
	return layout.DecodeNamedDims(t.dims, format)
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	return fmt.Sprintf("(%s)%v", t.dtype, t.dims)
}

// Flat returns the elements of the tensor as a slice of T aliasing the host memory.
//
// It panics if T doesn't match the tensor dtype.
func Flat[T dtypes.Supported](t *Tensor) []T {
	if want := dtypes.FromGenericsType[T](); want != t.dtype {
		exceptions.Panicf("tensor %s accessed as %s", t, want)
	}
	count := t.ElementCount()
	if count == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&t.data[0])), count)
}
