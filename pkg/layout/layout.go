// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layout maps logical 4D coordinates (n, h, w, c) to the linear offset of an element
// in a tensor stored with an arbitrary physical axis order.
//
// The physical order is given by a format string, a permutation of "NHWC" (e.g. "NHWC", "NCHW",
// "CHWN"). The offset is the sum, for each logical axis, of its coordinate times the row-major
// stride of the physical axis it lives in, so no transposed copy is ever needed.
//
// Malformed formats or shapes are contract violations and panic (see package
// github.com/gomlx/exceptions).
package layout

import (
	"strings"

	"github.com/gomlx/exceptions"
)

// Rank of the tensors handled by this package.
const Rank = 4

// Letters of the logical axes, in logical order.
const Letters = "NHWC"

// ValidateFormat panics if format is not a permutation of "NHWC".
func ValidateFormat(format string) {
	if len(format) != Rank {
		exceptions.Panicf("layout format %q must have length %d", format, Rank)
	}
	for _, letter := range Letters {
		if strings.Count(format, string(letter)) != 1 {
			exceptions.Panicf("layout format %q must have exactly one %q", format, letter)
		}
	}
}

// FormatIndices returns the physical axis of each of the logical axes N, H, W and C.
//
// It panics if the format is not a permutation of "NHWC".
func FormatIndices(format string) (ni, hi, wi, ci int) {
	ValidateFormat(format)
	return strings.IndexByte(format, 'N'), strings.IndexByte(format, 'H'),
		strings.IndexByte(format, 'W'), strings.IndexByte(format, 'C')
}

// stride of the physical axis, for row-major dims.
func stride(axis int, dims []int64) int {
	switch axis {
	case 3:
		return 1
	case 2:
		return int(dims[3])
	case 1:
		return int(dims[2] * dims[3])
	case 0:
		return int(dims[1] * dims[2] * dims[3])
	}
	exceptions.Panicf("invalid physical axis %d for a rank-%d tensor", axis, Rank)
	return 0
}

func checkDims(dims []int64) {
	if len(dims) != Rank {
		exceptions.Panicf("layout requires rank-%d dims, got %v (rank %d)", Rank, dims, len(dims))
	}
}

// Offset returns the linear offset of the element at the logical coordinates (n, h, w, c)
// of a tensor with the physical dims and format given.
//
// Coordinates out of the extent of the dims are not checked.
func Offset(dims []int64, format string, n, h, w, c int) int {
	checkDims(dims)
	ni, hi, wi, ci := FormatIndices(format)
	return n*stride(ni, dims) + h*stride(hi, dims) + w*stride(wi, dims) + c*stride(ci, dims)
}

// Addressor computes offsets for a fixed (dims, format) pair. It holds the stride of each
// logical axis, so Offset costs four multiplications.
type Addressor struct {
	Named NamedDims

	strideN, strideH, strideW, strideC int
}

// NewAddressor decodes dims and format once. It panics on malformed inputs, like Offset.
func NewAddressor(dims []int64, format string) *Addressor {
	named := DecodeNamedDims(dims, format)
	return &Addressor{
		Named:   named,
		strideN: stride(named.NI, dims),
		strideH: stride(named.HI, dims),
		strideW: stride(named.WI, dims),
		strideC: stride(named.CI, dims),
	}
}

// Offset returns the same value as the package function Offset for the Addressor's dims and format.
func (a *Addressor) Offset(n, h, w, c int) int {
	return n*a.strideN + h*a.strideH + w*a.strideW + c*a.strideC
}
