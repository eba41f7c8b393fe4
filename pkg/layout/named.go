// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layout

import "fmt"

// NamedDims is the decoding of a rank-4 shape for a format: the size of each logical
// axis and the physical axis where it lives.
type NamedDims struct {
	N, H, W, C     int64
	NI, HI, WI, CI int
}

// DecodeNamedDims returns the NamedDims of dims stored with the given format.
//
// It panics if dims is not rank 4 or if format is not a permutation of "NHWC".
func DecodeNamedDims(dims []int64, format string) NamedDims {
	checkDims(dims)
	ni, hi, wi, ci := FormatIndices(format)
	return NamedDims{
		N: dims[ni], H: dims[hi], W: dims[wi], C: dims[ci],
		NI: ni, HI: hi, WI: wi, CI: ci,
	}
}

// Size is the number of elements.
func (nd NamedDims) Size() int64 {
	return nd.N * nd.H * nd.W * nd.C
}

// String implements fmt.Stringer.
func (nd NamedDims) String() string {
	return fmt.Sprintf("(N=%d@%d, H=%d@%d, W=%d@%d, C=%d@%d)",
		nd.N, nd.NI, nd.H, nd.HI, nd.W, nd.WI, nd.C, nd.CI)
}
