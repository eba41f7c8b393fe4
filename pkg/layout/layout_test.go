// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layout

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The logical test tensor is 2x2x2x2, and its values enumerate the (n, c, h, w) coordinates:
//
//	n=0 c=0    n=0 c=1    n=1 c=0    n=1 c=1
//	 0  1       4  5       8  9      12 13
//	 2  3       6  7      10 11      14 15
//
// Each test stores it in a different physical layout and checks that Offset finds every value.
func checkLogicalValues(t *testing.T, raw [16]int, format string) {
	dims := []int64{2, 2, 2, 2}
	addr := NewAddressor(dims, format)
	for n := range 2 {
		for c := range 2 {
			for h := range 2 {
				for w := range 2 {
					want := n*8 + c*4 + h*2 + w
					offset := Offset(dims, format, n, h, w, c)
					require.Equalf(t, want, raw[offset], "format=%s, (n=%d, h=%d, w=%d, c=%d)", format, n, h, w, c)
					require.Equal(t, offset, addr.Offset(n, h, w, c))
				}
			}
		}
	}
}

func TestOffsetNCHW(t *testing.T) {
	// Split by n, then by c, then by h and finally w.
	checkLogicalValues(t, [16]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, "NCHW")

	dims := []int64{2, 2, 2, 2}
	assert.Equal(t, 0, Offset(dims, "NCHW", 0, 0, 0, 0))
	assert.Equal(t, 1, Offset(dims, "NCHW", 0, 0, 1, 0))
	assert.Equal(t, 2, Offset(dims, "NCHW", 0, 1, 0, 0))
	assert.Equal(t, 3, Offset(dims, "NCHW", 0, 1, 1, 0))
}

func TestOffsetNHWC(t *testing.T) {
	// Split by n, then h, then w, and each pixel holds its 2 channels.
	checkLogicalValues(t, [16]int{0, 4, 1, 5, 2, 6, 3, 7, 8, 12, 9, 13, 10, 14, 11, 15}, "NHWC")

	dims := []int64{2, 2, 2, 2}
	assert.Equal(t, 0, Offset(dims, "NHWC", 0, 0, 0, 0))
	assert.Equal(t, 1, Offset(dims, "NHWC", 0, 0, 0, 1))
}

func TestOffsetCHWN(t *testing.T) {
	// Split by c, then h, then w and finally n.
	checkLogicalValues(t, [16]int{0, 8, 1, 9, 2, 10, 3, 11, 4, 12, 5, 13, 6, 14, 7, 15}, "CHWN")
}

func TestOffsetCNHW(t *testing.T) {
	// Split by c, then n, then h and finally w.
	checkLogicalValues(t, [16]int{0, 1, 2, 3, 8, 9, 10, 11, 4, 5, 6, 7, 12, 13, 14, 15}, "CNHW")
}

// permutations returns all the permutations of the letters in s.
func permutations(s string) []string {
	if len(s) <= 1 {
		return []string{s}
	}
	var results []string
	for i := range len(s) {
		rest := s[:i] + s[i+1:]
		for _, p := range permutations(rest) {
			results = append(results, s[i:i+1]+p)
		}
	}
	return results
}

func TestOffsetIsBijection(t *testing.T) {
	formats := permutations(Letters)
	require.Len(t, formats, 24)
	for _, format := range formats {
		for _, dims := range [][]int64{{1, 1, 1, 1}, {2, 3, 4, 5}, {3, 1, 2, 7}, {1, 5, 1, 2}} {
			t.Run(fmt.Sprintf("%s_%v", format, dims), func(t *testing.T) {
				named := DecodeNamedDims(dims, format)
				size := int(named.Size())
				seen := make([]bool, size)
				for n := range int(named.N) {
					for h := range int(named.H) {
						for w := range int(named.W) {
							for c := range int(named.C) {
								offset := Offset(dims, format, n, h, w, c)
								require.GreaterOrEqual(t, offset, 0)
								require.Less(t, offset, size)
								require.Falsef(t, seen[offset], "offset %d reached twice", offset)
								seen[offset] = true
							}
						}
					}
				}
				for offset, ok := range seen {
					require.Truef(t, ok, "offset %d never reached", offset)
				}
			})
		}
	}
}

func TestDecodeNamedDims(t *testing.T) {
	named := DecodeNamedDims([]int64{1, 3, 28, 27}, "NCHW")
	assert.Equal(t, NamedDims{N: 1, H: 28, W: 27, C: 3, NI: 0, HI: 2, WI: 3, CI: 1}, named)
	assert.Equal(t, int64(1*3*28*27), named.Size())

	named = DecodeNamedDims([]int64{1, 28, 27, 3}, "NHWC")
	assert.Equal(t, int64(3), named.C)
	assert.Equal(t, 3, named.CI)
}

func TestContractViolations(t *testing.T) {
	dims := []int64{2, 2, 2, 2}
	require.Panics(t, func() { Offset(dims, "NHW", 0, 0, 0, 0) })
	require.Panics(t, func() { Offset(dims, "NHWW", 0, 0, 0, 0) })
	require.Panics(t, func() { Offset(dims, "NHWX", 0, 0, 0, 0) })
	require.Panics(t, func() { Offset(dims, "NHWCN", 0, 0, 0, 0) })
	require.Panics(t, func() { Offset([]int64{2, 2, 2}, "NHWC", 0, 0, 0, 0) })
	require.Panics(t, func() { DecodeNamedDims([]int64{3}, "NHWC") })
	require.NotPanics(t, func() { ValidateFormat("WCHN") })
}
