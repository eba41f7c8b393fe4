// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package status

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	st := New()
	require.True(t, st.Ok())
	require.NoError(t, st.Err())

	st.Set(InvalidArgument, "bad %s", "format")
	assert.False(t, st.Ok())
	assert.Equal(t, InvalidArgument, st.Code())
	assert.Equal(t, "bad format", st.Message())
	assert.Equal(t, "InvalidArgument: bad format", st.Error())

	err := st.Err()
	require.Error(t, err)
	back := FromError(err)
	assert.Equal(t, InvalidArgument, back.Code())
	assert.Equal(t, "bad format", back.Message())

	st.SetOK()
	assert.True(t, st.Ok())
	assert.Empty(t, st.Message())

	var nilStatus *Status
	assert.True(t, nilStatus.Ok())
	assert.Equal(t, "Code(99)", Code(99).String())
}

func TestFromError(t *testing.T) {
	assert.True(t, FromError(nil).Ok())
	st := FromError(errors.New("boom"))
	assert.Equal(t, Internal, st.Code())
	assert.Equal(t, "boom", st.Message())
}

func TestGuard(t *testing.T) {
	st := New()
	Guard(st, "noop", func() { st.SetOK() })
	require.True(t, st.Ok())

	Guard(st, "index", func() {
		var s []int
		_ = s[3]
	})
	require.Equal(t, Internal, st.Code())
	assert.Contains(t, st.Message(), "index")

	st = New()
	Guard(st, "string panic", func() { panic("not an error") })
	require.Equal(t, Internal, st.Code())
	assert.Contains(t, st.Message(), "not an error")

	st = New()
	Guard(st, "throw", func() { Throw(OutOfRange, "copy of %d bytes", 10) })
	require.Equal(t, OutOfRange, st.Code())
	assert.Equal(t, "throw: copy of 10 bytes", st.Message())

	st = New()
	Guard(st, "panicf", func() { exceptions.Panicf("rank %d", 3) })
	require.Equal(t, Internal, st.Code())
	assert.Contains(t, st.Message(), "rank 3")
}
