package host_test

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tfdevice/pkg/host"
	"github.com/gomlx/tfdevice/pkg/host/hosttest"
	"github.com/gomlx/tfdevice/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttrString(t *testing.T) {
	ctx := hosttest.NewConstruction(map[string]any{
		"data_format": "NCHW",
		"empty":       "",
		"list":        []string{"a", "bc"},
	})
	got, err := host.AttrString(ctx, "data_format")
	require.NoError(t, err)
	assert.Equal(t, "NCHW", got)

	got, err = host.AttrString(ctx, "empty")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, err = host.AttrString(ctx, "list")
	require.Error(t, err)

	_, err = host.AttrString(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, status.NotFound, status.FromError(err).Code())
	assert.Nil(t, ctx.Failed(), "AttrString never marks the construction as failed")
}

func TestTensor(t *testing.T) {
	data := make([]byte, 2*3*4)
	tensor := host.NewTensor(dtypes.Float32, []int64{2, 3}, data)
	assert.Equal(t, dtypes.Float32, tensor.DType())
	assert.Equal(t, 2, tensor.NumDims())
	assert.Equal(t, int64(3), tensor.Dim(1))
	assert.Equal(t, int64(6), tensor.ElementCount())

	dims := tensor.Dims()
	dims[0] = 100
	assert.Equal(t, []int64{2, 3}, tensor.Dims(), "Dims must return a copy")

	flat := host.Flat[float32](tensor)
	require.Len(t, flat, 6)
	flat[5] = 7
	assert.Equal(t, float32(7), host.Flat[float32](tensor)[5], "Flat must alias the tensor memory")

	require.Panics(t, func() { host.Flat[int32](tensor) })
	require.Panics(t, func() { host.NewTensor(dtypes.Float32, []int64{2, 4}, data) })

	empty := host.NewTensor(dtypes.Float32, []int64{0, 3}, nil)
	assert.Equal(t, int64(0), empty.ElementCount())
	assert.Nil(t, host.Flat[float32](empty))

	nhwc := host.NewTensor(dtypes.Float32, []int64{1, 2, 3, 1}, data)
	named := nhwc.NamedDims("NHWC")
	assert.Equal(t, int64(2), named.H)
	assert.Equal(t, int64(1), named.C)
	named = nhwc.NamedDims("NCHW")
	assert.Equal(t, int64(2), named.C)
	require.Panics(t, func() { tensor.NamedDims("NHWC") })
}
