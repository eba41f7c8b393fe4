// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hosttest

import (
	"unsafe"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tfdevice/pkg/config"
	"github.com/gomlx/tfdevice/pkg/device"
	"github.com/gomlx/tfdevice/pkg/host"
	"github.com/gomlx/tfdevice/pkg/status"
	"github.com/pkg/errors"
)

// Runtime plays the host's device side: it loads the plugin, creates device 0, a stream
// executor and one stream.
type Runtime struct {
	Params   *device.RegistrationParams
	Platform device.PlatformFns
	Device   *device.Device
	Executor device.StreamExecutor
	Stream   *device.Stream

	// OutputDType is the dtype the host expects for kernel outputs.
	OutputDType dtypes.DType

	executorTable *device.StreamExecutorTable
	memory        []*device.DeviceMemoryBase
}

// NewRuntime initializes the plugin for the identity and checks the struct sizes it reports.
func NewRuntime(identity config.Identity) (*Runtime, error) {
	st := status.New()
	r := &Runtime{
		Params: &device.RegistrationParams{
			Platform:    &device.Platform{},
			PlatformFns: &device.PlatformFnsTable{},
		},
		OutputDType: dtypes.Float32,
	}
	device.InitPlugin(identity, r.Params, st)
	if err := st.Err(); err != nil {
		return nil, errors.WithMessage(err, "failed to initialize plugin")
	}
	for _, check := range []struct {
		name      string
		got, want uint64
	}{
		{"RegistrationParams", r.Params.StructSize, device.RegistrationParamsStructSize},
		{"Platform", r.Params.Platform.StructSize, device.PlatformStructSize},
		{"PlatformFns", r.Params.PlatformFns.StructSize, device.PlatformFnsStructSize},
	} {
		if err := device.CheckStructSize(check.name, check.got, check.want); err != nil {
			return nil, err
		}
	}
	r.Platform = r.Params.PlatformFns.Fns

	if count := r.Platform.DeviceCount(st); count < 1 {
		return nil, errors.Errorf("plugin reports %d devices", count)
	}
	r.Device = &device.Device{}
	r.Platform.CreateDevice(&device.CreateDeviceParams{Ordinal: 0, Device: r.Device}, st)
	if err := st.Err(); err != nil {
		return nil, errors.WithMessage(err, "failed to create device")
	}
	r.executorTable = &device.StreamExecutorTable{}
	r.Platform.CreateStreamExecutor(r.executorTable, st)
	if err := st.Err(); err != nil {
		return nil, errors.WithMessage(err, "failed to create stream executor")
	}
	r.Executor = r.executorTable.Fns
	r.Stream = r.Executor.CreateStream(r.Device, st)
	if err := st.Err(); err != nil {
		return nil, errors.WithMessage(err, "failed to create stream")
	}
	return r, nil
}

// NewContext returns a compute context with the given inputs.
func (r *Runtime) NewContext(inputs ...*host.Tensor) *Context {
	return &Context{
		runtime:       r,
		inputs:        inputs,
		outputs:       make(map[int]*host.Tensor),
		inputFailures: make(map[int]*status.Status),
	}
}

// Upload allocates device memory for a tensor with the given dims and copies flat into it.
// The memory is released by Runtime.Close.
func Upload[T dtypes.Supported](r *Runtime, dims []int64, flat []T) (*host.Tensor, error) {
	var zero T
	size := uint64(len(flat)) * uint64(unsafe.Sizeof(zero))
	st := status.New()
	mem := &device.DeviceMemoryBase{}
	r.Executor.Allocate(r.Device, size, 0, mem, st)
	if err := st.Err(); err != nil {
		return nil, errors.WithMessagef(err, "failed to allocate %d bytes", size)
	}
	r.memory = append(r.memory, mem)
	if size > 0 {
		src := unsafe.Slice((*byte)(unsafe.Pointer(&flat[0])), size)
		r.Executor.MemcpyHToD(r.Device, r.Stream, mem, src, size, st)
		if err := st.Err(); err != nil {
			return nil, errors.WithMessage(err, "failed to copy tensor to device")
		}
	}
	var t *host.Tensor
	status.Guard(st, "Upload", func() {
		t = host.NewTensor(dtypes.FromGenericsType[T](), dims, mem.Opaque)
	})
	if err := st.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Download copies the tensor contents from the device into a new slice.
func Download[T dtypes.Supported](r *Runtime, t *host.Tensor) ([]T, error) {
	flat := make([]T, t.ElementCount())
	if len(flat) == 0 {
		return flat, nil
	}
	var zero T
	size := uint64(len(flat)) * uint64(unsafe.Sizeof(zero))
	dst := unsafe.Slice((*byte)(unsafe.Pointer(&flat[0])), size)
	st := status.New()
	src := &device.DeviceMemoryBase{Opaque: t.Bytes(), Size: uint64(len(t.Bytes()))}
	r.Executor.SyncMemcpyDToH(r.Device, dst, src, size, st)
	if err := st.Err(); err != nil {
		return nil, err
	}
	return flat, nil
}

// Close releases the uploaded tensors, the stream, the executor and the device.
func (r *Runtime) Close() {
	st := status.New()
	for _, mem := range r.memory {
		r.Executor.Deallocate(r.Device, mem, st)
	}
	r.memory = nil
	if r.Stream != nil {
		r.Executor.DestroyStream(r.Device, r.Stream, st)
		r.Stream = nil
	}
	r.Platform.DestroyStreamExecutor(r.executorTable, st)
	r.Platform.DestroyDevice(r.Device, st)
	r.Params.DestroyPlatformFns(r.Params.PlatformFns)
	r.Params.DestroyPlatform(r.Params.Platform)
}
