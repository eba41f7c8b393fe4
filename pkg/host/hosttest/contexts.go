// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hosttest

import (
	"fmt"

	"github.com/gomlx/tfdevice/pkg/device"
	"github.com/gomlx/tfdevice/pkg/host"
	"github.com/gomlx/tfdevice/pkg/status"
	"github.com/pkg/errors"
)

// Construction implements host.ConstructionContext over a map of attributes.
// Attribute values may be a string or a []string.
type Construction struct {
	Attrs   map[string]any
	failure *status.Status
}

// Compile-time check.
var _ host.ConstructionContext = (*Construction)(nil)

// NewConstruction returns a construction context with the given attributes.
func NewConstruction(attrs map[string]any) *Construction {
	return &Construction{Attrs: attrs}
}

// AttrSize implements host.ConstructionContext.
func (c *Construction) AttrSize(name string, st *status.Status) (listSize, totalSize int32) {
	st.SetOK()
	switch v := c.Attrs[name].(type) {
	case string:
		return host.ScalarAttr, int32(len(v))
	case []string:
		for _, s := range v {
			totalSize += int32(len(s))
		}
		return int32(len(v)), totalSize
	case nil:
		st.Set(status.NotFound, "attribute %q not found", name)
	default:
		st.Set(status.InvalidArgument, "attribute %q has unsupported type %T", name, v)
	}
	return 0, 0
}

// AttrString implements host.ConstructionContext.
func (c *Construction) AttrString(name string, buf []byte, st *status.Status) {
	st.SetOK()
	v, ok := c.Attrs[name].(string)
	if !ok {
		st.Set(status.InvalidArgument, "attribute %q is not a string", name)
		return
	}
	if len(buf) != len(v) {
		st.Set(status.InvalidArgument, "attribute %q has %d bytes, buffer has %d", name, len(v), len(buf))
		return
	}
	copy(buf, v)
}

// Failure implements host.ConstructionContext.
func (c *Construction) Failure(st *status.Status) {
	cp := *st
	c.failure = &cp
}

// Failed returns the failure reported by the kernel, or nil.
func (c *Construction) Failed() *status.Status {
	return c.failure
}

// Context implements host.ComputeContext for one compute call.
//
// Outputs are allocated on the Runtime's device through the plugin's stream executor, and are
// released with Release.
type Context struct {
	runtime *Runtime
	inputs  []*host.Tensor
	outputs map[int]*host.Tensor
	memory  []*device.DeviceMemoryBase

	// Injected failures.
	streamFailure, allocFailure *status.Status
	inputFailures               map[int]*status.Status

	allocations int
	failure     *status.Status
}

// Compile-time check.
var _ host.ComputeContext = (*Context)(nil)

// FailStream makes Stream fail with a status of the given code.
func (c *Context) FailStream(code status.Code) {
	c.streamFailure = status.Newf(code, "injected stream failure")
}

// FailInput makes Input(i) fail with a status of the given code.
func (c *Context) FailInput(i int, code status.Code) {
	c.inputFailures[i] = status.Newf(code, "injected failure of input %d", i)
}

// FailAllocation makes AllocateOutput fail with a status of the given code.
func (c *Context) FailAllocation(code status.Code) {
	c.allocFailure = status.Newf(code, "injected allocation failure")
}

// Stream implements host.ComputeContext.
func (c *Context) Stream(st *status.Status) *device.Stream {
	st.CopyFrom(c.streamFailure)
	if !st.Ok() {
		return nil
	}
	return c.runtime.Stream
}

// Input implements host.ComputeContext.
func (c *Context) Input(i int, st *status.Status) *host.Tensor {
	st.CopyFrom(c.inputFailures[i])
	if !st.Ok() {
		return nil
	}
	if i < 0 || i >= len(c.inputs) {
		st.Set(status.InvalidArgument, "input %d requested, kernel has %d inputs", i, len(c.inputs))
		return nil
	}
	return c.inputs[i]
}

// AllocateOutput implements host.ComputeContext.
func (c *Context) AllocateOutput(i int, dims []int64, byteLen uint64, st *status.Status) *host.Tensor {
	st.CopyFrom(c.allocFailure)
	if !st.Ok() {
		return nil
	}
	mem := &device.DeviceMemoryBase{}
	c.runtime.Executor.Allocate(c.runtime.Device, byteLen, 0, mem, st)
	if !st.Ok() {
		return nil
	}
	var t *host.Tensor
	status.Guard(st, fmt.Sprintf("AllocateOutput(%d)", i), func() {
		t = host.NewTensor(c.runtime.OutputDType, dims, mem.Opaque)
	})
	if !st.Ok() {
		c.runtime.Executor.Deallocate(c.runtime.Device, mem, status.New())
		return nil
	}
	c.allocations++
	c.memory = append(c.memory, mem)
	c.outputs[i] = t
	return t
}

// Failure implements host.ComputeContext.
func (c *Context) Failure(st *status.Status) {
	cp := *st
	c.failure = &cp
}

// Failed returns the failure reported by the kernel, or nil if the compute call succeeded.
func (c *Context) Failed() *status.Status {
	return c.failure
}

// Err returns the failure as an error, or nil.
func (c *Context) Err() error {
	if c.failure == nil {
		return nil
	}
	return errors.WithMessage(c.failure.Err(), "compute failed")
}

// Output returns the i-th output, or nil if it was not allocated.
func (c *Context) Output(i int) *host.Tensor {
	return c.outputs[i]
}

// Allocations returns the number of AllocateOutput calls that succeeded.
func (c *Context) Allocations() int {
	return c.allocations
}

// Release deallocates the device memory of the outputs.
func (c *Context) Release() {
	st := status.New()
	for _, mem := range c.memory {
		c.runtime.Executor.Deallocate(c.runtime.Device, mem, st)
	}
	c.memory = nil
	c.outputs = make(map[int]*host.Tensor)
}
