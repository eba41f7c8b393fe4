// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hosttest

import (
	"github.com/gomlx/tfdevice/pkg/host"
	"github.com/pkg/errors"
)

// Instance of a registered kernel, created by Registration.Instantiate.
type Instance struct {
	Registration *Registration
	Handle       host.InstanceHandle
}

// Instantiate calls the kernel's create callback with the given attributes.
//
// It returns an error if the kernel reported a construction failure or returned the null
// instance handle.
func (r *Registration) Instantiate(attrs map[string]any) (*Instance, error) {
	inst := &Instance{Registration: r}
	if r.Callbacks.Create == nil {
		return inst, nil
	}
	ctx := NewConstruction(attrs)
	inst.Handle = r.Callbacks.Create(ctx)
	if failed := ctx.Failed(); failed != nil {
		return nil, errors.WithMessagef(failed.Err(), "construction of kernel %q failed", r.KernelName)
	}
	if inst.Handle == host.NullInstance {
		return nil, errors.Errorf("construction of kernel %q returned a null instance", r.KernelName)
	}
	return inst, nil
}

// Compute calls the kernel's compute callback and returns the failure it reported, if any.
func (inst *Instance) Compute(ctx *Context) error {
	if inst.Registration.Callbacks.Compute != nil {
		inst.Registration.Callbacks.Compute(inst.Handle, ctx)
	}
	return ctx.Err()
}

// Delete calls the kernel's delete callback.
func (inst *Instance) Delete() {
	if inst.Registration.Callbacks.Delete != nil {
		inst.Registration.Callbacks.Delete(inst.Handle)
	}
}
