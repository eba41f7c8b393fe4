// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package registry

import (
	"sync"
	"sync/atomic"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tfdevice/pkg/host"
	"github.com/gomlx/tfdevice/pkg/status"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Kernel is a registered kernel and the arena of its live instances.
type Kernel[T any] struct {
	descriptor Descriptor
	create     CreateFn[T]
	compute    ComputeFn[T]
	delete     DeleteFn[T]

	lastHandle atomic.Uint64

	mu        sync.Mutex
	instances map[host.InstanceHandle]*instance[T]
}

// instance holds the state of one kernel instance. Computes hold the read lock, delete holds
// the write lock.
type instance[T any] struct {
	mu      sync.RWMutex
	state   *T
	deleted bool
}

func newKernel[T any](desc Descriptor, create CreateFn[T], compute ComputeFn[T], deleteFn DeleteFn[T]) *Kernel[T] {
	return &Kernel[T]{
		descriptor: desc,
		create:     create,
		compute:    compute,
		delete:     deleteFn,
		instances:  make(map[host.InstanceHandle]*instance[T]),
	}
}

// Descriptor returns a copy of the kernel's descriptor.
func (k *Kernel[T]) Descriptor() Descriptor {
	return k.descriptor.Clone()
}

// Live returns the number of instances created and not yet deleted.
func (k *Kernel[T]) Live() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.instances)
}

func (k *Kernel[T]) callbacks() host.Callbacks {
	return host.Callbacks{
		Create:  k.Create,
		Compute: k.Compute,
		Delete:  k.Delete,
	}
}

// Create runs the kernel's create function and returns the handle of the new instance, or
// host.NullInstance if the creation failed. Failures are reported with ctx.Failure.
func (k *Kernel[T]) Create(ctx host.ConstructionContext) host.InstanceHandle {
	var state *T
	var err error
	if k.create == nil {
		state = new(T)
	} else {
		exception := exceptions.Try(func() { state, err = k.create(ctx) })
		if exception != nil {
			err = errors.Errorf("panic during creation: %v", exception)
		} else if err == nil && state == nil {
			err = errors.New("create returned no state")
		}
	}
	if err != nil {
		klog.Errorf("Failed to create instance of kernel %q: %+v", k.descriptor.KernelName, err)
		st := status.FromError(err)
		st.Set(st.Code(), "kernel %q: %s", k.descriptor.KernelName, st.Message())
		ctx.Failure(st)
		return host.NullInstance
	}

	handle := host.InstanceHandle(k.lastHandle.Add(1))
	k.mu.Lock()
	k.instances[handle] = &instance[T]{state: state}
	k.mu.Unlock()
	klog.V(1).Infof("created instance %d of kernel %q", handle, k.descriptor.KernelName)
	return handle
}

func (k *Kernel[T]) lookup(handle host.InstanceHandle) *instance[T] {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.instances[handle]
}

// Compute runs the kernel's compute function on the instance.
//
// Computing an unknown or deleted instance fails ctx with FailedPrecondition. A panic in the
// compute function fails ctx instead of crashing the host.
func (k *Kernel[T]) Compute(handle host.InstanceHandle, ctx host.ComputeContext) {
	inst := k.lookup(handle)
	if inst == nil {
		ctx.Failure(status.Newf(status.FailedPrecondition,
			"kernel %q: compute called on unknown or deleted instance %d", k.descriptor.KernelName, handle))
		return
	}
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	if inst.deleted {
		ctx.Failure(status.Newf(status.FailedPrecondition,
			"kernel %q: compute called on deleted instance %d", k.descriptor.KernelName, handle))
		return
	}
	if k.compute == nil {
		return
	}
	st := status.New()
	status.Guard(st, k.descriptor.KernelName, func() { k.compute(inst.state, ctx) })
	if !st.Ok() {
		ctx.Failure(st)
	}
}

// Delete runs the kernel's delete function on the instance and forgets it. It waits for
// in-flight computes of the instance to finish. Deleting an unknown handle is a logged no-op.
func (k *Kernel[T]) Delete(handle host.InstanceHandle) {
	k.mu.Lock()
	inst, found := k.instances[handle]
	delete(k.instances, handle)
	k.mu.Unlock()
	if !found {
		klog.Warningf("kernel %q: delete called on unknown or already deleted instance %d, ignoring",
			k.descriptor.KernelName, handle)
		return
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.deleted = true
	if k.delete != nil {
		st := status.New()
		status.Guard(st, k.descriptor.KernelName+" delete", func() { k.delete(inst.state) })
		if !st.Ok() {
			klog.Errorf("kernel %q: failed to delete instance %d: %s", k.descriptor.KernelName, handle, st)
		}
	}
	inst.state = nil
	klog.V(1).Infof("deleted instance %d of kernel %q", handle, k.descriptor.KernelName)
}
