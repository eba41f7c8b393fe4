package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tfdevice/pkg/config"
	"github.com/gomlx/tfdevice/pkg/host"
	"github.com/gomlx/tfdevice/pkg/host/hosttest"
	"github.com/gomlx/tfdevice/pkg/status"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

type counterKernel struct {
	scale   float32
	calls   atomic.Int32
	deleted *atomic.Int32
}

func newTestRegistry() (*hosttest.Host, *Registry) {
	h := hosttest.NewHost()
	return h, New(h, config.Default())
}

func TestBuilderValidation(t *testing.T) {
	require.Panics(t, func() { NewBuilder[counterKernel]("", "Op", "MY_DEVICE") })
	require.Panics(t, func() { NewBuilder[counterKernel]("Kernel", "Op\x00", "MY_DEVICE") })
	require.Panics(t, func() { NewBuilder[counterKernel]("Kernel", "Op", "") })
	require.Panics(t, func() { NewBuilder[counterKernel]("Kernel", "Op", "MY_DEVICE").Constraint("", dtypes.Float32) })

	b := NewBuilder[counterKernel]("Kernel", "Op", "MY_DEVICE").
		Constraint("T", dtypes.Float32).
		Constraint("T", dtypes.Float64)
	desc := b.Descriptor()
	assert.Equal(t, dtypes.Float64, desc.Constraints["T"])
	desc.Constraints["T"] = dtypes.Int32
	assert.Equal(t, dtypes.Float64, b.Descriptor().Constraints["T"], "Descriptor must return a copy")

	h, reg := newTestRegistry()
	_, err := b.Register(reg)
	require.NoError(t, err)
	require.Panics(t, func() { _, _ = b.Register(reg) }, "builders can only be registered once")
	assert.Len(t, h.Registrations(), 1)
}

func TestRegister(t *testing.T) {
	h, reg := newTestRegistry()
	_, err := NewBuilder[counterKernel]("KernelA", "SharedOp", reg.DeviceType()).
		Constraint("T", dtypes.Float32).
		Constraint("Tidx", dtypes.Int32).
		Register(reg)
	require.NoError(t, err)
	_, err = NewBuilder[counterKernel]("KernelB", "OtherOp", reg.DeviceType()).
		Constraint("T", dtypes.Float64).
		Register(reg)
	require.NoError(t, err)
	// Same op name and constraint set as KernelA.
	_, err = NewBuilder[counterKernel]("KernelC", "SharedOp", reg.DeviceType()).
		Constraint("T", dtypes.Float32).
		Constraint("Tidx", dtypes.Int32).
		Register(reg)
	require.NoError(t, err)

	registrations := h.Registrations()
	require.Len(t, registrations, 3)
	assert.Equal(t, "KernelA", registrations[0].KernelName)
	assert.Equal(t, "SharedOp", registrations[0].OpName)
	assert.Equal(t, config.DefaultDeviceType, registrations[0].DeviceType)
	assert.Equal(t, map[string]dtypes.DType{"T": dtypes.Float32, "Tidx": dtypes.Int32}, registrations[0].Constraints)
	assert.Equal(t, map[string]dtypes.DType{"T": dtypes.Float64}, registrations[1].Constraints)
	assert.Equal(t, "KernelC", registrations[2].KernelName)
	assert.Equal(t, registrations[0].Constraints, registrations[2].Constraints)
	registrations[2].Constraints["T"] = dtypes.Int64
	assert.Equal(t, dtypes.Float32, registrations[0].Constraints["T"], "registrations must not share constraint maps")
	assert.Equal(t, 0, h.LiveBuilders())

	descriptors := reg.Descriptors()
	require.Len(t, descriptors, 3)
	assert.Equal(t, "KernelA", descriptors[0].KernelName)
	assert.Equal(t, "KernelC", descriptors[2].KernelName)
	assert.Equal(t, []string{"T", "Tidx"}, descriptors[0].ConstraintNames())
	descriptors[0].Constraints["T"] = dtypes.Int8
	assert.Equal(t, dtypes.Float32, reg.Descriptors()[0].Constraints["T"])
}

func TestRegisterFailures(t *testing.T) {
	h, reg := newTestRegistry()
	h.FailTypeConstraint("BadConstraint", "T")
	h.FailRegistration("BadOp")

	_, err := NewBuilder[counterKernel]("BadConstraint", "SomeOp", reg.DeviceType()).
		Constraint("T", dtypes.Float32).
		Register(reg)
	require.Error(t, err)
	assert.Equal(t, status.InvalidArgument, status.FromError(err).Code())

	_, err = NewBuilder[counterKernel]("BadRegistration", "BadOp", reg.DeviceType()).
		Constraint("T", dtypes.Float32).
		Register(reg)
	require.Error(t, err)
	assert.Equal(t, status.AlreadyExists, status.FromError(err).Code())

	// A failure abandons only the failing kernel.
	kernel, err := NewBuilder[counterKernel]("Good", "GoodOp", reg.DeviceType()).
		Constraint("T", dtypes.Float32).
		Register(reg)
	require.NoError(t, err)
	require.NotNil(t, kernel)

	assert.Equal(t, 0, h.LiveBuilders(), "failed host builders must be deleted")
	require.Len(t, h.Registrations(), 1)
	assert.Equal(t, "GoodOp", h.Registrations()[0].OpName)
	require.Len(t, reg.Descriptors(), 1)
	assert.Equal(t, "Good", reg.Descriptors()[0].KernelName)
}

// computeCtx is a minimal host.ComputeContext that only records failures.
type computeCtx struct {
	host.ComputeContext
	failure *status.Status
}

func (c *computeCtx) Failure(st *status.Status) {
	cp := *st
	c.failure = &cp
}

func TestLifecycle(t *testing.T) {
	h, reg := newTestRegistry()
	var deleted atomic.Int32
	kernel, err := NewBuilder[counterKernel]("Counter", "CounterOp", reg.DeviceType()).
		Create(func(ctx host.ConstructionContext) (*counterKernel, error) {
			scale, err := host.AttrString(ctx, "scale")
			if err != nil {
				return nil, err
			}
			if scale != "one" {
				return nil, status.Newf(status.InvalidArgument, "unknown scale %q", scale)
			}
			return &counterKernel{scale: 1, deleted: &deleted}, nil
		}).
		Compute(func(k *counterKernel, ctx host.ComputeContext) {
			k.calls.Add(1)
		}).
		Delete(func(k *counterKernel) {
			k.deleted.Add(1)
		}).
		Register(reg)
	require.NoError(t, err)
	registration, err := h.Lookup("CounterOp", reg.DeviceType())
	require.NoError(t, err)

	// Failed creations.
	_, err = registration.Instantiate(map[string]any{})
	require.Error(t, err)
	assert.Equal(t, status.NotFound, status.FromError(err).Code())
	_, err = registration.Instantiate(map[string]any{"scale": "two"})
	require.Error(t, err)
	assert.Equal(t, status.InvalidArgument, status.FromError(err).Code())
	assert.Equal(t, 0, kernel.Live())

	// Two independent instances.
	inst0, err := registration.Instantiate(map[string]any{"scale": "one"})
	require.NoError(t, err)
	inst1, err := registration.Instantiate(map[string]any{"scale": "one"})
	require.NoError(t, err)
	assert.NotEqual(t, inst0.Handle, inst1.Handle)
	assert.Equal(t, 2, kernel.Live())

	ctx := &computeCtx{}
	registration.Callbacks.Compute(inst0.Handle, ctx)
	registration.Callbacks.Compute(inst0.Handle, ctx)
	registration.Callbacks.Compute(inst1.Handle, ctx)
	require.Nil(t, ctx.failure)

	// Delete runs exactly once, and compute after delete fails without running the kernel.
	inst0.Delete()
	inst0.Delete()
	assert.Equal(t, int32(1), deleted.Load())
	assert.Equal(t, 1, kernel.Live())
	registration.Callbacks.Compute(inst0.Handle, ctx)
	require.NotNil(t, ctx.failure)
	assert.Equal(t, status.FailedPrecondition, ctx.failure.Code())

	ctx = &computeCtx{}
	registration.Callbacks.Compute(host.NullInstance, ctx)
	require.NotNil(t, ctx.failure)
	assert.Equal(t, status.FailedPrecondition, ctx.failure.Code())

	inst1.Delete()
	assert.Equal(t, int32(2), deleted.Load())
	assert.Equal(t, 0, kernel.Live())
}

func TestDefaultCreate(t *testing.T) {
	h, reg := newTestRegistry()
	var seen atomic.Pointer[counterKernel]
	_, err := NewBuilder[counterKernel]("Stateless", "StatelessOp", reg.DeviceType()).
		Compute(func(k *counterKernel, ctx host.ComputeContext) {
			seen.Store(k)
		}).
		Register(reg)
	require.NoError(t, err)
	registration, err := h.Lookup("StatelessOp", reg.DeviceType())
	require.NoError(t, err)
	inst, err := registration.Instantiate(nil)
	require.NoError(t, err)
	ctx := &computeCtx{}
	registration.Callbacks.Compute(inst.Handle, ctx)
	require.Nil(t, ctx.failure)
	require.NotNil(t, seen.Load())
	assert.Equal(t, float32(0), seen.Load().scale)
	inst.Delete()
}

func TestComputeFaults(t *testing.T) {
	h, reg := newTestRegistry()
	_, err := NewBuilder[counterKernel]("Faulty", "FaultyOp", reg.DeviceType()).
		Create(func(ctx host.ConstructionContext) (*counterKernel, error) {
			if _, err := host.AttrString(ctx, "panic_on_create"); err == nil {
				panic(errors.New("create exploded"))
			}
			return &counterKernel{}, nil
		}).
		Compute(func(k *counterKernel, ctx host.ComputeContext) {
			if k.calls.Add(1) == 1 {
				status.Throw(status.InvalidArgument, "bad input")
			}
			var nilSlice []int
			_ = nilSlice[3]
		}).
		Register(reg)
	require.NoError(t, err)
	registration, err := h.Lookup("FaultyOp", reg.DeviceType())
	require.NoError(t, err)

	_, err = registration.Instantiate(map[string]any{"panic_on_create": "yes"})
	require.Error(t, err)
	assert.Equal(t, status.Internal, status.FromError(err).Code())

	inst, err := registration.Instantiate(nil)
	require.NoError(t, err)
	ctx := &computeCtx{}
	registration.Callbacks.Compute(inst.Handle, ctx)
	require.NotNil(t, ctx.failure)
	assert.Equal(t, status.InvalidArgument, ctx.failure.Code())
	assert.Contains(t, ctx.failure.Message(), "bad input")

	ctx = &computeCtx{}
	registration.Callbacks.Compute(inst.Handle, ctx)
	require.NotNil(t, ctx.failure)
	assert.Equal(t, status.Internal, ctx.failure.Code())
	inst.Delete()
}

func TestConcurrentInstances(t *testing.T) {
	h, reg := newTestRegistry()
	var deleted atomic.Int32
	kernel, err := NewBuilder[counterKernel]("Concurrent", "ConcurrentOp", reg.DeviceType()).
		Create(func(ctx host.ConstructionContext) (*counterKernel, error) {
			return &counterKernel{deleted: &deleted}, nil
		}).
		Compute(func(k *counterKernel, ctx host.ComputeContext) {
			k.calls.Add(1)
		}).
		Delete(func(k *counterKernel) {
			k.deleted.Add(1)
		}).
		Register(reg)
	require.NoError(t, err)
	registration, err := h.Lookup("ConcurrentOp", reg.DeviceType())
	require.NoError(t, err)

	const numInstances, numComputes = 16, 100
	var wg sync.WaitGroup
	var failures atomic.Int32
	for range numInstances {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, err := registration.Instantiate(nil)
			if err != nil {
				failures.Add(1)
				return
			}
			var computeWg sync.WaitGroup
			for range numComputes {
				computeWg.Add(1)
				go func() {
					defer computeWg.Done()
					ctx := &computeCtx{}
					registration.Callbacks.Compute(inst.Handle, ctx)
					if ctx.failure != nil {
						failures.Add(1)
					}
				}()
			}
			computeWg.Wait()
			inst.Delete()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(0), failures.Load())
	assert.Equal(t, int32(numInstances), deleted.Load())
	assert.Equal(t, 0, kernel.Live())
}
