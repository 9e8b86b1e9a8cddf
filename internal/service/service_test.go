package service_test

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	id int64
}

func (w *widget) ID() int64 { return w.id }

type factory struct {
	made int
}

func (f *factory) Headroom(seconds int32) float32 { return float32(seconds) / 4 }

func (f *factory) Make(ids []int32, target int64) *widget {
	f.made++
	if len(ids) == 0 {
		return nil
	}
	return &widget{id: target}
}

func (f *factory) Explode() { panic("platform exception") }

func (f *factory) Fail(code int32) error {
	if code != 0 {
		return fmt.Errorf("code %d", code)
	}
	return nil
}

func TestLookupAndRelease(t *testing.T) {
	reg := service.NewRegistry()
	reg.Register(service.PowerService, &factory{})

	ref, err := reg.Lookup(service.PowerService)
	require.NoError(t, err)
	assert.EqualValues(t, 1, reg.Outstanding())

	ref.Release()
	ref.Release()
	assert.EqualValues(t, 0, reg.Outstanding())
	assert.True(t, ref.Released())

	_, err = reg.Lookup("missing")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrServiceNotFound))
}

func TestMethodResolution(t *testing.T) {
	reg := service.NewRegistry()
	reg.Register(service.PowerService, &factory{})
	ref, err := reg.Lookup(service.PowerService)
	require.NoError(t, err)
	defer ref.Release()

	m, err := ref.Method("Headroom", service.Signature((func(int32) float32)(nil)))
	require.NoError(t, err)
	got, err := m.CallFloat(int32(2))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-6)

	_, err = ref.Method("Headroom", service.Signature((func(int64) float32)(nil)))
	assert.True(t, errors.HasCode(err, errors.ErrMethodNotFound))

	_, err = ref.Method("SetThreads", service.Signature((func([]int32))(nil)))
	assert.True(t, errors.HasCode(err, errors.ErrMethodNotFound))
}

func TestCallObjectAcquiresReference(t *testing.T) {
	reg := service.NewRegistry()
	f := &factory{}
	reg.Register(service.PerformanceHintService, f)
	ref, err := reg.Lookup(service.PerformanceHintService)
	require.NoError(t, err)

	create, err := ref.Method("Make", service.Signature((func([]int32, int64) *widget)(nil)))
	require.NoError(t, err)

	obj, err := create.CallObject([]int32{1}, int64(42))
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.EqualValues(t, 2, reg.Outstanding())

	id, err := obj.Method("ID", service.Signature((func() int64)(nil)))
	require.NoError(t, err)
	v, err := id.CallLong()
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)

	none, err := create.CallObject([]int32{}, int64(1))
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.Equal(t, 2, f.made)

	obj.Release()
	ref.Release()
	assert.EqualValues(t, 0, reg.Outstanding())

	_, err = id.CallLong()
	assert.True(t, errors.HasCode(err, errors.ErrReferenceReleased))
}

func TestExceptionsAreReported(t *testing.T) {
	reg := service.NewRegistry()
	reg.Register(service.PowerService, &factory{})
	ref, err := reg.Lookup(service.PowerService)
	require.NoError(t, err)
	defer ref.Release()

	explode, err := ref.Method("Explode", service.Signature((func())(nil)))
	require.NoError(t, err)
	err = explode.CallVoid()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrBoundaryCall))
	var exc *service.Exception
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, "Explode", exc.Method)

	fail, err := ref.Method("Fail", service.Signature((func(int32))(nil)))
	require.NoError(t, err)
	require.NoError(t, fail.CallVoid(int32(0)))
	err = fail.CallVoid(int32(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 3")
}

func TestCallConvertsArguments(t *testing.T) {
	reg := service.NewRegistry()
	reg.Register(service.PowerService, &factory{})
	ref, err := reg.Lookup(service.PowerService)
	require.NoError(t, err)
	defer ref.Release()

	m, err := ref.Method("Headroom", service.Signature((func(int32) float32)(nil)))
	require.NoError(t, err)

	got, err := m.CallFloat(8)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 1e-6)

	_, err = m.CallFloat("eight")
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
}

func (f *factory) MakeAny(ids []int32) any {
	if len(ids) == 0 {
		return (*widget)(nil)
	}
	return &widget{id: int64(ids[0])}
}

func TestInterfaceResults(t *testing.T) {
	reg := service.NewRegistry()
	reg.Register(service.PerformanceHintService, &factory{})
	ref, err := reg.Lookup(service.PerformanceHintService)
	require.NoError(t, err)
	defer ref.Release()

	// A concrete result satisfies an interface-typed signature.
	_, err = ref.Method("Make", service.Signature((func([]int32, int64) any)(nil)))
	require.NoError(t, err)

	m, err := ref.Method("MakeAny", service.Signature((func([]int32) any)(nil)))
	require.NoError(t, err)

	obj, err := m.CallObject([]int32{9})
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.EqualValues(t, 9, obj.Value().(*widget).id)
	obj.Release()

	obj, err = m.CallObject([]int32{})
	require.NoError(t, err)
	assert.Nil(t, obj, "typed nil inside an interface is no object")
}

func TestMethodRebind(t *testing.T) {
	reg := service.NewRegistry()
	reg.Register(service.PerformanceHintService, &factory{})
	ref, err := reg.Lookup(service.PerformanceHintService)
	require.NoError(t, err)
	defer ref.Release()

	create, err := ref.Method("Make", service.Signature((func([]int32, int64) *widget)(nil)))
	require.NoError(t, err)

	first, err := create.CallObject([]int32{1}, int64(1))
	require.NoError(t, err)
	second, err := create.CallObject([]int32{1}, int64(2))
	require.NoError(t, err)

	id, err := first.Method("ID", service.Signature((func() int64)(nil)))
	require.NoError(t, err)

	rebound, err := id.On(second)
	require.NoError(t, err)
	v, err := rebound.CallLong()
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)

	_, err = id.On(ref)
	assert.True(t, errors.HasCode(err, errors.ErrMethodNotFound))

	first.Release()
	second.Release()
}
