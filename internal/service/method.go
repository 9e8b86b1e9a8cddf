package service

import (
	"fmt"
	"reflect"

	"codeberg.org/mutker/thermhint/internal/errors"
)

// Exception is raised when an invoked method panics or returns an error.
type Exception struct {
	Method string
	Cause  any
}

func (e *Exception) Error() string {
	return fmt.Sprintf("exception in %s: %v", e.Method, e.Cause)
}

func (e *Exception) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}

// Method is a bound, signature-checked method on a referenced object.
type Method struct {
	name       string
	ref        *Ref
	fn         reflect.Value
	recv       reflect.Type
	index      int
	returnsErr bool
}

func (m *Method) Name() string {
	return m.name
}

// On rebinds the resolved method to another object of the same type
// without resolving it again.
func (m *Method) On(ref *Ref) (*Method, error) {
	errFactory := errors.New()

	if ref == nil || ref.Released() {
		return nil, errFactory.WithData(errors.ErrReferenceReleased, m.name)
	}
	if ref.obj.Type() != m.recv {
		return nil, errFactory.WithData(errors.ErrMethodNotFound,
			fmt.Sprintf("%s on %s (resolved on %s)", m.name, ref.obj.Type(), m.recv))
	}

	bound := *m
	bound.ref = ref
	bound.fn = ref.obj.Method(m.index)

	return &bound, nil
}

// Call invokes the method. Panics and trailing error results are reported
// as an *Exception wrapped in an ErrBoundaryCall error.
func (m *Method) Call(args ...any) (results []reflect.Value, err error) {
	errFactory := errors.New()

	if m.ref.Released() {
		return nil, errFactory.WithData(errors.ErrReferenceReleased, m.name)
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		want := m.fn.Type().In(i)
		v := reflect.ValueOf(arg)
		if !v.IsValid() {
			v = reflect.Zero(want)
		} else if v.Type() != want {
			if !v.Type().ConvertibleTo(want) {
				return nil, errFactory.WithData(errors.ErrInvalidArgument,
					fmt.Sprintf("%s: argument %d is %s, want %s", m.name, i, v.Type(), want))
			}
			v = v.Convert(want)
		}
		in[i] = v
	}

	defer func() {
		if p := recover(); p != nil {
			results = nil
			err = errFactory.Wrap(errors.ErrBoundaryCall, &Exception{Method: m.name, Cause: p})
		}
	}()

	out := m.fn.Call(in)
	if m.returnsErr {
		last := out[len(out)-1]
		out = out[:len(out)-1]
		if !last.IsNil() {
			return nil, errFactory.Wrap(errors.ErrBoundaryCall,
				&Exception{Method: m.name, Cause: last.Interface().(error)})
		}
	}

	return out, nil
}

// CallVoid invokes a method without results.
func (m *Method) CallVoid(args ...any) error {
	_, err := m.Call(args...)
	return err
}

// CallFloat invokes a method returning a float32.
func (m *Method) CallFloat(args ...any) (float32, error) {
	out, err := m.Call(args...)
	if err != nil {
		return 0, err
	}
	return float32(out[0].Float()), nil
}

// CallLong invokes a method returning an integer.
func (m *Method) CallLong(args ...any) (int64, error) {
	out, err := m.Call(args...)
	if err != nil {
		return 0, err
	}
	return out[0].Int(), nil
}

// CallObject invokes a method returning an object and acquires a reference
// to it. A nil result yields a nil Ref and no error.
func (m *Method) CallObject(args ...any) (*Ref, error) {
	out, err := m.Call(args...)
	if err != nil {
		return nil, err
	}

	v := out[0]
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return nil, nil
		}
	}

	return m.ref.reg.acquire(v), nil
}
