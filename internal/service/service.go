// Package service provides name-based lookup of platform service objects and
// late-bound method invocation on them.
//
// Objects handed across the boundary are tracked as counted references: every
// Ref obtained from Lookup or CallObject must be released exactly once.
package service

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/thermhint/internal/errors"
)

// Well-known service names.
const (
	PowerService           = "power"
	PerformanceHintService = "performance_hint"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Registry maps service names to objects and accounts for live references.
type Registry struct {
	mu       sync.RWMutex
	services map[string]any
	live     atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{services: make(map[string]any)}
}

// Register publishes obj under name, replacing any previous entry.
func (r *Registry) Register(name string, obj any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = obj
}

// Lookup resolves a service by name and acquires a reference to it.
func (r *Registry) Lookup(name string) (*Ref, error) {
	r.mu.RLock()
	obj, ok := r.services[name]
	r.mu.RUnlock()

	if !ok || obj == nil {
		return nil, errors.New().WithData(errors.ErrServiceNotFound, name)
	}

	return r.acquire(reflect.ValueOf(obj)), nil
}

// Outstanding returns the number of references not yet released.
func (r *Registry) Outstanding() int64 {
	return r.live.Load()
}

func (r *Registry) acquire(v reflect.Value) *Ref {
	r.live.Add(1)
	return &Ref{reg: r, obj: v}
}

// Ref is a counted reference to an object living behind the boundary.
type Ref struct {
	reg      *Registry
	obj      reflect.Value
	released atomic.Bool
}

// Value returns the underlying object.
func (r *Ref) Value() any {
	return r.obj.Interface()
}

// Release drops the reference. Releasing twice is a no-op.
func (r *Ref) Release() {
	if r == nil {
		return
	}
	if r.released.CompareAndSwap(false, true) {
		r.reg.live.Add(-1)
	}
}

// Released reports whether Release has been called.
func (r *Ref) Released() bool {
	return r.released.Load()
}

// Method resolves an exported method by name and checks it against
// signature, which must be a func type without receiver. A method whose
// results end with an error is accepted when the remaining results match.
func (r *Ref) Method(name string, signature reflect.Type) (*Method, error) {
	errFactory := errors.New()

	if r.Released() {
		return nil, errFactory.WithData(errors.ErrReferenceReleased, name)
	}

	mt, ok := r.obj.Type().MethodByName(name)
	if !ok {
		return nil, errFactory.WithData(errors.ErrMethodNotFound, name)
	}
	m := r.obj.Method(mt.Index)

	returnsErr, ok := matches(m.Type(), signature)
	if !ok {
		return nil, errFactory.WithData(errors.ErrMethodNotFound,
			fmt.Sprintf("%s%s (have %s)", name, signature.String()[4:], m.Type().String()[4:]))
	}

	return &Method{
		name:       name,
		ref:        r,
		fn:         m,
		recv:       r.obj.Type(),
		index:      mt.Index,
		returnsErr: returnsErr,
	}, nil
}

func matches(have, want reflect.Type) (returnsErr, ok bool) {
	if have.NumIn() != want.NumIn() || have.IsVariadic() != want.IsVariadic() {
		return false, false
	}
	for i := 0; i < have.NumIn(); i++ {
		if have.In(i) != want.In(i) {
			return false, false
		}
	}

	out := have.NumOut()
	if out == want.NumOut()+1 && have.Out(out-1) == errorType {
		returnsErr = true
		out--
	}
	if out != want.NumOut() {
		return false, false
	}
	for i := 0; i < out; i++ {
		h, w := have.Out(i), want.Out(i)
		if h == w {
			continue
		}
		// Interface results accept any object assignable to them.
		if w.Kind() != reflect.Interface || !h.AssignableTo(w) {
			return false, false
		}
	}

	return returnsErr, true
}

// Signature returns the func type of a typed nil function value, e.g.
// Signature((func(int32) float32)(nil)).
func Signature(fn any) reflect.Type {
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func {
		panic(fmt.Sprintf("service: signature must be a func type, got %v", t))
	}
	return t
}
