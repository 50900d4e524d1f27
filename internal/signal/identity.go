package signal

import (
	"reflect"

	"github.com/mattjoyce/sigslot/internal/pool"
)

// SignalID is the generation-checked identity of a Signal. A slot reused by
// a later signal carries a different generation, so stale ids never match.
type SignalID pool.Handle

func (id SignalID) IsZero() bool   { return id == 0 }
func (id SignalID) String() string { return pool.Handle(id).String() }

// ReceiverID is the generation-checked identity of a receiver. The zero value
// stands for "no receiver" (free-function connections).
type ReceiverID pool.Handle

func (id ReceiverID) IsZero() bool   { return id == 0 }
func (id ReceiverID) String() string { return pool.Handle(id).String() }

// HandlerID identifies the code a connection calls: the entry point of the
// function value. Closures built from the same literal share an identity.
type HandlerID uintptr

func handlerOf(fn any) HandlerID {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return 0
	}
	return HandlerID(v.Pointer())
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
