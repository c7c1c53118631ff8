package memory

import (
	"reflect"
	"unsafe"
)

var emptyInterfaceSize = unsafe.Sizeof(any(nil))

// Sizeof estimates the shallow footprint of v in bytes: the value itself
// plus storage it owns directly (a slice's backing array, a string's bytes,
// a map's slot groups, a channel's buffer). Pointers are not followed, so
// the elements of a []*T or a nested container count as one word each.
//
// A nil v reports the size of an empty interface.
func Sizeof(v any) uintptr {
	if v == nil {
		return emptyInterfaceSize
	}
	rv := reflect.ValueOf(v)
	return rv.Type().Size() + directStorage(rv)
}

func directStorage(rv reflect.Value) uintptr {
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return 0
		}
		return uintptr(rv.Cap()) * rv.Type().Elem().Size()
	case reflect.String:
		return uintptr(rv.Len())
	case reflect.Map:
		if rv.IsNil() {
			return 0
		}
		return mapStorage(rv.Type(), rv.Len())
	case reflect.Chan:
		if rv.IsNil() {
			return 0
		}
		return chanHeaderSize + uintptr(rv.Cap())*rv.Type().Elem().Size()
	}
	return 0
}

const (
	mapHeaderSize  = 48
	chanHeaderSize = 96
	groupSlots     = 8
)

// mapStorage approximates a swiss-table map: slots grouped by eight with an
// 8-byte control word per group, kept at most 7/8 full.
func mapStorage(t reflect.Type, n int) uintptr {
	slots := (n*8 + 6) / 7
	groups := (slots + groupSlots - 1) / groupSlots
	if groups == 0 {
		groups = 1
	}
	group := 8 + groupSlots*(t.Key().Size()+t.Elem().Size())
	return mapHeaderSize + uintptr(groups)*group
}

// DeepSizeof follows pointers, slices, maps and interfaces and sums every
// reachable allocation once. Shared and self-referential values terminate.
func DeepSizeof(v any) uintptr {
	if v == nil {
		return emptyInterfaceSize
	}
	w := &walker{seen: make(map[seenKey]struct{})}
	rv := reflect.ValueOf(v)
	return rv.Type().Size() + w.owned(rv)
}

type seenKey struct {
	ptr uintptr
	typ reflect.Type
}

type walker struct {
	seen map[seenKey]struct{}
}

func (w *walker) visit(ptr uintptr, t reflect.Type) bool {
	k := seenKey{ptr, t}
	if _, ok := w.seen[k]; ok {
		return false
	}
	w.seen[k] = struct{}{}
	return true
}

// owned returns the bytes reachable from rv that are not stored inline in it.
func (w *walker) owned(rv reflect.Value) uintptr {
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() || !w.visit(rv.Pointer(), rv.Type()) {
			return 0
		}
		e := rv.Elem()
		return e.Type().Size() + w.owned(e)

	case reflect.Interface:
		if rv.IsNil() {
			return 0
		}
		e := rv.Elem()
		n := w.owned(e)
		if !pointerShaped(e.Kind()) {
			n += e.Type().Size()
		}
		return n

	case reflect.Slice:
		if rv.IsNil() || !w.visit(rv.Pointer(), rv.Type()) {
			return 0
		}
		n := uintptr(rv.Cap()) * rv.Type().Elem().Size()
		if hasIndirect(rv.Type().Elem()) {
			for i := 0; i < rv.Len(); i++ {
				n += w.owned(rv.Index(i))
			}
		}
		return n

	case reflect.String:
		return uintptr(rv.Len())

	case reflect.Map:
		if rv.IsNil() || !w.visit(rv.Pointer(), rv.Type()) {
			return 0
		}
		n := mapStorage(rv.Type(), rv.Len())
		if hasIndirect(rv.Type().Key()) || hasIndirect(rv.Type().Elem()) {
			it := rv.MapRange()
			for it.Next() {
				n += w.owned(it.Key()) + w.owned(it.Value())
			}
		}
		return n

	case reflect.Chan:
		if rv.IsNil() || !w.visit(rv.Pointer(), rv.Type()) {
			return 0
		}
		return chanHeaderSize + uintptr(rv.Cap())*rv.Type().Elem().Size()

	case reflect.Array:
		if !hasIndirect(rv.Type().Elem()) {
			return 0
		}
		var n uintptr
		for i := 0; i < rv.Len(); i++ {
			n += w.owned(rv.Index(i))
		}
		return n

	case reflect.Struct:
		var n uintptr
		for i := 0; i < rv.NumField(); i++ {
			n += w.owned(rv.Field(i))
		}
		return n
	}
	return 0
}

func pointerShaped(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	}
	return false
}

// hasIndirect reports whether values of t can own storage outside themselves.
func hasIndirect(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.String,
		reflect.Map, reflect.Chan:
		return true
	case reflect.Array:
		return hasIndirect(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasIndirect(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
