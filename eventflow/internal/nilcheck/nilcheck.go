// Package nilcheck detects typed-nil values hiding behind non-nil
// interfaces.
package nilcheck

import "reflect"

// Interface reports whether value is nil, including a typed-nil pointer,
// map, slice, channel, or function stored in a non-nil interface.
func Interface(value any) bool {
	if value == nil {
		return true
	}

	reflected := reflect.ValueOf(value)
	switch reflected.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return reflected.IsNil()
	default:
		return false
	}
}
