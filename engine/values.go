package engine

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Changed the change detection policy of Invalidate.
//
// NaN to NaN is unchanged. Reference values (maps, slices, pointers, structs, funcs, ...) are always changed, they
// may have been mutated in place. Everything else is compared with ==.
func Changed(previous, next interface{}) bool {
	if isNaN(previous) {
		return !isNaN(next)
	}
	if isReference(previous) {
		return true
	}
	// previous is comparable here, == only panics when both dynamic types are the same non comparable type
	return previous != next
}

func isNaN(value interface{}) bool {
	switch v := value.(type) {
	case float64:
		return math.IsNaN(v)
	case float32:
		return math.IsNaN(float64(v))
	}
	return false
}

func isReference(value interface{}) bool {
	if value == nil {
		return false
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Func, reflect.Ptr, reflect.Chan,
		reflect.Interface, reflect.UnsafePointer:
		return true
	}
	return false
}

// Truthy presence test used by boolean attributes
func Truthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0 && !math.IsNaN(v)
	case float32:
		return v != 0 && !math.IsNaN(float64(v))
	case int:
		return v != 0
	case int8:
		return v != 0
	case int16:
		return v != 0
	case int32:
		return v != 0
	case int64:
		return v != 0
	case uint:
		return v != 0
	case uint8:
		return v != 0
	case uint16:
		return v != 0
	case uint32:
		return v != 0
	case uint64:
		return v != 0
	}
	return true
}

// ToString the text written to the UI for an expression value
func ToString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprintf("%v", value)
}
