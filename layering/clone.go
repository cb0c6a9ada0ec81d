package layering

import "reflect"

// Clone returns a deep copy of value. Maps, slices, arrays and pointers are
// copied recursively; structs keep their unexported fields as shallow copies.
func Clone[T any](value T) T {
	var zero T
	cloned := cloneValue(reflect.ValueOf(value))
	if !cloned.IsValid() {
		return zero
	}
	if out, ok := cloned.Interface().(T); ok {
		return out
	}
	return value
}

func cloneValue(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.New(v.Type().Elem())
		clone.Elem().Set(cloneValue(v.Elem()))
		return clone
	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		elem := cloneValue(v.Elem())
		if !elem.IsValid() {
			return reflect.Zero(v.Type())
		}
		return elem
	case reflect.Struct:
		clone := reflect.New(v.Type()).Elem()
		clone.Set(v)
		for i := 0; i < v.NumField(); i++ {
			field := clone.Field(i)
			if !field.CanSet() {
				continue
			}
			field.Set(assignable(cloneValue(v.Field(i)), field.Type()))
		}
		return clone
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.MakeMapWithSize(v.Type(), v.Len())
		elemType := v.Type().Elem()
		iter := v.MapRange()
		for iter.Next() {
			clone.SetMapIndex(iter.Key(), assignable(cloneValue(iter.Value()), elemType))
		}
		return clone
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		elemType := v.Type().Elem()
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(assignable(cloneValue(v.Index(i)), elemType))
		}
		return clone
	case reflect.Array:
		clone := reflect.New(v.Type()).Elem()
		elemType := v.Type().Elem()
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(assignable(cloneValue(v.Index(i)), elemType))
		}
		return clone
	default:
		if !v.CanInterface() {
			return v
		}
		return reflect.ValueOf(v.Interface())
	}
}
