package httputil

import (
	"reflect"
	"strings"
)

// sanitize trims whitespace from every settable string reachable from v:
// plain fields, []string elements, nested structs and slices of structs.
func sanitize(v any) {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return
	}
	trimValue(val.Elem())
}

func trimValue(val reflect.Value) {
	switch val.Kind() {
	case reflect.String:
		if val.CanSet() {
			val.SetString(strings.TrimSpace(val.String()))
		}
	case reflect.Struct:
		for i := 0; i < val.NumField(); i++ {
			field := val.Field(i)
			if field.CanSet() {
				trimValue(field)
			}
		}
	case reflect.Slice:
		for j := 0; j < val.Len(); j++ {
			trimValue(val.Index(j))
		}
	case reflect.Ptr:
		if !val.IsNil() {
			trimValue(val.Elem())
		}
	}
}
