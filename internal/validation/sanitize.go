package validation

import (
	"reflect"
	"strings"
)

var htmlEscaper = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// EscapeHTML escapes the characters that open tags or break out of attributes.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// Sanitize escapes every settable string reachable from ptr: struct fields,
// slices, arrays, map values and pointers are walked recursively.
func Sanitize(ptr interface{}) {
	sanitizeValue(reflect.ValueOf(ptr))
}

func sanitizeValue(v reflect.Value) {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return
		}
		elem := v.Elem()
		if v.Kind() == reflect.Interface && elem.Kind() == reflect.String && v.CanSet() {
			v.Set(reflect.ValueOf(EscapeHTML(elem.String())))
			return
		}
		sanitizeValue(elem)
	case reflect.String:
		if v.CanSet() {
			v.SetString(EscapeHTML(v.String()))
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() {
				sanitizeValue(v.Field(i))
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			sanitizeValue(v.Index(i))
		}
	case reflect.Map:
		for _, k := range v.MapKeys() {
			val := v.MapIndex(k)
			cp := reflect.New(val.Type()).Elem()
			cp.Set(val)
			sanitizeValue(cp)
			v.SetMapIndex(k, cp)
		}
	}
}
