package configtest

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"go.uber.org/multierr"
)

// CheckYAMLTags walks the config type and reports exported fields that have
// no yaml name, or that would be written out by generate-config even when
// empty. Booleans and fields tagged `config:"allowempty"` are exempt from the
// omitempty rule.
func CheckYAMLTags(config any) error {
	return walk(reflect.TypeOf(config), map[reflect.Type]bool{})
}

func walk(t reflect.Type, visited map[reflect.Type]bool) error {
	if visited[t] {
		return nil
	}
	visited[t] = true

	switch t.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.Pointer:
		return walk(t.Elem(), visited)
	case reflect.Struct:
	default:
		return nil
	}

	var errs error
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tag, ok := field.Tag.Lookup("yaml")
		if !ok {
			errs = multierr.Append(errs, fieldError(t, field, "has no yaml tag"))
			continue
		}
		opts := strings.Split(tag, ",")
		if opts[0] == "-" {
			continue
		}
		if opts[0] == "" && !slices.Contains(opts, "inline") {
			errs = multierr.Append(errs, fieldError(t, field, "has an empty yaml name"))
		}

		exempt := field.Type.Kind() == reflect.Bool || field.Tag.Get("config") == "allowempty"
		if !exempt && !slices.Contains(opts, "omitempty") && !slices.Contains(opts, "inline") {
			errs = multierr.Append(errs, fieldError(t, field, "missing omitempty tag"))
		}

		errs = multierr.Append(errs, walk(field.Type, visited))
	}
	return errs
}

func fieldError(t reflect.Type, field reflect.StructField, problem string) error {
	return fmt.Errorf("%s/%s.%s %s", t.PkgPath(), t.Name(), field.Name, problem)
}
