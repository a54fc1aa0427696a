// Package schema wraps go-playground/validator/v10 as the runtime's
// validation backend for config, context, event data, and method
// input/output shapes. Validation never panics: every entry point returns
// a *rterrors.Error tagged Validation on failure, never an exception,
// matching the "parse-returning-result" property spec.md §9 asks
// implementers to pick a schema library for.
package schema

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/streamspace-dev/pluginrt/internal/rterrors"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func backend() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Schema validates a decoded value of type T, returning the value
// unchanged on success or a Validation error carrying the diagnostic.
type Schema[T any] struct {
	// Name identifies the schema in diagnostics (e.g. a plugin/event
	// pair like "chat.msg.data").
	Name string
}

// New builds a Schema for T, validated via struct tags on T's fields.
func New[T any](name string) Schema[T] {
	return Schema[T]{Name: name}
}

// Validate runs struct-tag validation over v and returns a Validation
// error describing every failing field when v does not conform.
func (s Schema[T]) Validate(v T) (T, *rterrors.Error) {
	if err := backend().Struct(v); err != nil {
		return v, s.formatError(err)
	}
	return v, nil
}

func (s Schema[T]) formatError(err error) *rterrors.Error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return rterrors.Wrap(rterrors.Validation, fmt.Sprintf("%s: schema validation failed", s.Name), err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, formatFieldError(fe))
	}
	return rterrors.Wrap(
		rterrors.Validation,
		fmt.Sprintf("%s: %s", s.Name, strings.Join(fields, "; ")),
		err,
	)
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation %q", field, e.Tag())
	}
}

// MapSchema validates a dynamic, schema-less-at-compile-time shape: a
// required set of keys with per-key kind checks, for event data schemas
// and context schemas declared at plugin-build time rather than as a Go
// struct type.
type MapSchema struct {
	Name     string
	Required []Field
}

// Field describes one required key of a MapSchema.
type Field struct {
	Key  string
	Kind Kind
}

// Kind enumerates the JSON-compatible value kinds a Field may require.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

// Validate checks that data (already JSON-decoded into Go values) carries
// every required field with a matching kind.
func (s MapSchema) Validate(data map[string]any) (map[string]any, *rterrors.Error) {
	var problems []string
	for _, f := range s.Required {
		v, present := data[f.Key]
		if !present {
			problems = append(problems, fmt.Sprintf("%s is required", f.Key))
			continue
		}
		if !kindMatches(v, f.Kind) {
			problems = append(problems, fmt.Sprintf("%s has the wrong type", f.Key))
		}
	}
	if len(problems) > 0 {
		return data, rterrors.New(rterrors.Validation, fmt.Sprintf("%s: %s", s.Name, strings.Join(problems, "; ")))
	}
	return data, nil
}

func kindMatches(v any, k Kind) bool {
	switch k {
	case KindAny:
		return true
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindObject:
		_, ok := v.(map[string]any)
		return ok
	case KindArray:
		_, ok := v.([]any)
		return ok
	default:
		return false
	}
}
