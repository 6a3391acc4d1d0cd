package core

// validation.go holds the field-validation collaborator used by pipelines
// and the header checks shared by templates.
//
// Validation happens at two levels:
//  1. Header validation: required columns must be present
//  2. Record validation: struct tags (`validate:"..."`) checked by
//     go-playground/validator, reported per field

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// StructValidator validates struct records with go-playground/validator and
// reports violations keyed by Go field name, which is what FieldBinding uses.
type StructValidator struct {
	v *validator.Validate
}

// NewStructValidator wraps v, or a fresh validator when v is nil.
func NewStructValidator(v *validator.Validate) *StructValidator {
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	return &StructValidator{v: v}
}

// ValidateRecord implements FieldValidator. Records that aren't structs
// have nothing to check.
func (s *StructValidator) ValidateRecord(record any) map[string][]string {
	rv := reflect.Indirect(reflect.ValueOf(record))
	if !rv.IsValid() || rv.Kind() != reflect.Struct {
		return nil
	}

	err := s.v.Struct(rv.Interface())
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string][]string{"": {err.Error()}}
	}

	out := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		out[fe.StructField()] = append(out[fe.StructField()], fieldMessage(fe))
	}
	return out
}

// fieldMessage turns a validator failure into text shown in a cell comment.
func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "numeric", "number":
		return "must be numeric"
	case "min", "gte":
		if isNumberKind(fe.Kind()) {
			return "must be at least " + fe.Param()
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max", "lte":
		if isNumberKind(fe.Kind()) {
			return "must be at most " + fe.Param()
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return "must be greater than " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "datetime":
		return "must be a date in the form " + fe.Param()
	}
	if fe.Param() != "" {
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
	return "failed " + fe.Tag()
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// MissingHeaders returns the required headers absent from idx, in order.
func MissingHeaders(idx *HeadIndex, required []string) []string {
	var missing []string
	for _, h := range required {
		if _, ok := idx.Head(h); !ok {
			missing = append(missing, h)
		}
	}
	return missing
}

// RequiredHeaders returns a header check rejecting sheets that lack any of
// the given columns.
func RequiredHeaders(required ...string) func(context.Context, Head) string {
	return func(_ context.Context, head Head) string {
		missing := MissingHeaders(BuildHeadIndex(head.Rows, head.Bindings), required)
		if len(missing) == 0 {
			return ""
		}
		return "missing required columns: " + strings.Join(missing, ", ")
	}
}
