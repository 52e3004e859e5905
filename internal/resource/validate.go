package resource

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/go-playground/validator/v10"
)

// ErrValidation is wrapped by every ValidationError.
var ErrValidation = errors.New("resource: validation failed")

// ValidationError carries the message returned to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

var validate = validator.New()

// missing reports whether a submitted value counts as absent.
func missing(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// validateFields checks fields against cols and returns the values to bind,
// keyed by column name. Absent optional columns bind NULL. Fields not named
// by cols are ignored.
func validateFields(cols []Column, requiredMessage string, fields map[string]any) (map[string]any, error) {
	for _, c := range cols {
		if c.Required && missing(fields[c.Name]) {
			return nil, &ValidationError{Message: requiredMessage}
		}
	}

	out := make(map[string]any, len(cols))
	for _, c := range cols {
		raw := fields[c.Name]
		if missing(raw) {
			out[c.Name] = nil
			continue
		}
		v, err := coerce(c, raw)
		if err != nil {
			return nil, err
		}
		if c.Rule != "" {
			if err := validate.Var(v, c.Rule); err != nil {
				return nil, &ValidationError{Message: ruleMessage(c.Name, err)}
			}
		}
		out[c.Name] = v
	}
	return out, nil
}

// coerce converts a decoded JSON value to the column's Go type.
func coerce(c Column, v any) (any, error) {
	switch c.Type {
	case String:
		s, ok := v.(string)
		if !ok {
			return nil, &ValidationError{Message: c.Name + " must be a string"}
		}
		return s, nil
	case Integer:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n == math.Trunc(n) && !math.IsInf(n, 0) && math.Abs(n) <= 1<<53 {
				return int64(n), nil
			}
		}
		return nil, &ValidationError{Message: c.Name + " must be an integer"}
	default:
		return nil, fmt.Errorf("resource: column %s: unknown type %d", c.Name, c.Type)
	}
}

func ruleMessage(field string, err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return field + " is invalid"
	}
	e := verrs[0]
	switch e.Tag() {
	case "min":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, e.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
