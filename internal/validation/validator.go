// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

// Package validation checks decoded API requests against their `validate`
// struct tags (go-playground/validator v10).
//
// Messages name fields by their JSON key, so a client that sent
// {"sessionId": "abc"} reads "sessionId must be a numeric OpenF1 key or
// \"latest\"".
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	instance *validator.Validate

	// Numeric OpenF1 keys plus the "latest" alias.
	openF1Key = regexp.MustCompile(`^(?:[0-9]{1,10}|latest)$`)
	// Usernames and driver ids end up inside store keys.
	safeName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// FieldError is one failed rule on one field.
type FieldError struct {
	Field   string
	Rule    string
	Param   string
	Value   interface{}
	Message string
}

// RequestValidationError holds every rule a request failed.
type RequestValidationError struct {
	Fields []FieldError
}

// Invalid reports a single failed check made outside struct tags, such as
// a query parameter or path value.
func Invalid(field, rule, message string, value interface{}) *RequestValidationError {
	return &RequestValidationError{Fields: []FieldError{{
		Field: field, Rule: rule, Value: value, Message: message,
	}}}
}

func (e *RequestValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Message
	}
	return strings.Join(parts, "; ")
}

// Message is the client-facing summary. With several failures each one is
// prefixed by its field.
func (e *RequestValidationError) Message() string {
	switch len(e.Fields) {
	case 0:
		return "Validation failed"
	case 1:
		return e.Fields[0].Message
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return strings.Join(parts, "; ")
}

// Details is the "details" object of a VALIDATION_ERROR response.
func (e *RequestValidationError) Details() map[string]interface{} {
	switch len(e.Fields) {
	case 0:
		return nil
	case 1:
		f := e.Fields[0]
		return map[string]interface{}{"field": f.Field, "tag": f.Rule, "value": f.Value}
	}
	list := make([]map[string]interface{}, len(e.Fields))
	for i, f := range e.Fields {
		list[i] = map[string]interface{}{"field": f.Field, "tag": f.Rule, "message": f.Message}
	}
	return map[string]interface{}{"fields": list}
}

// GetValidator returns the shared validator with Pitwall's custom rules
// registered. Safe for concurrent use.
func GetValidator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		// RegisterValidation only fails on an empty tag or nil func.
		_ = v.RegisterValidation("openf1key", matches(openF1Key))
		_ = v.RegisterValidation("username", matches(safeName))
		instance = v
	})
	return instance
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// ValidateStruct returns nil when s passes every rule.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return Invalid("unknown", "unknown", err.Error(), nil)
	}

	out := &RequestValidationError{Fields: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Value:   fe.Value(),
			Message: describe(fe),
		})
	}
	return out
}

func describe(fe validator.FieldError) string {
	name, param := fe.Field(), fe.Param()
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}

	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "numeric":
		return name + " must be numeric"
	case "openf1key":
		return name + ` must be a numeric OpenF1 key or "latest"`
	case "username":
		return name + " may only contain letters, digits, '.', '_' and '-'"
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", name, param, unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", name, param, unit)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", name, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", name, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, param)
	}
	return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
}
