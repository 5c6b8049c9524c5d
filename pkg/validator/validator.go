// Package validator wraps go-playground/validator/v10 struct-tag validation
// for config and policy-tree inputs, returning the simulator's own batched
// error shape instead of the library's raw ValidationErrors.
package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator validates exported struct fields via `validate:"..."` tags.
type Validator struct {
	validate *validator.Validate
}

// New constructs a Validator.
func New() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate runs struct-tag validation and returns a single error, or nil.
func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		if msgs := formatValidationErrors(err); msgs != nil {
			return fmt.Errorf("validation failed: %v", msgs)
		}
		return err
	}
	return nil
}

// ValidateBatch runs struct-tag validation and returns every failing field
// as a formatted message, for callers that need to surface all errors at
// once (e.g. ConfigInvalid/ValidationFailed construction) rather than
// stopping at the first one.
func (v *Validator) ValidateBatch(i interface{}) []string {
	if err := v.validate.Struct(i); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) []string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("field %q failed validation %q (param=%q)", e.Namespace(), e.Tag(), e.Param()))
	}
	return msgs
}
