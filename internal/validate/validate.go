// Package validate checks scraped payloads against their product schema.
package validate

import (
	"errors"
	"fmt"
	"strings"
)

var ErrSchemaViolation = errors.New("schema violation")

// SchemaViolation lists the fields that failed validation.
type SchemaViolation struct {
	Fields []string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("schema violation: %s", strings.Join(e.Fields, ", "))
}

func (e *SchemaViolation) Is(target error) bool {
	return target == ErrSchemaViolation
}

// Schema is implemented by every product payload.
type Schema interface {
	Validate(partial bool) []string
}

// Validator runs payload schemas. In partial mode only required fields are
// checked.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(payload any, partial bool) error {
	if payload == nil {
		return &SchemaViolation{Fields: []string{"product"}}
	}

	schema, ok := payload.(Schema)
	if !ok {
		return fmt.Errorf("no schema for payload type %T", payload)
	}

	if fields := schema.Validate(partial); len(fields) > 0 {
		return &SchemaViolation{Fields: fields}
	}
	return nil
}
