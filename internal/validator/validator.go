// Package validator checks signup profiles and validates JSON documents
// against JSON Schemas.
package validator

import (
	"fmt"
	"os"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

type Options struct {
	// SchemaPath is read when Schema is empty.
	SchemaPath string
	Schema     []byte
}

// Validator validates documents against one compiled schema.
type Validator struct {
	schema *gojsonschema.Schema
}

type Result struct {
	Valid       bool          `json:"valid"`
	Errors      []string      `json:"errors,omitempty"`
	Checks      []CheckResult `json:"checks,omitempty"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

type CheckResult struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

func New(opts Options) (*Validator, error) {
	raw := opts.Schema
	if len(raw) == 0 && opts.SchemaPath != "" {
		data, err := os.ReadFile(opts.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema: %w", err)
		}
		raw = data
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("schema is required")
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// MustNew is New for schemas embedded in the binary.
func MustNew(schema []byte) *Validator {
	v, err := New(Options{Schema: schema})
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks payload against the schema.
func (v *Validator) Validate(payload []byte) Result {
	result := Result{Valid: true, GeneratedAt: time.Now()}

	if len(payload) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "payload missing")
		return result
	}

	schemaResult, err := v.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("schema validation error: %v", err))
		return result
	}
	if !schemaResult.Valid() {
		result.Valid = false
		for _, e := range schemaResult.Errors() {
			result.Errors = append(result.Errors, e.String())
		}
	}
	return result
}
