// Package schema wraps santhosh-tekuri/jsonschema/v6 to provide the
// compile/validate split the protocol runtime needs.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// CompiledSchema is an opaque, validate-ready schema.
type CompiledSchema struct {
	schema *jsonschema.Schema
}

// Validator compiles and caches named JSON schemas, then validates values
// against them. Validation is pure: no I/O, no side effects. Targets
// draft 2020-12 by default.
type Validator struct {
	mu       sync.RWMutex
	compiler *jsonschema.Compiler
	byName   map[string]*CompiledSchema
}

// NewValidator constructs an empty Validator targeting draft 2020-12.
func NewValidator() *Validator {
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)
	c.AssertFormat()
	return &Validator{compiler: c, byName: make(map[string]*CompiledSchema)}
}

// Compile registers a named schema document (decoded from JSON) and
// compiles it, so later Validate(name, ...) calls can use it.
func (v *Validator) Compile(name string, schemaDoc json.RawMessage) (*CompiledSchema, error) {
	if len(schemaDoc) == 0 {
		return nil, nil
	}

	var doc any
	if err := json.Unmarshal(schemaDoc, &doc); err != nil {
		return nil, fmt.Errorf("schema: decode %s: %w", name, err)
	}

	url := "mem://" + name
	if err := v.compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("schema: add resource %s: %w", name, err)
	}

	compiled, err := v.compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema: compile %s: %w", name, err)
	}

	cs := &CompiledSchema{schema: compiled}
	v.mu.Lock()
	v.byName[name] = cs
	v.mu.Unlock()
	return cs, nil
}

// Validate evaluates value against the named, previously compiled schema.
// An empty string slice means the value is valid; a nil slice with a
// missing schema name is also treated as valid (no schema registered).
func (v *Validator) Validate(name string, value json.RawMessage) []string {
	v.mu.RLock()
	cs, ok := v.byName[name]
	v.mu.RUnlock()
	if !ok || cs == nil {
		return nil
	}
	return ValidateCompiled(cs, value)
}

// ValidateCompiled evaluates value against an already-compiled schema
// without a name lookup.
func ValidateCompiled(cs *CompiledSchema, value json.RawMessage) []string {
	if cs == nil {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return []string{fmt.Sprintf("invalid JSON payload: %v", err)}
	}

	if err := cs.schema.Validate(v); err != nil {
		return flattenValidationError(err)
	}
	return nil
}

func flattenValidationError(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}

	var out []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			path := "/" + strings.Join(e.InstanceLocation, "/")
			out = append(out, fmt.Sprintf("%s: %v", path, e.ErrorKind))
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	if len(out) == 0 {
		out = append(out, ve.Error())
	}
	return out
}
