// Package registry implements a schema registry for capability types.
package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
)

// Registry implements SchemaRegistry using in-memory storage.
type Registry struct {
	schemas   map[string]string
	mu        sync.RWMutex
	reflector *jsonschema.Reflector
}

// NewRegistry creates a new, empty schema registry.
func NewRegistry() *Registry {
	r := &Registry{
		schemas:   make(map[string]string),
		reflector: new(jsonschema.Reflector),
	}
	r.reflector.ExpandedStruct = true
	return r
}

// Register adds a schema for a capability type name.
// model can be a Go struct (to generate a schema) or a raw JSON schema
// string, byte slice or map.
func (r *Registry) Register(typeName string, model interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[typeName]; exists {
		return fmt.Errorf("capability type already registered: %s", typeName)
	}

	schemaStr, err := r.render(model)
	if err != nil {
		return err
	}

	r.schemas[typeName] = schemaStr
	return nil
}

// Deregister removes the schema for a capability type name. Removing an
// unknown name is a no-op.
func (r *Registry) Deregister(typeName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.schemas, typeName)
}

// GetSchema retrieves the JSON Schema for a capability type name.
func (r *Registry) GetSchema(typeName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[typeName]
	return s, ok
}

// List returns all registered capability type names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		keys = append(keys, k)
	}
	return keys
}

// render converts a schema model to its canonical JSON string form.
func (r *Registry) render(model interface{}) (string, error) {
	switch v := model.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	case map[string]interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal schema map: %w", err)
		}
		return string(b), nil
	default:
		// Assume a Go struct (or pointer to one) and generate a schema.
		s := r.reflector.Reflect(model)
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal generated schema: %w", err)
		}
		return string(b), nil
	}
}
