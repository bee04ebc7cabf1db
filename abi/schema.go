package abi

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ManifestSchema is the JSON Schema every plugin manifest must satisfy before
// the host will scan it for capability types.
const ManifestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "abi", "types"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "version": {"type": "string"},
    "abi": {"type": "string", "minLength": 1},
    "types": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "extends": {"type": "string"},
          "schema": {"type": "object"}
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// CompiledManifestSchema returns the compiled form of ManifestSchema. The
// compilation runs once; subsequent calls share the result.
func CompiledManifestSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("annex://manifest.schema.json", ManifestSchema)
	})
	return schema, schemaErr
}
