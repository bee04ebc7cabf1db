package registry

// SchemaRegistry manages JSON schemas for capability types. Plugin manifests
// may attach a schema per declared type; embedding hosts use the registry to
// validate per-capability configuration.
type SchemaRegistry interface {
	// Register adds a schema for a capability type name. model can be a
	// struct (to generate a schema) or a JSON schema string/bytes/map.
	Register(typeName string, model interface{}) error

	// Deregister removes the schema for a capability type name, if any.
	Deregister(typeName string)

	// GetSchema returns the JSON schema for a capability type name.
	GetSchema(typeName string) (string, bool)

	// List returns all registered capability type names.
	List() []string
}
