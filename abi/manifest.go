package abi

import "encoding/json"

// Manifest is the document a plugin module returns from its "manifest" export.
// It is the module's namespace for capability discovery: every capability
// type the module defines must be declared here.
type Manifest struct {
	// Name identifies the plugin for humans; it does not participate in
	// registry lookup.
	Name string `json:"name"`

	// Version is the plugin's own version string.
	Version string `json:"version,omitempty"`

	// ABI is the ABI version the plugin was built against.
	ABI string `json:"abi"`

	// Types lists the capability types defined by the module, in the
	// module's own declaration order.
	Types []TypeDecl `json:"types"`
}

// TypeDecl declares one capability type defined by a plugin module.
type TypeDecl struct {
	// Name is the declared type's name. The module must export a
	// zero-argument constructor named ConstructorExport(Name).
	Name string `json:"name"`

	// Extends names the declared type's parent. Subtype membership is
	// decided by walking this chain.
	Extends string `json:"extends,omitempty"`

	// Schema optionally carries a JSON Schema describing the type's
	// configuration payload.
	Schema json.RawMessage `json:"schema,omitempty"`
}

// LogMessage is the payload plugins pass to the log_message host function.
type LogMessage struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Attrs   []LogAttr `json:"attrs,omitempty"`
}

// LogAttr is a single structured attribute on a LogMessage.
type LogAttr struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value string `json:"value"`
}
