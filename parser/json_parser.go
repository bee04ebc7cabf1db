// Package parser provides functionality for parsing plugin manifests.
package parser

import (
	"encoding/json"

	"github.com/annex-dev/annex-host-sdk/abi"
)

// JSONManifestParser implements ManifestParser for JSON. It is the default
// parser: plugin modules return their manifest as a JSON document.
type JSONManifestParser struct{}

// NewJSONManifestParser creates a new JSONManifestParser.
func NewJSONManifestParser() ManifestParser {
	return &JSONManifestParser{}
}

// Parse unmarshals JSON bytes into a Manifest struct.
func (p *JSONManifestParser) Parse(data []byte) (*abi.Manifest, error) {
	var manifest abi.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}
