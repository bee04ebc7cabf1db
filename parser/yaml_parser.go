package parser

import (
	"encoding/json"
	"fmt"

	"github.com/annex-dev/annex-host-sdk/abi"
	"gopkg.in/yaml.v3"
)

// YamlManifestParser implements ManifestParser for YAML, for toolchains that
// emit YAML manifests instead of JSON.
type YamlManifestParser struct{}

// NewYamlManifestParser creates a new YamlManifestParser.
func NewYamlManifestParser() ManifestParser {
	return &YamlManifestParser{}
}

// Parse unmarshals YAML bytes into a Manifest struct. The document is
// re-encoded as JSON so embedded type schemas land in the manifest's raw
// JSON form.
func (p *YamlManifestParser) Parse(data []byte) (*abi.Manifest, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encode manifest: %w", err)
	}

	var manifest abi.Manifest
	if err := json.Unmarshal(jsonBytes, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}
