package parser

import "github.com/annex-dev/annex-host-sdk/abi"

// ManifestParser parses raw manifest bytes into a Manifest.
type ManifestParser interface {
	// Parse unmarshals manifest bytes into a Manifest struct.
	Parse(data []byte) (*abi.Manifest, error)
}
