// Package abi defines the contract between an Annex host and its WASM plugin
// modules: the manifest document a module must export, the export naming
// conventions for constructors and methods, the packed pointer encoding used
// to pass byte payloads across the boundary, and the supported ABI version
// range.
package abi

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is the ABI version this host implements. Plugin manifests declare
// the version they were built against in their "abi" field.
const Version = "1.0.0"

// supportedRange is the constraint a manifest's declared ABI version must
// satisfy to be loadable by this host.
const supportedRange = ">=1.0.0 <2.0.0"

// Well-known export names every plugin module must or may provide.
const (
	// ExportManifest returns the packed location of the module's JSON
	// manifest. Required.
	ExportManifest = "manifest"

	// ExportAllocate reserves guest memory for host-written payloads.
	// Required by modules whose capabilities accept input.
	ExportAllocate = "allocate"

	// HostModule is the name under which host functions are exposed to
	// plugin modules.
	HostModule = "annex"

	// HostFuncLog is the host function plugins call to emit log events.
	HostFuncLog = "log_message"
)

// UnitNamePrefix is prepended to a plugin file's base name to form the
// module's load identity, keeping plugin instances from colliding with any
// other module instantiated in the host runtime.
const UnitNamePrefix = "pluginmodule_"

// ConstructorExport returns the export name of a declared type's zero-argument
// constructor.
func ConstructorExport(typeName string) string {
	return typeName + "_new"
}

// MethodExport returns the export name of a method on a declared type.
func MethodExport(typeName, method string) string {
	return typeName + "_" + method
}

// PackPtrLen packs a guest pointer and a length into the single uint64 used
// as a parameter or return value on the WASM boundary.
func PackPtrLen(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// UnpackPtrLen splits a packed uint64 back into pointer and length.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	//nolint:gosec // WASM pointers and lengths are 32-bit
	return uint32(packed >> 32), uint32(packed)
}

// CheckVersion reports whether a manifest's declared ABI version is loadable
// by this host.
func CheckVersion(version string) error {
	c, err := semver.NewConstraint(supportedRange)
	if err != nil {
		return fmt.Errorf("invalid supported ABI range %q: %w", supportedRange, err)
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid ABI version %q: %w", version, err)
	}

	if !c.Check(v) {
		return fmt.Errorf("unsupported ABI version %s: host supports %s", version, supportedRange)
	}

	return nil
}
