// Package entities holds the aggregate types of the plugin domain.
package entities

import (
	"context"

	"github.com/annex-dev/annex-host-sdk/capability"
	"github.com/annex-dev/annex-host-sdk/plugin/values"
)

// LoadedUnit is the registry's record of one plugin file's contribution: the
// file's absolute path, its content digest at load time, and the capability
// members extracted from it. A unit is immutable once created; a changed file
// is represented by a replacement unit, never by patching an existing one.
type LoadedUnit struct {
	path        string
	digest      values.Digest
	members     []capability.Member
	schemaTypes []string
	ns          capability.Namespace
}

// NewLoadedUnit creates a loaded unit. members must be non-empty: a file that
// defines no capability is invisible to the registry and never becomes a unit.
// schemaTypes lists the declared type names whose schemas the unit contributed
// to the schema registry; retiring the unit retires exactly those.
func NewLoadedUnit(
	path string,
	digest values.Digest,
	members []capability.Member,
	schemaTypes []string,
	ns capability.Namespace,
) *LoadedUnit {
	return &LoadedUnit{
		path:        path,
		digest:      digest,
		members:     members,
		schemaTypes: schemaTypes,
		ns:          ns,
	}
}

// Path returns the unit's source file path. It is the unit's registry key.
func (u *LoadedUnit) Path() string {
	return u.path
}

// Digest returns the content digest of the file at the most recent
// successful load.
func (u *LoadedUnit) Digest() values.Digest {
	return u.digest
}

// Members returns the capability members extracted from the file, in
// scan order.
func (u *LoadedUnit) Members() []capability.Member {
	return u.members
}

// SchemaTypes returns the declared type names whose configuration schemas
// this unit registered.
func (u *LoadedUnit) SchemaTypes() []string {
	return u.schemaTypes
}

// Close releases the unit's underlying execution state.
func (u *LoadedUnit) Close(ctx context.Context) error {
	if u.ns == nil {
		return nil
	}
	return u.ns.Close(ctx)
}
