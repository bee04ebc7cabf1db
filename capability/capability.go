// Package capability defines what a plugin contributes to a registry: the
// Member, Type and Instance abstractions, the Namespace a loaded module
// presents for scanning, and the scanner that filters a namespace down to the
// types below a base capability.
package capability

import (
	"context"
	"fmt"

	"github.com/annex-dev/annex-host-sdk/abi"
)

// Member is anything a registry can hold and look up by type name: a
// capability instance in instantiate mode, or a capability type otherwise.
type Member interface {
	// TypeName returns the capability's declared type name.
	TypeName() string
}

// Instance is a constructed capability, bound to the module instance that
// produced it.
type Instance interface {
	Member

	// Invoke calls a method on the capability with an opaque payload and
	// returns the opaque response.
	Invoke(ctx context.Context, method string, payload []byte) ([]byte, error)

	// Close releases any guest-side state held by the instance.
	Close(ctx context.Context) error
}

// Type is a capability type that can construct instances with no arguments.
type Type interface {
	Member

	// Extends names the parent type, or "" for a root type.
	Extends() string

	// New constructs an instance with no arguments.
	New(ctx context.Context) (Instance, error)
}

// Namespace is the set of names a loaded unit defines, as presented for
// capability scanning. A module loader produces one per successful load.
type Namespace interface {
	// Decls returns the unit's type declarations in declaration order.
	Decls() []abi.TypeDecl

	// Instantiate constructs the named declared type with no arguments.
	Instantiate(ctx context.Context, typeName string) (Instance, error)

	// Close releases the loaded unit's execution state.
	Close(ctx context.Context) error
}

// declared adapts a namespace type declaration into a Type for
// non-instantiate registries.
type declared struct {
	ns   Namespace
	decl abi.TypeDecl
}

func (d *declared) TypeName() string { return d.decl.Name }
func (d *declared) Extends() string  { return d.decl.Extends }

func (d *declared) New(ctx context.Context) (Instance, error) {
	return d.ns.Instantiate(ctx, d.decl.Name)
}

// Definition is a host-side capability type, used for registry base types and
// for additional members supplied outside file discovery.
type Definition struct {
	name    string
	extends string
	factory func() Instance
}

// DefineOption configures a Definition.
type DefineOption func(*Definition)

// WithParent sets the defined type's parent type name.
func WithParent(name string) DefineOption {
	return func(d *Definition) {
		d.extends = name
	}
}

// WithFactory sets the zero-argument constructor used by New.
func WithFactory(factory func() Instance) DefineOption {
	return func(d *Definition) {
		d.factory = factory
	}
}

// Define builds a host-side capability type. A bare Define(name) is the usual
// way to express a registry's base capability.
func Define(name string, opts ...DefineOption) *Definition {
	d := &Definition{name: name}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TypeName returns the defined type's name.
func (d *Definition) TypeName() string { return d.name }

// Extends returns the defined type's parent name.
func (d *Definition) Extends() string { return d.extends }

// New constructs an instance via the definition's factory.
func (d *Definition) New(ctx context.Context) (Instance, error) {
	if d.factory == nil {
		return nil, fmt.Errorf("capability type %s has no constructor", d.name)
	}
	return d.factory(), nil
}
