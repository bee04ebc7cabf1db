// Package annex implements a hot-loading plugin registry. An Annex watches a
// set of directories for plugin modules, loads each file as an isolated unit
// of code, extracts the capability types below a base capability, and keeps
// the result as a live registry. Reload re-scans the directories, loading new
// files, reloading files whose content digest changed, and retiring files
// that disappeared, without restarting the host process.
package annex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/annex-dev/annex-host-sdk/capability"
	"github.com/annex-dev/annex-host-sdk/host"
	"github.com/annex-dev/annex-host-sdk/plugin/entities"
	"github.com/annex-dev/annex-host-sdk/plugin/repository"
	"github.com/annex-dev/annex-host-sdk/plugin/values"
	"github.com/annex-dev/annex-host-sdk/registry"
)

// Loader loads one plugin file as an isolated namespace. The default is the
// wazero-backed host.Loader.
type Loader interface {
	Load(ctx context.Context, path string) (capability.Namespace, error)
	Close(ctx context.Context) error
}

// Annex is the plugin registry engine. It owns the mapping from plugin file
// path to loaded unit and is its sole mutator. An Annex is not safe for
// concurrent use; construction and Reload assume a single logical owner, or
// an external lock guarding every call.
type Annex struct {
	base        capability.Type
	dirs        []string
	discovery   *repository.FSDiscovery
	loader      Loader
	ownsLoader  bool
	units       map[string]*entities.LoadedUnit
	additional  []capability.Member
	schemas     *registry.Registry
	instantiate bool
	strict      bool
	logger      *slog.Logger
}

// New builds a registry over the given directories. base is the capability
// type plugins must extend to be recognized. dirs may be a single path
// string or an arbitrarily nested collection of path strings; every listed
// directory must be absolute for its files to load.
//
// Load failures of individual files are logged and skipped unless
// WithStrictErrors is set. Failures on the additional-types path are not
// isolated the same way; they propagate to the caller.
func New(ctx context.Context, base capability.Type, dirs any, opts ...Option) (*Annex, error) {
	cfg := settings{
		instantiate: true,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	flat, err := flattenDirs(dirs)
	if err != nil {
		return nil, err
	}

	a := &Annex{
		base:        base,
		dirs:        flat,
		discovery:   repository.NewFSDiscovery(),
		loader:      cfg.loader,
		units:       make(map[string]*entities.LoadedUnit),
		schemas:     registry.NewRegistry(),
		instantiate: cfg.instantiate,
		strict:      cfg.strict,
		logger:      cfg.logger,
	}

	if a.loader == nil {
		loader, err := host.NewLoader(ctx, host.WithLogger(a.logger))
		if err != nil {
			return nil, fmt.Errorf("create loader: %w", err)
		}
		a.loader = loader
		a.ownsLoader = true
	}

	for _, path := range a.discovery.Candidates(a.dirs) {
		if err := a.loadUnit(ctx, path); err != nil && a.strict {
			_ = a.Close(ctx)
			return nil, err
		}
	}

	if cfg.additional != nil {
		if err := a.loadAdditional(ctx, cfg.additional); err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
	}

	return a, nil
}

// Reload recomputes the candidate file set and diffs it against the loaded
// units. New files are loaded, files whose content digest changed are
// reloaded from scratch, and files that disappeared are retired. The digest,
// never the modification time, decides whether a file changed.
func (a *Annex) Reload(ctx context.Context) error {
	a.logger.Debug("reloading plugins")

	removed := make(map[string]struct{}, len(a.units))
	for path := range a.units {
		removed[path] = struct{}{}
	}

	for _, path := range a.discovery.Candidates(a.dirs) {
		unit, ok := a.units[path]
		if !ok {
			a.logger.Debug("new plugin module found, loading", "path", path)
			if err := a.loadUnit(ctx, path); err != nil && a.strict {
				return err
			}
			continue
		}

		delete(removed, path)

		digest, err := values.ComputeFileDigest(path)
		if err != nil {
			return fmt.Errorf("fingerprint %s: %w", path, err)
		}
		if !digest.Equals(unit.Digest()) {
			a.logger.Debug("plugin module changed, reloading", "path", path)
			if err := a.loadUnit(ctx, path); err != nil && a.strict {
				return err
			}
		}
	}

	for path := range removed {
		a.logger.Debug("plugin module deleted, removing", "path", path)
		a.removeUnit(ctx, path)
	}

	return nil
}

// Members returns every capability member of every loaded unit, followed by
// the additional members. Order across units is unspecified.
func (a *Annex) Members() []capability.Member {
	var members []capability.Member
	for _, unit := range a.units {
		members = append(members, unit.Members()...)
	}
	return append(members, a.additional...)
}

// Get returns the first capability whose type name equals name.
func (a *Annex) Get(name string) (capability.Member, error) {
	for _, m := range a.Members() {
		if m.TypeName() == name {
			return m, nil
		}
	}
	return nil, &entities.NotFoundError{Name: name}
}

// Len returns the number of loaded units. This counts plugin files, not
// capability members, and never includes additional members.
func (a *Annex) Len() int {
	return len(a.units)
}

// Paths returns the source paths of the currently loaded units.
func (a *Annex) Paths() []string {
	paths := make([]string, 0, len(a.units))
	for path := range a.units {
		paths = append(paths, path)
	}
	return paths
}

// Unit returns the loaded unit for a source path, if present.
func (a *Annex) Unit(path string) (*entities.LoadedUnit, bool) {
	unit, ok := a.units[path]
	return unit, ok
}

// Schemas returns the registry of JSON schemas declared by loaded plugins.
func (a *Annex) Schemas() *registry.Registry {
	return a.schemas
}

// Close retires every loaded unit and, when the Annex owns its loader,
// releases the loader as well.
func (a *Annex) Close(ctx context.Context) error {
	var errs []error
	for path, unit := range a.units {
		if err := unit.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		delete(a.units, path)
	}

	if a.ownsLoader {
		if err := a.loader.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// loadUnit loads one plugin file and installs its unit, replacing any prior
// unit for the same path. A file that yields no capability members leaves no
// trace. The returned error is already logged; the caller only decides
// whether to propagate it.
func (a *Annex) loadUnit(ctx context.Context, path string) error {
	a.logger.Debug("loading plugin", "path", path)

	ns, err := a.loader.Load(ctx, path)
	if err != nil {
		a.logger.Error("failed to load plugin", "path", path, "error", err)
		return err
	}

	members, err := capability.Extract(ctx, ns, a.base, a.instantiate)
	if err != nil {
		_ = ns.Close(ctx)
		lerr := &entities.LoadError{Path: path, Err: err}
		a.logger.Error("failed to load plugin", "path", path, "error", lerr)
		return lerr
	}

	if len(members) == 0 {
		_ = ns.Close(ctx)
		return nil
	}

	digest, err := values.ComputeFileDigest(path)
	if err != nil {
		_ = ns.Close(ctx)
		lerr := &entities.LoadError{Path: path, Err: err}
		a.logger.Error("failed to load plugin", "path", path, "error", lerr)
		return lerr
	}

	if old, ok := a.units[path]; ok {
		a.forgetUnit(ctx, old)
	}

	var schemaTypes []string
	for _, decl := range ns.Decls() {
		if len(decl.Schema) == 0 {
			continue
		}
		a.schemas.Deregister(decl.Name)
		if err := a.schemas.Register(decl.Name, decl.Schema); err != nil {
			a.logger.Warn("failed to register schema", "type", decl.Name, "error", err)
			continue
		}
		schemaTypes = append(schemaTypes, decl.Name)
	}

	a.units[path] = entities.NewLoadedUnit(path, digest, members, schemaTypes, ns)
	return nil
}

// loadAdditional runs the additional-types callback once and merges the
// result. Errors here are programmer errors, not runtime variability, and
// propagate unguarded.
func (a *Annex) loadAdditional(ctx context.Context, callback func() []capability.Type) error {
	for _, t := range callback() {
		if !a.instantiate {
			a.additional = append(a.additional, t)
			continue
		}

		inst, err := t.New(ctx)
		if err != nil {
			return fmt.Errorf("construct additional capability %s: %w", t.TypeName(), err)
		}
		a.additional = append(a.additional, inst)
	}
	return nil
}

// removeUnit retires the unit for a path that is no longer discovered.
func (a *Annex) removeUnit(ctx context.Context, path string) {
	unit, ok := a.units[path]
	if !ok {
		return
	}
	a.forgetUnit(ctx, unit)
	delete(a.units, path)
}

// forgetUnit releases a unit's execution state and its schema registrations.
// Retirement goes by the names the unit registered, not by its members: a
// declaration can carry a schema without being a capability member.
func (a *Annex) forgetUnit(ctx context.Context, unit *entities.LoadedUnit) {
	for _, name := range unit.SchemaTypes() {
		a.schemas.Deregister(name)
	}
	_ = unit.Close(ctx)
}
