// Package host provides the WASM module loader for Annex plugins.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	t_wazero "github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/annex-dev/annex-host-sdk/abi"
	"github.com/annex-dev/annex-host-sdk/capability"
	"github.com/annex-dev/annex-host-sdk/parser"
	"github.com/annex-dev/annex-host-sdk/plugin/entities"
)

// Loader loads plugin files as isolated WASM module instances. Each load of a
// path instantiates the module under the path's unit name with fresh linear
// memory and globals; any instance previously created under that name is
// closed first, so a re-load can never observe state left by a prior load.
type Loader struct {
	runtime    t_wazero.Runtime
	modules    map[string]api.Module
	mu         sync.Mutex
	parser     parser.ManifestParser
	schema     *jsonschema.Schema
	logger     *slog.Logger
	middleware []capability.Middleware
}

// NewLoader creates a loader with its own wazero runtime, WASI support and
// the annex host module registered.
func NewLoader(ctx context.Context, opts ...Option) (*Loader, error) {
	l := &Loader{
		modules: make(map[string]api.Module),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.parser == nil {
		l.parser = parser.NewJSONManifestParser()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}

	schema, err := abi.CompiledManifestSchema()
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	l.schema = schema

	rt := t_wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)
	l.runtime = rt

	if err := l.registerHostFunctions(ctx); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	return l, nil
}

// registerHostFunctions exposes the annex host module to plugins.
func (l *Loader) registerHostFunctions(ctx context.Context) error {
	_, err := l.runtime.NewHostModuleBuilder(abi.HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(
			api.GoModuleFunc(l.logMessage),
			[]api.ValueType{api.ValueTypeI64},
			[]api.ValueType{},
		).
		Export(abi.HostFuncLog).
		Instantiate(ctx)
	return err
}

// UnitName derives a plugin file's load identity: the file's base name
// without extension, behind a fixed prefix that keeps plugin modules from
// colliding with anything else instantiated in the runtime.
func UnitName(path string) string {
	base := filepath.Base(path)
	return abi.UnitNamePrefix + strings.TrimSuffix(base, filepath.Ext(base))
}

// Load reads and instantiates the plugin file at path and returns its
// namespace. path must be absolute; a relative path is reported as an
// InvalidPathError without touching the filesystem. All other failures are
// reported as a LoadError identifying the file.
func (l *Loader) Load(ctx context.Context, path string) (capability.Namespace, error) {
	if !filepath.IsAbs(path) {
		return nil, &entities.InvalidPathError{Path: path}
	}

	wasmBytes, err := readFile(path)
	if err != nil {
		return nil, &entities.LoadError{Path: path, Err: err}
	}

	name := UnitName(path)

	// A previous instance under this unit name would both collide in the
	// runtime's module table and leak state into the new load.
	l.closeNamed(ctx, name, nil)

	mod, err := l.runtime.InstantiateWithConfig(ctx, wasmBytes,
		t_wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, &entities.LoadError{Path: path, Err: err}
	}

	manifest, err := l.manifest(ctx, mod)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, &entities.LoadError{Path: path, Err: err}
	}

	l.mu.Lock()
	l.modules[name] = mod
	l.mu.Unlock()

	return &Namespace{
		loader:   l,
		name:     name,
		module:   mod,
		manifest: manifest,
	}, nil
}

// Close releases every loaded module and the runtime itself.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	l.modules = make(map[string]api.Module)
	l.mu.Unlock()
	return l.runtime.Close(ctx)
}

// closeNamed closes and forgets the module instance loaded under name, if
// any. A non-nil owner restricts the close to that exact instance: when a
// later load has already installed a replacement under the same name, the
// replacement stays loaded and nothing is closed.
func (l *Loader) closeNamed(ctx context.Context, name string, owner api.Module) {
	l.mu.Lock()
	mod, ok := l.modules[name]
	if ok && owner != nil && mod != owner {
		ok = false
	}
	if ok {
		delete(l.modules, name)
	}
	l.mu.Unlock()

	if ok {
		_ = mod.Close(ctx)
	}
}

// manifest retrieves, parses and validates the module's manifest document.
func (l *Loader) manifest(ctx context.Context, mod api.Module) (*abi.Manifest, error) {
	fn := mod.ExportedFunction(abi.ExportManifest)
	if fn == nil {
		return nil, fmt.Errorf("export %q not found", abi.ExportManifest)
	}

	res, err := fn.Call(ctx)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", abi.ExportManifest, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("export %q returned no value", abi.ExportManifest)
	}

	ptr, length := abi.UnpackPtrLen(res[0])
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("failed to read manifest from module memory")
	}
	raw := make([]byte, length)
	copy(raw, data)

	manifest, err := l.parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if err := l.validate(manifest); err != nil {
		return nil, err
	}

	if err := abi.CheckVersion(manifest.ABI); err != nil {
		return nil, err
	}

	return manifest, nil
}

// validate checks the parsed manifest against the ABI manifest schema. The
// manifest is re-encoded as JSON first so YAML-parsed manifests validate the
// same way.
func (l *Loader) validate(manifest *abi.Manifest) error {
	canonical, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	var doc any
	if err := json.Unmarshal(canonical, &doc); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}

	if err := l.schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	return nil
}

// readFile reads a plugin file, releasing the handle on every path.
func readFile(path string) ([]byte, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return io.ReadAll(f)
}
