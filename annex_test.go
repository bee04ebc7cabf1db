package annex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annex-dev/annex-host-sdk/abi"
	"github.com/annex-dev/annex-host-sdk/capability"
	"github.com/annex-dev/annex-host-sdk/plugin/entities"
)

// stubLoader loads fixture files whose contents are a JSON manifest, standing
// in for the wazero loader so engine semantics can be exercised against
// plain files.
type stubLoader struct {
	closed    bool
	loadCalls int
}

func (l *stubLoader) Load(ctx context.Context, path string) (capability.Namespace, error) {
	l.loadCalls++

	if !filepath.IsAbs(path) {
		return nil, &entities.InvalidPathError{Path: path}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &entities.LoadError{Path: path, Err: err}
	}

	var manifest abi.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, &entities.LoadError{Path: path, Err: err}
	}

	return &stubNamespace{manifest: &manifest}, nil
}

func (l *stubLoader) Close(ctx context.Context) error {
	l.closed = true
	return nil
}

type stubNamespace struct {
	manifest *abi.Manifest
	closed   bool
}

func (ns *stubNamespace) Decls() []abi.TypeDecl {
	return ns.manifest.Types
}

func (ns *stubNamespace) Instantiate(ctx context.Context, typeName string) (capability.Instance, error) {
	if typeName == "Boom" {
		return nil, fmt.Errorf("constructor of %s trapped", typeName)
	}
	return &stubInstance{name: typeName}, nil
}

func (ns *stubNamespace) Close(ctx context.Context) error {
	ns.closed = true
	return nil
}

type stubInstance struct {
	name string
}

func (i *stubInstance) TypeName() string { return i.name }

func (i *stubInstance) Invoke(ctx context.Context, method string, payload []byte) ([]byte, error) {
	return payload, nil
}

func (i *stubInstance) Close(ctx context.Context) error { return nil }

// writePlugin writes a fixture plugin file declaring the given types, each
// extending Check.
func writePlugin(t *testing.T, dir, name string, typeNames ...string) string {
	t.Helper()

	manifest := abi.Manifest{Name: name, ABI: "1.0.0"}
	for _, tn := range typeNames {
		manifest.Types = append(manifest.Types, abi.TypeDecl{Name: tn, Extends: "Check"})
	}

	data, err := json.Marshal(manifest)
	require.NoError(t, err)

	path := filepath.Join(dir, name+".wasm")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	return abs
}

func memberNames(a *Annex) []string {
	var names []string
	for _, m := range a.Members() {
		names = append(names, m.TypeName())
	}
	sort.Strings(names)
	return names
}

func newTestAnnex(t *testing.T, dirs any, opts ...Option) *Annex {
	t.Helper()

	base := capability.Define("Check")
	opts = append([]Option{WithLoader(&stubLoader{})}, opts...)

	a, err := New(context.Background(), base, dirs, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestNew_LoadsOneUnitPerFile(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "alpha", "AlphaCheck")
	writePlugin(t, dir, "beta", "BetaCheck")
	writePlugin(t, dir, "gamma", "GammaCheck")

	a := newTestAnnex(t, dir)

	assert.Equal(t, 3, a.Len())
	assert.Equal(t, []string{"AlphaCheck", "BetaCheck", "GammaCheck"}, memberNames(a))
}

func TestNew_LenCountsUnitsNotMembers(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "multi", "One", "Two", "Three")

	a := newTestAnnex(t, dir)

	// One file defining three capabilities is still one unit.
	assert.Equal(t, 1, a.Len())
	assert.Len(t, a.Members(), 3)
}

func TestNew_FileWithoutCapabilitiesIsInvisible(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "empty")
	writePlugin(t, dir, "real", "RealCheck")

	// A file whose only type does not extend the base is equally invisible.
	manifest := abi.Manifest{Name: "stranger", ABI: "1.0.0", Types: []abi.TypeDecl{
		{Name: "Unrelated", Extends: "Widget"},
	}}
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stranger.wasm"), data, 0o600))

	a := newTestAnnex(t, dir)

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, []string{"RealCheck"}, memberNames(a))
}

func TestNew_IgnoresNonMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "alpha", "AlphaCheck")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a plugin"), 0o600))

	a := newTestAnnex(t, dir)
	assert.Equal(t, 1, a.Len())
}

func TestNew_MissingDirectoryContributesNothing(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "alpha", "AlphaCheck")

	a := newTestAnnex(t, []string{dir, filepath.Join(dir, "does-not-exist")})
	assert.Equal(t, 1, a.Len())
}

func TestNew_NestedDirectoryInputs(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	writePlugin(t, dir1, "alpha", "AlphaCheck")
	writePlugin(t, dir2, "beta", "BetaCheck")

	a := newTestAnnex(t, []any{dir1, []string{dir2, dir1}})

	assert.Equal(t, 2, a.Len())
	assert.Equal(t, []string{"AlphaCheck", "BetaCheck"}, memberNames(a))
}

func TestNew_RejectsNonStringDirectoryInput(t *testing.T) {
	base := capability.Define("Check")
	_, err := New(context.Background(), base, 42, WithLoader(&stubLoader{}))
	require.Error(t, err)
}

func TestNew_BadFileSkippedByDefault(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "good", "GoodCheck")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.wasm"), []byte("{not json"), 0o600))

	a := newTestAnnex(t, dir)

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, []string{"GoodCheck"}, memberNames(a))
}

func TestNew_BadFileFailsInStrictMode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.wasm"), []byte("{not json"), 0o600))

	base := capability.Define("Check")
	_, err := New(context.Background(), base, dir,
		WithLoader(&stubLoader{}), WithStrictErrors(true))
	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrUnitLoad))
}

func TestNew_ConstructionFailureIsLoadFailure(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "volatile", "Boom")
	writePlugin(t, dir, "stable", "StableCheck")

	a := newTestAnnex(t, dir)

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, []string{"StableCheck"}, memberNames(a))
}

func TestGet(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "alpha", "AlphaCheck")

	a := newTestAnnex(t, dir)

	t.Run("Found", func(t *testing.T) {
		m, err := a.Get("AlphaCheck")
		require.NoError(t, err)
		assert.Equal(t, "AlphaCheck", m.TypeName())
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := a.Get("NoSuchCheck")
		require.Error(t, err)
		assert.True(t, errors.Is(err, entities.ErrMemberNotFound))

		var nf *entities.NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "NoSuchCheck", nf.Name)
	})
}

func TestReload_NoChangeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "alpha", "AlphaCheck")
	writePlugin(t, dir, "beta", "BetaCheck")

	a := newTestAnnex(t, dir)

	before, err := a.Get("AlphaCheck")
	require.NoError(t, err)

	require.NoError(t, a.Reload(context.Background()))
	require.NoError(t, a.Reload(context.Background()))

	assert.Equal(t, 2, a.Len())
	assert.Equal(t, []string{"AlphaCheck", "BetaCheck"}, memberNames(a))

	// Unchanged files keep their existing members; no fresh scan happened.
	after, err := a.Get("AlphaCheck")
	require.NoError(t, err)
	assert.Same(t, before, after)
}

func TestReload_RewriteWithSameContentDoesNotReload(t *testing.T) {
	dir := t.TempDir()
	path := writePlugin(t, dir, "alpha", "AlphaCheck")

	a := newTestAnnex(t, dir)

	before, err := a.Get("AlphaCheck")
	require.NoError(t, err)

	// Rewrite identical bytes: mtime moves, digest does not.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	require.NoError(t, a.Reload(context.Background()))

	after, err := a.Get("AlphaCheck")
	require.NoError(t, err)
	assert.Same(t, before, after)
}

func TestReload_ChangedFileReplacesUnit(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "alpha", "Foo")

	a := newTestAnnex(t, dir)
	require.Equal(t, 1, a.Len())
	require.Equal(t, []string{"Foo"}, memberNames(a))

	writePlugin(t, dir, "alpha", "Bar", "Baz")
	require.NoError(t, a.Reload(context.Background()))

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, []string{"Bar", "Baz"}, memberNames(a))

	_, err := a.Get("Foo")
	assert.True(t, errors.Is(err, entities.ErrMemberNotFound))
}

func TestReload_NewFileIsLoaded(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "alpha", "AlphaCheck")

	a := newTestAnnex(t, dir)
	require.Equal(t, 1, a.Len())

	writePlugin(t, dir, "beta", "BetaCheck")
	require.NoError(t, a.Reload(context.Background()))

	assert.Equal(t, 2, a.Len())
	assert.Equal(t, []string{"AlphaCheck", "BetaCheck"}, memberNames(a))
}

func TestReload_DeletedFileIsRemoved(t *testing.T) {
	dir := t.TempDir()
	alpha := writePlugin(t, dir, "alpha", "AlphaCheck")
	writePlugin(t, dir, "beta", "BetaCheck")

	a := newTestAnnex(t, dir)
	require.Equal(t, 2, a.Len())

	require.NoError(t, os.Remove(alpha))
	require.NoError(t, a.Reload(context.Background()))

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, []string{"BetaCheck"}, memberNames(a))

	_, err := a.Get("AlphaCheck")
	assert.True(t, errors.Is(err, entities.ErrMemberNotFound))
}

func TestReload_BadChangedFileKeepsStaleUnitByDefault(t *testing.T) {
	dir := t.TempDir()
	path := writePlugin(t, dir, "alpha", "AlphaCheck")

	a := newTestAnnex(t, dir)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	require.NoError(t, a.Reload(context.Background()))

	// The failed replacement leaves the previous unit in place.
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, []string{"AlphaCheck"}, memberNames(a))
}

func TestNonInstantiateMode(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "alpha", "AlphaCheck")

	a := newTestAnnex(t, dir, WithInstantiate(false))

	members := a.Members()
	require.Len(t, members, 1)

	typ, ok := members[0].(capability.Type)
	require.True(t, ok, "non-instantiate mode registers types, got %T", members[0])
	assert.Equal(t, "AlphaCheck", typ.TypeName())
	assert.Equal(t, "Check", typ.Extends())

	inst, err := typ.New(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AlphaCheck", inst.TypeName())
}

func TestAdditionalTypes(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "alpha", "AlphaCheck")

	calls := 0
	extra := capability.Define("ExtraCheck",
		capability.WithParent("Check"),
		capability.WithFactory(func() capability.Instance {
			return &stubInstance{name: "ExtraCheck"}
		}))

	a := newTestAnnex(t, dir, WithAdditionalTypes(func() []capability.Type {
		calls++
		return []capability.Type{extra}
	}))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"AlphaCheck", "ExtraCheck"}, memberNames(a))

	// Additional members never count toward the unit total.
	assert.Equal(t, 1, a.Len())

	m, err := a.Get("ExtraCheck")
	require.NoError(t, err)
	assert.Equal(t, "ExtraCheck", m.TypeName())

	// Reload does not touch additional members.
	require.NoError(t, a.Reload(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"AlphaCheck", "ExtraCheck"}, memberNames(a))
}

func TestAdditionalTypes_ConstructionFailurePropagates(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "alpha", "AlphaCheck")

	base := capability.Define("Check")
	_, err := New(context.Background(), base, dir,
		WithLoader(&stubLoader{}),
		WithAdditionalTypes(func() []capability.Type {
			// No factory: zero-argument construction fails.
			return []capability.Type{capability.Define("Broken")}
		}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broken")
}

func TestClose_ReleasesOwnedLoaderOnly(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "alpha", "AlphaCheck")

	loader := &stubLoader{}
	base := capability.Define("Check")
	a, err := New(context.Background(), base, dir, WithLoader(loader))
	require.NoError(t, err)

	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, 0, a.Len())
	assert.False(t, loader.closed, "Annex must not close a loader it does not own")
}

func TestSchemas_TracksDeclaredSchemas(t *testing.T) {
	dir := t.TempDir()

	manifest := abi.Manifest{Name: "alpha", ABI: "1.0.0", Types: []abi.TypeDecl{
		{Name: "AlphaCheck", Extends: "Check", Schema: json.RawMessage(`{"type":"object"}`)},
	}}
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	path := filepath.Join(dir, "alpha.wasm")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	a := newTestAnnex(t, dir)

	schema, ok := a.Schemas().GetSchema("AlphaCheck")
	require.True(t, ok)
	assert.JSONEq(t, `{"type":"object"}`, schema)

	require.NoError(t, os.Remove(path))
	require.NoError(t, a.Reload(context.Background()))

	_, ok = a.Schemas().GetSchema("AlphaCheck")
	assert.False(t, ok, "schema registration must be retired with its unit")
}

func TestSchemas_NonMemberDeclarationSchemaRetiredWithUnit(t *testing.T) {
	dir := t.TempDir()

	// HelperConfig carries a schema but extends nothing, so it never becomes
	// a capability member. Its registration must still die with the unit.
	manifest := abi.Manifest{Name: "alpha", ABI: "1.0.0", Types: []abi.TypeDecl{
		{Name: "AlphaCheck", Extends: "Check", Schema: json.RawMessage(`{"type":"object"}`)},
		{Name: "HelperConfig", Schema: json.RawMessage(`{"type":"object"}`)},
	}}
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	path := filepath.Join(dir, "alpha.wasm")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	a := newTestAnnex(t, dir)

	assert.Equal(t, []string{"AlphaCheck"}, memberNames(a))
	_, ok := a.Schemas().GetSchema("HelperConfig")
	require.True(t, ok)

	require.NoError(t, os.Remove(path))
	require.NoError(t, a.Reload(context.Background()))

	require.Equal(t, 0, a.Len())
	_, ok = a.Schemas().GetSchema("HelperConfig")
	assert.False(t, ok, "a declaration-only schema must be retired with its unit")
	_, ok = a.Schemas().GetSchema("AlphaCheck")
	assert.False(t, ok)
}
