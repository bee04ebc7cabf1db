package host

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/annex-dev/annex-host-sdk/abi"
	"github.com/annex-dev/annex-host-sdk/capability"
)

// Namespace is a loaded module's defined names, as presented for capability
// scanning: the manifest's type declarations backed by the live module
// instance that can construct them.
type Namespace struct {
	loader   *Loader
	name     string
	module   api.Module
	manifest *abi.Manifest
}

// Name returns the namespace's unit name.
func (ns *Namespace) Name() string {
	return ns.name
}

// Manifest returns the module's manifest document.
func (ns *Namespace) Manifest() *abi.Manifest {
	return ns.manifest
}

// Decls returns the module's type declarations in declaration order.
func (ns *Namespace) Decls() []abi.TypeDecl {
	return ns.manifest.Types
}

// Instantiate constructs the named declared type by calling its exported
// zero-argument constructor.
func (ns *Namespace) Instantiate(ctx context.Context, typeName string) (capability.Instance, error) {
	ctor := ns.module.ExportedFunction(abi.ConstructorExport(typeName))
	if ctor == nil {
		return nil, fmt.Errorf("constructor %q not exported", abi.ConstructorExport(typeName))
	}

	res, err := ctor.Call(ctx)
	if err != nil {
		return nil, fmt.Errorf("construct %s: %w", typeName, err)
	}

	var handle uint64
	if len(res) > 0 {
		handle = res[0]
	}

	inst := &Instance{
		ns:       ns,
		typeName: typeName,
		handle:   handle,
	}
	inst.handler = capability.Chain(inst.call, ns.loader.middleware...)
	return inst, nil
}

// Close closes the module instance behind the namespace. A module that a
// later load has already replaced under the same unit name is not touched;
// closing a retired namespace must never tear down its replacement.
func (ns *Namespace) Close(ctx context.Context) error {
	ns.loader.closeNamed(ctx, ns.name, ns.module)
	return nil
}

// Instance is a constructed capability bound to its module instance.
type Instance struct {
	ns       *Namespace
	typeName string
	handle   uint64
	handler  capability.Handler
}

// TypeName returns the capability's declared type name.
func (i *Instance) TypeName() string {
	return i.typeName
}

// Invoke calls a method on the capability through the loader's middleware
// chain.
func (i *Instance) Invoke(ctx context.Context, method string, payload []byte) ([]byte, error) {
	return i.handler(ctx, method, payload)
}

// Close calls the type's drop export with the instance handle, if the module
// provides one.
func (i *Instance) Close(ctx context.Context) error {
	drop := i.ns.module.ExportedFunction(abi.MethodExport(i.typeName, "drop"))
	if drop == nil {
		return nil
	}
	_, err := drop.Call(ctx, i.handle)
	return err
}

// call performs the raw method invocation over the packed ABI.
func (i *Instance) call(ctx context.Context, method string, payload []byte) ([]byte, error) {
	fn := i.ns.module.ExportedFunction(abi.MethodExport(i.typeName, method))
	if fn == nil {
		return nil, fmt.Errorf("method %q not exported", abi.MethodExport(i.typeName, method))
	}

	var packedIn uint64
	if len(payload) > 0 {
		ptr, err := i.allocate(ctx, uint32(len(payload)))
		if err != nil {
			return nil, err
		}
		if !i.ns.module.Memory().Write(ptr, payload) {
			return nil, fmt.Errorf("failed to write payload to module memory")
		}
		packedIn = abi.PackPtrLen(ptr, uint32(len(payload)))
	}

	res, err := fn.Call(ctx, i.handle, packedIn)
	if err != nil {
		return nil, fmt.Errorf("invoke %s.%s: %w", i.typeName, method, err)
	}
	if len(res) == 0 {
		return nil, nil
	}

	ptr, length := abi.UnpackPtrLen(res[0])
	if length == 0 {
		return nil, nil
	}

	data, ok := i.ns.module.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("failed to read response from module memory")
	}
	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

// allocate reserves guest memory via the module's allocate export.
func (i *Instance) allocate(ctx context.Context, size uint32) (uint32, error) {
	alloc := i.ns.module.ExportedFunction(abi.ExportAllocate)
	if alloc == nil {
		return 0, fmt.Errorf("export %q not found", abi.ExportAllocate)
	}
	res, err := alloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("allocate failed: %w", err)
	}
	//nolint:gosec // WASM pointers are 32-bit
	return uint32(res[0]), nil
}
