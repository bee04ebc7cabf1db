package capability

import (
	"context"
)

// Extract filters a loaded namespace down to the capability types strictly
// below base, in declaration order. In instantiate mode each qualifying type
// is constructed with no arguments and the instances are returned; otherwise
// the types themselves are returned.
//
// A declaration carrying the base's own name is never kept, mirroring the
// registry's rule that the base type cannot register itself. A namespace with
// no qualifying declarations yields an empty result and no error.
func Extract(ctx context.Context, ns Namespace, base Type, instantiate bool) ([]Member, error) {
	decls := ns.Decls()

	parents := make(map[string]string, len(decls))
	for _, decl := range decls {
		parents[decl.Name] = decl.Extends
	}

	var members []Member
	for _, decl := range decls {
		if decl.Name == base.TypeName() {
			continue
		}
		if !extendsBase(decl.Name, base.TypeName(), parents) {
			continue
		}

		if !instantiate {
			members = append(members, &declared{ns: ns, decl: decl})
			continue
		}

		inst, err := ns.Instantiate(ctx, decl.Name)
		if err != nil {
			return nil, err
		}
		members = append(members, inst)
	}

	return members, nil
}

// extendsBase walks the extends chain from name and reports whether it
// reaches base. The chain may pass through other declarations in the same
// namespace before terminating at the base or at an unknown parent.
func extendsBase(name, base string, parents map[string]string) bool {
	seen := map[string]bool{name: true}

	for cur := parents[name]; cur != ""; cur = parents[cur] {
		if cur == base {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
	}

	return false
}
