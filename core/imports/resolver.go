// Package imports builds the import list of one generated module.
package imports

import (
	"github.com/irusland/pyroto/core/pyast"
	"github.com/irusland/pyroto/core/registry"
)

// Resolver collects the imports one output module needs. It is not safe
// for concurrent use; each module being generated owns its own Resolver.
type Resolver struct {
	table   *registry.Table
	self    string
	imports []pyast.ImportFrom
	seen    map[pyast.ImportFrom]bool
}

// NewResolver creates a resolver for the module at path self.
func NewResolver(table *registry.Table, self string) *Resolver {
	return &Resolver{
		table: table,
		self:  self,
		seen:  make(map[pyast.ImportFrom]bool),
	}
}

// Self returns the path of the module the resolver serves.
func (r *Resolver) Self() string {
	return r.self
}

// AddImport appends imp unless the same (module, name, alias) is already
// present or imp names the resolver's own module.
func (r *Resolver) AddImport(imp pyast.ImportFrom) {
	if imp.Module == r.self || r.seen[imp] {
		return
	}
	r.seen[imp] = true
	r.imports = append(r.imports, imp)
}

// ResolveDependency imports symbol from its owning module. Symbols owned by
// this module need no import.
func (r *Resolver) ResolveDependency(symbol string) (registry.Entry, error) {
	entry, err := r.table.Resolve(symbol)
	if err != nil {
		return registry.Entry{}, err
	}
	r.addEntry(entry)
	return entry, nil
}

// ResolveReference resolves a type name as written in the schema from the
// given message scope and imports it.
func (r *Resolver) ResolveReference(name, scope string) (registry.Entry, error) {
	entry, err := r.table.Lookup(name, scope)
	if err != nil {
		return registry.Entry{}, err
	}
	r.addEntry(entry)
	return entry, nil
}

func (r *Resolver) addEntry(entry registry.Entry) {
	if entry.Module == r.self {
		return
	}
	r.AddImport(pyast.ImportFrom{Module: entry.Module, Name: entry.Name})
}

// Imports returns the collected imports in first-seen order.
func (r *Resolver) Imports() []pyast.ImportFrom {
	out := make([]pyast.ImportFrom, len(r.imports))
	copy(out, r.imports)
	return out
}
