// Package typemap translates schema type references into Python annotations.
package typemap

import (
	"strings"

	"github.com/irusland/pyroto/core/imports"
	"github.com/irusland/pyroto/core/pyast"
	"github.com/irusland/pyroto/core/schema"
)

var scalars = map[string]string{
	"double":   "float",
	"float":    "float",
	"int32":    "int",
	"int64":    "int",
	"uint32":   "int",
	"uint64":   "int",
	"sint32":   "int",
	"sint64":   "int",
	"fixed32":  "int",
	"fixed64":  "int",
	"sfixed32": "int",
	"sfixed64": "int",
	"bool":     "bool",
	"string":   "str",
	"bytes":    "bytes",
}

// Scalar returns the built-in Python type for a scalar schema type.
func Scalar(name string) (string, bool) {
	py, ok := scalars[name]
	return py, ok
}

// Mapper maps types for one output module, recording every dependency with
// the module's import resolver.
type Mapper struct {
	resolver *imports.Resolver
}

// New creates a mapper that reports dependencies to r.
func New(r *imports.Resolver) *Mapper {
	return &Mapper{resolver: r}
}

// Map returns the annotation for ref. Domain types become forward
// references ('Pong'); a stream reference is wrapped in Iterable.
func (m *Mapper) Map(ref schema.TypeRef, scope string) (pyast.Expr, error) {
	plain, err := m.plain(ref.Name, scope)
	if err != nil {
		return nil, err
	}
	if ref.Stream {
		return m.generic("Iterable", plain), nil
	}
	return plain, nil
}

// Field returns the annotation for a message field, wrapping the element
// type according to the field cardinality.
func (m *Mapper) Field(f schema.Field, scope string) (pyast.Expr, error) {
	elem, err := m.plain(f.Type.Name, scope)
	if err != nil {
		return nil, err
	}

	switch f.Cardinality {
	case schema.Repeated:
		return m.generic("List", elem), nil
	case schema.Optional:
		return m.generic("Optional", elem), nil
	case schema.Map:
		key, err := m.plain(f.KeyType.Name, scope)
		if err != nil {
			return nil, err
		}
		return m.generic("Dict", pyast.Tuple{Elts: []pyast.Expr{key, elem}}), nil
	default:
		return elem, nil
	}
}

// Class returns an expression naming the class itself, for use at runtime
// rather than in an annotation (e.g. protobuf_to_dataclass(response, Pong)).
func (m *Mapper) Class(name, scope string) (pyast.Expr, error) {
	if py, ok := scalars[name]; ok {
		return pyast.N(py), nil
	}

	entry, err := m.resolver.ResolveReference(name, scope)
	if err != nil {
		return nil, err
	}
	if entry.WellKnown() {
		return pyast.N(entry.Name), nil
	}

	parts := strings.Split(entry.Symbol, ".")
	return pyast.Attr(pyast.N(parts[0]), parts[1:]...), nil
}

// WireType returns the protobuf message class an RPC input is encoded
// into. Generated types are attributes of pb2, the service's *_pb2 module;
// well-known types are imported from google.protobuf.
func (m *Mapper) WireType(name, scope string, pb2 pyast.Expr) (pyast.Expr, error) {
	entry, err := m.resolver.ResolveReference(name, scope)
	if err != nil {
		return nil, err
	}
	if entry.WellKnown() {
		simple := schema.Ref(entry.Symbol).Simple()
		m.resolver.AddImport(pyast.ImportFrom{
			Module: "google.protobuf." + strings.ToLower(simple) + "_pb2",
			Name:   simple,
		})
		return pyast.N(simple), nil
	}
	parts := strings.Split(entry.Symbol, ".")
	return pyast.Attr(pb2, parts...), nil
}

func (m *Mapper) plain(name, scope string) (pyast.Expr, error) {
	if py, ok := scalars[name]; ok {
		return pyast.N(py), nil
	}

	entry, err := m.resolver.ResolveReference(name, scope)
	if err != nil {
		return nil, err
	}
	if entry.WellKnown() {
		return pyast.N(entry.Name), nil
	}
	return pyast.Str(entry.Symbol), nil
}

func (m *Mapper) generic(construct string, arg pyast.Expr) pyast.Expr {
	m.resolver.AddImport(pyast.ImportFrom{Module: "typing", Name: construct})
	return pyast.Subscript{Value: pyast.N(construct), Slice: arg}
}
