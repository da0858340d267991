package generator

import (
	"fmt"
	"strings"

	"github.com/irusland/pyroto/core/pyast"
	"github.com/irusland/pyroto/core/registry"
	"github.com/irusland/pyroto/core/schema"
)

var dataclassImport = pyast.ImportFrom{Module: "dataclasses", Name: "dataclass"}

// message renders a Message as a dataclass. scope is the dotted name of the
// enclosing message, empty at top level.
func (st *moduleState) message(m *schema.Message, scope string) (pyast.ClassDef, error) {
	name := m.Name
	if scope != "" {
		name = scope + "." + m.Name
	}

	st.resolver.AddImport(dataclassImport)

	var body []pyast.Stmt
	for _, el := range m.Nested {
		switch e := el.(type) {
		case *schema.Message:
			decl, err := st.message(e, name)
			if err != nil {
				return pyast.ClassDef{}, err
			}
			body = append(body, decl)
		case *schema.Enum:
			decl, err := st.enum(e)
			if err != nil {
				return pyast.ClassDef{}, err
			}
			body = append(body, decl)
		default:
			return pyast.ClassDef{}, &StructureError{Scope: "message " + name, Kind: el.Kind()}
		}
	}

	for _, f := range m.Fields {
		ann, err := st.types.Field(f, name)
		if err != nil {
			return pyast.ClassDef{}, fmt.Errorf("message %s field %s: %w", name, f.Name, err)
		}

		attr := pyast.AnnAssign{Target: pyast.Identifier(f.Name), Annotation: ann}
		value, err := st.defaultValue(f, name)
		if err != nil {
			return pyast.ClassDef{}, fmt.Errorf("message %s field %s: %w", name, f.Name, err)
		}
		attr.Value = value
		body = append(body, attr)
	}

	if len(body) == 0 {
		body = []pyast.Stmt{pyast.Pass{}}
	}

	return pyast.ClassDef{
		Name:       m.Name,
		Decorators: []pyast.Expr{pyast.N(dataclassImport.Name)},
		Body:       body,
	}, nil
}

// defaultValue returns the declared default of f, or nil when the schema
// declares none.
func (st *moduleState) defaultValue(f schema.Field, scope string) (pyast.Expr, error) {
	if f.Default == nil {
		return nil, nil
	}

	lit := *f.Default
	if lit.Quoted {
		return pyast.Str(lit.Text), nil
	}

	switch f.Type.Name {
	case "bool":
		return pyast.Constant{Value: lit.Text == "true"}, nil
	case "double", "float":
		switch lit.Text {
		case "inf", "-inf", "nan":
			return pyast.Call{Func: pyast.N("float"), Args: []pyast.Expr{pyast.Str(lit.Text)}}, nil
		}
		return pyast.Num{Text: lit.Text}, nil
	}

	if f.Type.IsScalar() {
		return pyast.Num{Text: lit.Text}, nil
	}

	entry, err := st.resolver.ResolveReference(f.Type.Name, scope)
	if err != nil {
		return nil, err
	}
	if entry.Kind != schema.KindEnum {
		return nil, fmt.Errorf("default %s is not valid for %s %s", lit.Text, kindName(entry), entry.Symbol)
	}

	// the enclosing class is not bound yet while its body executes
	if rel, ok := strings.CutPrefix(entry.Symbol, scope+"."); ok && scope != "" {
		parts := strings.Split(rel, ".")
		return pyast.Attr(pyast.N(parts[0]), append(parts[1:], pyast.Identifier(lit.Text))...), nil
	}

	cls, err := st.types.Class(f.Type.Name, scope)
	if err != nil {
		return nil, err
	}
	return pyast.Attribute{Value: cls, Attr: pyast.Identifier(lit.Text)}, nil
}

func kindName(e registry.Entry) string {
	if e.WellKnown() {
		return "well-known type"
	}
	return e.Kind.String()
}
