package generator

import (
	"strconv"

	"github.com/irusland/pyroto/core/pyast"
	"github.com/irusland/pyroto/core/schema"
)

var intEnumImport = pyast.ImportFrom{Module: "enum", Name: "IntEnum"}

// enum renders an Enum as an IntEnum subclass with one member per value.
func (st *moduleState) enum(e *schema.Enum) (pyast.ClassDef, error) {
	st.resolver.AddImport(intEnumImport)

	body := make([]pyast.Stmt, 0, len(e.Values))
	for _, v := range e.Values {
		body = append(body, pyast.Assign{
			Target: pyast.N(pyast.Identifier(v.Label)),
			Value:  pyast.Num{Text: strconv.Itoa(v.Number)},
		})
	}
	if len(body) == 0 {
		body = append(body, pyast.Pass{})
	}

	return pyast.ClassDef{
		Name:  e.Name,
		Bases: []pyast.Expr{pyast.N(intEnumImport.Name)},
		Body:  body,
	}, nil
}
