package generator

import (
	"fmt"

	"github.com/irusland/pyroto/core/pyast"
	"github.com/irusland/pyroto/core/schema"
)

// service renders a Service as a client class. A leading comment becomes
// the docstring, later comments are dropped, and each method is generated
// in order. Any other element is a StructureError.
func (st *moduleState) service(s *schema.Service) (pyast.ClassDef, error) {
	var body []pyast.Stmt

	elements := s.Elements
	if len(elements) > 0 {
		if c, ok := elements[0].(*schema.Comment); ok {
			body = append(body, pyast.Doc(c.Text))
			elements = elements[1:]
		}
	}

	pb2, grpc := st.pb2Modules()
	st.resolver.AddImport(pb2)
	st.resolver.AddImport(grpc)
	body = append(body,
		pyast.Assign{Target: pyast.N("_protobuf"), Value: pyast.N(pb2.Name)},
		pyast.Assign{Target: pyast.N("_protobuf_grpc"), Value: pyast.N(grpc.Name)},
		pyast.Assign{Target: pyast.N("_protobuf_stub"), Value: pyast.Attr(pyast.N("_protobuf_grpc"), s.Name+"Stub")},
	)

	for _, el := range elements {
		switch e := el.(type) {
		case *schema.Comment:
			continue
		case *schema.Method:
			fn, err := st.method(e)
			if err != nil {
				return pyast.ClassDef{}, fmt.Errorf("service %s: %w", s.Name, err)
			}
			body = append(body, fn)
		default:
			return pyast.ClassDef{}, &StructureError{Scope: "service " + s.Name, Kind: el.Kind()}
		}
	}

	var bases []pyast.Expr
	if st.opts.BaseService != "" {
		bases = append(bases, pyast.N(st.importDotted(st.opts.BaseService)))
	}

	return pyast.ClassDef{
		Name:  s.Name,
		Bases: bases,
		Body:  body,
	}, nil
}
