package schema

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/emicklei/proto"
)

// ParseFile parses a schema file. The module path is the file path as given.
func ParseFile(path string) (Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Module{}, fmt.Errorf("read file %s: %w", path, err)
	}

	return Parse(filepath.ToSlash(path), data)
}

// Parse parses schema text. name becomes the module path.
func Parse(name string, data []byte) (Module, error) {
	parser := proto.NewParser(bytes.NewReader(data))
	parser.Filename(name)

	def, err := parser.Parse()
	if err != nil {
		return Module{}, fmt.Errorf("parse %s: %w", name, err)
	}

	mod := Module{Path: name, Source: data}
	for _, v := range def.Elements {
		els, err := convertTopLevel(v)
		if err != nil {
			return Module{}, fmt.Errorf("parse %s: %w", name, err)
		}
		for _, el := range els {
			if pkg, ok := el.(*Package); ok {
				mod.Package = pkg.Name
			}
		}
		mod.Elements = append(mod.Elements, els...)
	}

	return mod, nil
}

// ParseDir parses every .proto file below dir, including subdirectories.
// Module paths are relative to dir.
func ParseDir(dir string) ([]Module, error) {
	var modules []Module

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".proto") {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read file %s: %w", path, err)
		}

		mod, err := Parse(filepath.ToSlash(rel), data)
		if err != nil {
			return err
		}

		modules = append(modules, mod)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return modules, nil
}

func convertTopLevel(v proto.Visitee) ([]Element, error) {
	switch e := v.(type) {
	case *proto.Syntax:
		return []Element{&Option{Name: "syntax", Value: e.Value}}, nil
	case *proto.Package:
		return []Element{&Package{Name: e.Name}}, nil
	case *proto.Import:
		return []Element{&Import{Path: e.Filename, Modifier: e.Kind}}, nil
	case *proto.Option:
		return []Element{&Option{Name: e.Name, Value: e.Constant.SourceRepresentation()}}, nil
	case *proto.Comment:
		return []Element{&Comment{Text: commentText(e)}}, nil
	case *proto.Message:
		if e.IsExtend {
			fields, _, err := convertBody(e.Name, e.Elements)
			if err != nil {
				return nil, err
			}
			return []Element{&Extension{Target: e.Name, Fields: fields}}, nil
		}
		msg, err := convertMessage(e)
		if err != nil {
			return nil, err
		}
		return []Element{msg}, nil
	case *proto.Enum:
		return []Element{convertEnum(e)}, nil
	case *proto.Service:
		return []Element{convertService(e)}, nil
	default:
		return nil, fmt.Errorf("unsupported top-level element %T", v)
	}
}

func convertMessage(m *proto.Message) (*Message, error) {
	fields, nested, err := convertBody(m.Name, m.Elements)
	if err != nil {
		return nil, err
	}
	return &Message{Name: m.Name, Fields: fields, Nested: nested}, nil
}

func convertBody(scope string, elements []proto.Visitee) ([]Field, []Element, error) {
	var (
		fields []Field
		nested []Element
	)

	for _, v := range elements {
		switch e := v.(type) {
		case *proto.NormalField:
			f := convertField(e.Field)
			switch {
			case e.Repeated:
				f.Cardinality = Repeated
			case e.Optional:
				f.Cardinality = Optional
			}
			fields = append(fields, f)
		case *proto.MapField:
			f := convertField(e.Field)
			f.Cardinality = Map
			f.KeyType = Ref(e.KeyType)
			fields = append(fields, f)
		case *proto.Oneof:
			for _, ov := range e.Elements {
				of, ok := ov.(*proto.OneOfField)
				if !ok {
					continue
				}
				f := convertField(of.Field)
				f.Cardinality = Optional
				f.Oneof = e.Name
				fields = append(fields, f)
			}
		case *proto.Message:
			msg, err := convertMessage(e)
			if err != nil {
				return nil, nil, err
			}
			nested = append(nested, msg)
		case *proto.Enum:
			nested = append(nested, convertEnum(e))
		case *proto.Group:
			return nil, nil, fmt.Errorf("message %s: group %s is not supported", scope, e.Name)
		case *proto.Option, *proto.Reserved, *proto.Extensions, *proto.Comment:
			// no representation in generated code
		default:
			return nil, nil, fmt.Errorf("message %s: unsupported element %T", scope, v)
		}
	}

	return fields, nested, nil
}

func convertField(f *proto.Field) Field {
	field := Field{
		Name:   f.Name,
		Type:   Ref(f.Type),
		Number: f.Sequence,
	}
	for _, opt := range f.Options {
		if opt.Name == "default" {
			field.Default = &Literal{Text: opt.Constant.Source, Quoted: opt.Constant.IsString}
		}
	}
	return field
}

func convertEnum(e *proto.Enum) *Enum {
	enum := &Enum{Name: e.Name}
	for _, v := range e.Elements {
		if ef, ok := v.(*proto.EnumField); ok {
			enum.Values = append(enum.Values, EnumValue{Label: ef.Name, Number: ef.Integer})
		}
	}
	return enum
}

func convertService(s *proto.Service) *Service {
	svc := &Service{Name: s.Name}
	if s.Comment != nil {
		svc.Elements = append(svc.Elements, &Comment{Text: commentText(s.Comment)})
	}

	for _, v := range s.Elements {
		switch e := v.(type) {
		case *proto.Comment:
			svc.Elements = append(svc.Elements, &Comment{Text: commentText(e)})
		case *proto.RPC:
			if c := e.Comment; c != nil {
				// a comment opening the service body is merged by the parser
				// with the one above the first rpc
				if c.Position.Line == s.Position.Line && !c.Cstyle && len(c.Lines) > 1 {
					head, tail := *c, *c
					head.Lines, tail.Lines = c.Lines[:1], c.Lines[1:]
					svc.Elements = append(svc.Elements, &Comment{Text: commentText(&head)}, &Comment{Text: commentText(&tail)})
				} else {
					svc.Elements = append(svc.Elements, &Comment{Text: commentText(c)})
				}
			}
			svc.Elements = append(svc.Elements, &Method{
				Name:   e.Name,
				Input:  TypeRef{Name: e.RequestType, Stream: e.StreamsRequest},
				Output: TypeRef{Name: e.ReturnsType, Stream: e.StreamsReturns},
			})
		case *proto.Option:
			svc.Elements = append(svc.Elements, &Option{Name: e.Name, Value: e.Constant.SourceRepresentation()})
		}
	}

	return svc
}

// commentText restores the comment markers the parser strips.
func commentText(c *proto.Comment) string {
	if c.Cstyle {
		return "/*" + strings.Join(c.Lines, "\n") + "*/"
	}

	prefix := "//"
	if c.ExtraSlash {
		prefix = "///"
	}
	lines := make([]string, len(c.Lines))
	for i, line := range c.Lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
