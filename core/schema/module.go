package schema

import (
	"path"
	"strings"
)

// Module is one parsed schema file.
type Module struct {
	// Path is the file path relative to the source root, slash separated
	// (e.g., "tinkoff/invest/sandbox.proto").
	Path string

	// Package is the declared schema package, empty when none.
	Package string

	// Elements in file order.
	Elements []Element

	// Source is the raw schema text the module was parsed from.
	Source []byte
}

// Name returns the file name without directory or extension.
func (m Module) Name() string {
	return strings.TrimSuffix(path.Base(m.Path), path.Ext(m.Path))
}

// Messages returns the top-level messages in declaration order.
func (m Module) Messages() []*Message {
	var out []*Message
	for _, el := range m.Elements {
		if msg, ok := el.(*Message); ok {
			out = append(out, msg)
		}
	}
	return out
}

// Services returns the services in declaration order.
func (m Module) Services() []*Service {
	var out []*Service
	for _, el := range m.Elements {
		if svc, ok := el.(*Service); ok {
			out = append(out, svc)
		}
	}
	return out
}

// Declared returns the names this module defines, top-level first and then
// nested names joined with dots ("Outer", "Outer.Inner").
func (m Module) Declared() []Declaration {
	var out []Declaration
	for _, el := range m.Elements {
		switch e := el.(type) {
		case *Message:
			out = append(out, Declaration{Name: e.Name, Kind: KindMessage})
			out = append(out, nestedDeclarations(e.Name, e.Nested)...)
		case *Enum:
			out = append(out, Declaration{Name: e.Name, Kind: KindEnum})
		case *Service:
			out = append(out, Declaration{Name: e.Name, Kind: KindService})
		}
	}
	return out
}

// Declaration is a name defined by a module.
type Declaration struct {
	Name string
	Kind ElementKind
}

// Nested reports whether the declaration lives inside a message.
func (d Declaration) Nested() bool {
	return strings.Contains(d.Name, ".")
}

func nestedDeclarations(prefix string, nested []Element) []Declaration {
	var out []Declaration
	for _, el := range nested {
		switch e := el.(type) {
		case *Message:
			name := prefix + "." + e.Name
			out = append(out, Declaration{Name: name, Kind: KindMessage})
			out = append(out, nestedDeclarations(name, e.Nested)...)
		case *Enum:
			out = append(out, Declaration{Name: prefix + "." + e.Name, Kind: KindEnum})
		}
	}
	return out
}
