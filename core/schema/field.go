package schema

import "strings"

// Field is one attribute of a Message.
type Field struct {
	Name   string
	Type   TypeRef
	Number int

	// Cardinality of the field. See Cardinality constants.
	Cardinality Cardinality

	// KeyType is the key type of a map field.
	KeyType TypeRef

	// Default is the declared default value, nil when none is declared.
	Default *Literal

	// Oneof names the enclosing oneof group, empty when none.
	Oneof string
}

// Cardinality describes how many values a field holds.
type Cardinality int

const (
	Singular Cardinality = iota
	Repeated
	Optional
	Map
)

func (c Cardinality) String() string {
	switch c {
	case Repeated:
		return "repeated"
	case Optional:
		return "optional"
	case Map:
		return "map"
	default:
		return "singular"
	}
}

// Literal is a constant as written in the schema.
type Literal struct {
	Text string
	// Quoted is true for string literals; Text holds the unquoted value.
	Quoted bool
}

// TypeRef references a type by the name written in the schema.
type TypeRef struct {
	Name string
	// Stream is only set on RPC input and output types.
	Stream bool
}

// Ref returns a non-stream reference to name.
func Ref(name string) TypeRef {
	return TypeRef{Name: name}
}

// StreamOf returns a stream reference to name.
func StreamOf(name string) TypeRef {
	return TypeRef{Name: name, Stream: true}
}

// Qualified reports whether the name carries a package or nesting prefix.
func (t TypeRef) Qualified() bool {
	return strings.Contains(strings.TrimPrefix(t.Name, "."), ".")
}

// Simple returns the last segment of the name.
func (t TypeRef) Simple() string {
	if i := strings.LastIndex(t.Name, "."); i >= 0 {
		return t.Name[i+1:]
	}
	return t.Name
}

func (t TypeRef) String() string {
	if t.Stream {
		return "stream " + t.Name
	}
	return t.Name
}

var scalarTypes = map[string]bool{
	"double": true, "float": true,
	"int32": true, "int64": true, "uint32": true, "uint64": true,
	"sint32": true, "sint64": true,
	"fixed32": true, "fixed64": true, "sfixed32": true, "sfixed64": true,
	"bool": true, "string": true, "bytes": true,
}

// IsScalar reports whether the reference names a built-in scalar type.
func (t TypeRef) IsScalar() bool {
	return scalarTypes[t.Name]
}
