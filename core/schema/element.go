package schema

// ElementKind identifies the variant of an Element.
type ElementKind int

const (
	KindMessage ElementKind = iota + 1
	KindEnum
	KindService
	KindMethod
	KindImport
	KindPackage
	KindOption
	KindComment
	KindExtension
	KindEmpty
)

var kindNames = map[ElementKind]string{
	KindMessage:   "message",
	KindEnum:      "enum",
	KindService:   "service",
	KindMethod:    "method",
	KindImport:    "import",
	KindPackage:   "package",
	KindOption:    "option",
	KindComment:   "comment",
	KindExtension: "extension",
	KindEmpty:     "empty",
}

func (k ElementKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Element is one entry of a Module or Service body.
// The set of implementations is closed to this package.
type Element interface {
	Kind() ElementKind
	element()
}

// Message declares a data record.
type Message struct {
	Name   string
	Fields []Field
	// Nested holds nested *Message and *Enum declarations in order.
	Nested []Element
}

// Enum declares an enumeration.
type Enum struct {
	Name   string
	Values []EnumValue
}

// EnumValue is one labeled member of an Enum.
type EnumValue struct {
	Label  string
	Number int
}

// Service declares an RPC service. Elements holds *Method and *Comment
// entries in declaration order; a leading Comment is the service doc.
type Service struct {
	Name     string
	Elements []Element
}

// Methods returns the service methods in order.
func (s *Service) Methods() []*Method {
	var out []*Method
	for _, el := range s.Elements {
		if m, ok := el.(*Method); ok {
			out = append(out, m)
		}
	}
	return out
}

// Method is one RPC of a Service.
type Method struct {
	Name   string
	Input  TypeRef
	Output TypeRef
}

// Import references another schema file.
type Import struct {
	Path string
	// Modifier is "public", "weak" or empty.
	Modifier string
}

// Package declares the schema package.
type Package struct {
	Name string
}

// Option is a file-level option; the syntax statement is recorded as the
// option "syntax".
type Option struct {
	Name  string
	Value string
}

// Comment is a free-standing comment. Text keeps the comment markers.
type Comment struct {
	Text string
}

// Extension is an extend block.
type Extension struct {
	Target string
	Fields []Field
}

// Empty is a statement with no content.
type Empty struct{}

func (*Message) Kind() ElementKind   { return KindMessage }
func (*Enum) Kind() ElementKind      { return KindEnum }
func (*Service) Kind() ElementKind   { return KindService }
func (*Method) Kind() ElementKind    { return KindMethod }
func (*Import) Kind() ElementKind    { return KindImport }
func (*Package) Kind() ElementKind   { return KindPackage }
func (*Option) Kind() ElementKind    { return KindOption }
func (*Comment) Kind() ElementKind   { return KindComment }
func (*Extension) Kind() ElementKind { return KindExtension }
func (*Empty) Kind() ElementKind     { return KindEmpty }

func (*Message) element()   {}
func (*Enum) element()      {}
func (*Service) element()   {}
func (*Method) element()    {}
func (*Import) element()    {}
func (*Package) element()   {}
func (*Option) element()    {}
func (*Comment) element()   {}
func (*Extension) element() {}
func (*Empty) element()     {}
