// Package pyast is the structural form of a generated Python module.
// Nodes are plain values built by the generators and serialized by pywriter;
// they are never evaluated.
package pyast

// Module is one generated output file.
type Module struct {
	// Path is the dotted module path (e.g., "tinkoff.invest.grpc.sandbox").
	Path string

	// Imports in first-seen order.
	Imports []ImportFrom

	// Body holds the top-level declarations in schema order.
	Body []Stmt
}

// ImportFrom is a "from Module import Name [as Alias]" statement. With an
// empty Module it is a plain "import Name".
type ImportFrom struct {
	Module string
	Name   string
	Alias  string
}

// Bound returns the name the import binds in the importing module.
func (i ImportFrom) Bound() string {
	if i.Alias != "" {
		return i.Alias
	}
	return i.Name
}

// Expr is an expression node.
type Expr interface {
	expr()
}

// Name is an identifier.
type Name struct {
	ID string
}

// Constant is a string, integer, float, bool or nil literal.
type Constant struct {
	Value any
}

// Num is a numeric literal kept exactly as written.
type Num struct {
	Text string
}

// Attribute is Value.Attr.
type Attribute struct {
	Value Expr
	Attr  string
}

// Call is Func(Args..., Keywords...).
type Call struct {
	Func     Expr
	Args     []Expr
	Keywords []Keyword
}

// Keyword is one name=value call argument.
type Keyword struct {
	Arg   string
	Value Expr
}

// Subscript is Value[Slice].
type Subscript struct {
	Value Expr
	Slice Expr
}

// Tuple is a comma separated list, rendered without parentheses.
type Tuple struct {
	Elts []Expr
}

// GeneratorExp is (Elt for Target in Iter).
type GeneratorExp struct {
	Elt    Expr
	Target Expr
	Iter   Expr
}

// Yield is "yield Value".
type Yield struct {
	Value Expr
}

func (Name) expr()         {}
func (Constant) expr()     {}
func (Num) expr()          {}
func (Attribute) expr()    {}
func (Call) expr()         {}
func (Subscript) expr()    {}
func (Tuple) expr()        {}
func (GeneratorExp) expr() {}
func (Yield) expr()        {}

// Stmt is a statement node.
type Stmt interface {
	stmt()
}

// ClassDef declares a class.
type ClassDef struct {
	Name       string
	Bases      []Expr
	Decorators []Expr
	Body       []Stmt
}

// FunctionDef declares a function or method.
type FunctionDef struct {
	Name       string
	Args       []Arg
	Returns    Expr
	Decorators []Expr
	Body       []Stmt
}

// Arg is one positional parameter with an optional annotation.
type Arg struct {
	Name       string
	Annotation Expr
}

// Assign is Target = Value.
type Assign struct {
	Target Expr
	Value  Expr
}

// AnnAssign is Target: Annotation [= Value].
type AnnAssign struct {
	Target     string
	Annotation Expr
	Value      Expr
}

// Return is "return Value".
type Return struct {
	Value Expr
}

// Pass is the no-op statement.
type Pass struct{}

// ExprStmt is an expression evaluated for effect. A string constant as the
// first statement of a class or function body is its docstring.
type ExprStmt struct {
	Value Expr
}

// For is "for Target in Iter:" with a body.
type For struct {
	Target Expr
	Iter   Expr
	Body   []Stmt
}

func (ClassDef) stmt()    {}
func (FunctionDef) stmt() {}
func (Assign) stmt()      {}
func (AnnAssign) stmt()   {}
func (Return) stmt()      {}
func (Pass) stmt()        {}
func (ExprStmt) stmt()    {}
func (For) stmt()         {}

// N returns a Name.
func N(id string) Name {
	return Name{ID: id}
}

// Str returns a string Constant.
func Str(s string) Constant {
	return Constant{Value: s}
}

// Attr chains attribute access: Attr(N("self"), "_stub", "Do") is self._stub.Do.
func Attr(value Expr, attrs ...string) Expr {
	for _, a := range attrs {
		value = Attribute{Value: value, Attr: a}
	}
	return value
}

// Doc returns a docstring statement.
func Doc(text string) ExprStmt {
	return ExprStmt{Value: Str(text)}
}

var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
}

// Identifier returns name, with a trailing underscore when it is a
// reserved word ("from" becomes "from_").
func Identifier(name string) string {
	if keywords[name] {
		return name + "_"
	}
	return name
}
