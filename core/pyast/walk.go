package pyast

// Inspect traverses statements depth-first, calling fn for every statement
// and expression. Children are skipped when fn returns false.
func Inspect(body []Stmt, fn func(node any) bool) {
	for _, s := range body {
		inspectStmt(s, fn)
	}
}

func inspectStmt(s Stmt, fn func(node any) bool) {
	if s == nil || !fn(s) {
		return
	}
	switch n := s.(type) {
	case ClassDef:
		inspectExprs(n.Decorators, fn)
		inspectExprs(n.Bases, fn)
		Inspect(n.Body, fn)
	case FunctionDef:
		inspectExprs(n.Decorators, fn)
		for _, a := range n.Args {
			inspectExpr(a.Annotation, fn)
		}
		inspectExpr(n.Returns, fn)
		Inspect(n.Body, fn)
	case Assign:
		inspectExpr(n.Target, fn)
		inspectExpr(n.Value, fn)
	case AnnAssign:
		inspectExpr(n.Annotation, fn)
		inspectExpr(n.Value, fn)
	case Return:
		inspectExpr(n.Value, fn)
	case ExprStmt:
		inspectExpr(n.Value, fn)
	case For:
		inspectExpr(n.Target, fn)
		inspectExpr(n.Iter, fn)
		Inspect(n.Body, fn)
	}
}

func inspectExprs(exprs []Expr, fn func(node any) bool) {
	for _, e := range exprs {
		inspectExpr(e, fn)
	}
}

func inspectExpr(e Expr, fn func(node any) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case Attribute:
		inspectExpr(n.Value, fn)
	case Call:
		inspectExpr(n.Func, fn)
		inspectExprs(n.Args, fn)
		for _, k := range n.Keywords {
			inspectExpr(k.Value, fn)
		}
	case Subscript:
		inspectExpr(n.Value, fn)
		inspectExpr(n.Slice, fn)
	case Tuple:
		inspectExprs(n.Elts, fn)
	case GeneratorExp:
		inspectExpr(n.Elt, fn)
		inspectExpr(n.Target, fn)
		inspectExpr(n.Iter, fn)
	case Yield:
		inspectExpr(n.Value, fn)
	}
}

// Classes returns the names of the top-level classes of a module in order.
func (m *Module) Classes() []string {
	var names []string
	for _, s := range m.Body {
		if c, ok := s.(ClassDef); ok {
			names = append(names, c.Name)
		}
	}
	return names
}
