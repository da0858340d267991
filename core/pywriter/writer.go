// Package pywriter serializes a pyast.Module to Python source text.
package pywriter

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/irusland/pyroto/core/pyast"
)

const indentUnit = "    "

// Options controls rendering.
type Options struct {
	// SortImports writes imports ordered by module, then name, instead of
	// first-seen order.
	SortImports bool
}

// Render returns the source text of mod.
func Render(mod *pyast.Module, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, mod, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write writes the source text of mod to w.
func Write(w io.Writer, mod *pyast.Module, opts Options) error {
	p := &printer{}

	imports := append([]pyast.ImportFrom(nil), mod.Imports...)
	if opts.SortImports {
		sort.SliceStable(imports, func(i, j int) bool {
			if imports[i].Module != imports[j].Module {
				return imports[i].Module < imports[j].Module
			}
			return imports[i].Name < imports[j].Name
		})
	}
	for _, imp := range imports {
		stmt := "import " + imp.Name
		if imp.Module != "" {
			stmt = "from " + imp.Module + " " + stmt
		}
		if imp.Alias != "" {
			stmt += " as " + imp.Alias
		}
		p.pl("%s", stmt)
	}

	for i, s := range mod.Body {
		if i > 0 || len(imports) > 0 {
			p.nl()
			p.nl()
		}
		if err := p.stmt(s); err != nil {
			return fmt.Errorf("render %s: %w", mod.Path, err)
		}
	}

	_, err := w.Write(p.buf.Bytes())
	return err
}

type printer struct {
	buf    bytes.Buffer
	indent string
}

func (p *printer) pl(format string, args ...any) {
	p.buf.WriteString(p.indent)
	fmt.Fprintf(&p.buf, format, args...)
	p.buf.WriteByte('\n')
}

func (p *printer) nl() {
	p.buf.WriteByte('\n')
}

// suite writes an indented block. Definitions are separated from their
// neighbours by a blank line.
func (p *printer) suite(body []pyast.Stmt) error {
	if len(body) == 0 {
		return fmt.Errorf("empty block")
	}

	p.indent += indentUnit
	defer func() { p.indent = p.indent[:len(p.indent)-len(indentUnit)] }()

	for i, s := range body {
		if i > 0 && (isDefinition(s) || isDefinition(body[i-1])) {
			p.nl()
		}
		if i == 0 {
			if doc, ok := docstring(s); ok {
				p.pl("%s", doc)
				continue
			}
		}
		if err := p.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func isDefinition(s pyast.Stmt) bool {
	switch s.(type) {
	case pyast.ClassDef, pyast.FunctionDef:
		return true
	}
	return false
}

func (p *printer) stmt(s pyast.Stmt) error {
	switch n := s.(type) {
	case pyast.ClassDef:
		for _, d := range n.Decorators {
			dec, err := expr(d)
			if err != nil {
				return err
			}
			p.pl("@%s", dec)
		}
		header := "class " + n.Name
		if len(n.Bases) > 0 {
			bases, err := exprList(n.Bases)
			if err != nil {
				return err
			}
			header += "(" + bases + ")"
		}
		p.pl("%s:", header)
		if err := p.suite(n.Body); err != nil {
			return fmt.Errorf("class %s: %w", n.Name, err)
		}

	case pyast.FunctionDef:
		for _, d := range n.Decorators {
			dec, err := expr(d)
			if err != nil {
				return err
			}
			p.pl("@%s", dec)
		}
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = a.Name
			if a.Annotation != nil {
				ann, err := expr(a.Annotation)
				if err != nil {
					return err
				}
				args[i] += ": " + ann
			}
		}
		header := fmt.Sprintf("def %s(%s)", n.Name, strings.Join(args, ", "))
		if n.Returns != nil {
			ret, err := expr(n.Returns)
			if err != nil {
				return err
			}
			header += " -> " + ret
		}
		p.pl("%s:", header)
		if err := p.suite(n.Body); err != nil {
			return fmt.Errorf("def %s: %w", n.Name, err)
		}

	case pyast.Assign:
		target, err := expr(n.Target)
		if err != nil {
			return err
		}
		value, err := expr(n.Value)
		if err != nil {
			return err
		}
		p.pl("%s = %s", target, value)

	case pyast.AnnAssign:
		ann, err := expr(n.Annotation)
		if err != nil {
			return err
		}
		if n.Value == nil {
			p.pl("%s: %s", n.Target, ann)
			break
		}
		value, err := expr(n.Value)
		if err != nil {
			return err
		}
		p.pl("%s: %s = %s", n.Target, ann, value)

	case pyast.Return:
		if n.Value == nil {
			p.pl("return")
			break
		}
		value, err := expr(n.Value)
		if err != nil {
			return err
		}
		p.pl("return %s", value)

	case pyast.Pass:
		p.pl("pass")

	case pyast.ExprStmt:
		value, err := expr(n.Value)
		if err != nil {
			return err
		}
		p.pl("%s", value)

	case pyast.For:
		target, err := expr(n.Target)
		if err != nil {
			return err
		}
		iter, err := expr(n.Iter)
		if err != nil {
			return err
		}
		p.pl("for %s in %s:", target, iter)
		if err := p.suite(n.Body); err != nil {
			return fmt.Errorf("for: %w", err)
		}

	default:
		return fmt.Errorf("unsupported statement %T", s)
	}
	return nil
}

func docstring(s pyast.Stmt) (string, bool) {
	es, ok := s.(pyast.ExprStmt)
	if !ok {
		return "", false
	}
	c, ok := es.Value.(pyast.Constant)
	if !ok {
		return "", false
	}
	text, ok := c.Value.(string)
	if !ok {
		return "", false
	}

	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, `"""`, `\"\"\"`)
	if strings.HasSuffix(text, `"`) {
		text = text[:len(text)-1] + `\"`
	}
	return `"""` + text + `"""`, true
}

func exprList(exprs []pyast.Expr) (string, error) {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		s, err := expr(e)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), nil
}

func expr(e pyast.Expr) (string, error) {
	switch n := e.(type) {
	case pyast.Name:
		return n.ID, nil
	case pyast.Num:
		return n.Text, nil
	case pyast.Constant:
		return constant(n.Value)
	case pyast.Attribute:
		value, err := expr(n.Value)
		if err != nil {
			return "", err
		}
		return value + "." + n.Attr, nil
	case pyast.Call:
		fn, err := expr(n.Func)
		if err != nil {
			return "", err
		}
		args, err := exprList(n.Args)
		if err != nil {
			return "", err
		}
		parts := []string{}
		if args != "" {
			parts = append(parts, args)
		}
		for _, k := range n.Keywords {
			v, err := expr(k.Value)
			if err != nil {
				return "", err
			}
			parts = append(parts, k.Arg+"="+v)
		}
		return fn + "(" + strings.Join(parts, ", ") + ")", nil
	case pyast.Subscript:
		value, err := expr(n.Value)
		if err != nil {
			return "", err
		}
		slice, err := expr(n.Slice)
		if err != nil {
			return "", err
		}
		return value + "[" + slice + "]", nil
	case pyast.Tuple:
		return exprList(n.Elts)
	case pyast.GeneratorExp:
		elt, err := expr(n.Elt)
		if err != nil {
			return "", err
		}
		target, err := expr(n.Target)
		if err != nil {
			return "", err
		}
		iter, err := expr(n.Iter)
		if err != nil {
			return "", err
		}
		return "(" + elt + " for " + target + " in " + iter + ")", nil
	case pyast.Yield:
		if n.Value == nil {
			return "yield", nil
		}
		value, err := expr(n.Value)
		if err != nil {
			return "", err
		}
		return "yield " + value, nil
	case nil:
		return "", fmt.Errorf("missing expression")
	default:
		return "", fmt.Errorf("unsupported expression %T", e)
	}
}

func constant(v any) (string, error) {
	switch c := v.(type) {
	case nil:
		return "None", nil
	case bool:
		if c {
			return "True", nil
		}
		return "False", nil
	case string:
		return Quote(c), nil
	case int:
		return strconv.Itoa(c), nil
	case int64:
		return strconv.FormatInt(c, 10), nil
	case float64:
		s := strconv.FormatFloat(c, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s, nil
	default:
		return "", fmt.Errorf("unsupported constant %T", v)
	}
}

// Quote returns the Python literal for s, preferring single quotes.
func Quote(s string) string {
	q := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}

	var b strings.Builder
	b.WriteRune(q)
	for _, r := range s {
		switch {
		case r == q || r == '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteRune(q)
	return b.String()
}
