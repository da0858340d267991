package generator

import (
	"fmt"

	"github.com/irusland/pyroto/core/pyast"
	"github.com/irusland/pyroto/core/schema"
)

// Cardinality is the streaming shape of an RPC.
type Cardinality int

const (
	UnaryUnary Cardinality = iota
	StreamUnary
	UnaryStream
	StreamStream
)

// CardinalityOf derives the shape of m from its stream flags.
func CardinalityOf(m *schema.Method) Cardinality {
	switch {
	case m.Input.Stream && m.Output.Stream:
		return StreamStream
	case m.Input.Stream:
		return StreamUnary
	case m.Output.Stream:
		return UnaryStream
	default:
		return UnaryUnary
	}
}

func (c Cardinality) String() string {
	switch c {
	case StreamUnary:
		return "stream-unary"
	case UnaryStream:
		return "unary-stream"
	case StreamStream:
		return "stream-stream"
	default:
		return "unary-unary"
	}
}

// InputStream reports whether the RPC takes a request stream.
func (c Cardinality) InputStream() bool {
	return c == StreamUnary || c == StreamStream
}

// OutputStream reports whether the RPC returns a response stream.
func (c Cardinality) OutputStream() bool {
	return c == UnaryStream || c == StreamStream
}

// ParamName is "requests" for streaming input and "request" otherwise.
func (c Cardinality) ParamName() string {
	if c.InputStream() {
		return "requests"
	}
	return "request"
}

const (
	toWire   = "dataclass_to_protobuf"
	fromWire = "protobuf_to_dataclass"
)

// method renders one RPC as a client method.
func (st *moduleState) method(m *schema.Method) (pyast.FunctionDef, error) {
	card := CardinalityOf(m)

	input, err := st.types.Map(schema.TypeRef{Name: m.Input.Name, Stream: card.InputStream()}, "")
	if err != nil {
		return pyast.FunctionDef{}, fmt.Errorf("method %s input: %w", m.Name, err)
	}
	output, err := st.types.Map(schema.TypeRef{Name: m.Output.Name, Stream: card.OutputStream()}, "")
	if err != nil {
		return pyast.FunctionDef{}, fmt.Errorf("method %s output: %w", m.Name, err)
	}

	call, err := st.newCall(m)
	if err != nil {
		return pyast.FunctionDef{}, fmt.Errorf("method %s: %w", m.Name, err)
	}

	var body []pyast.Stmt
	if st.opts.StreamingBodies != StreamingNative {
		body = call.unaryUnary()
	} else {
		switch card {
		case UnaryUnary:
			body = call.unaryUnary()
		case StreamUnary:
			body = call.streamUnary()
		case UnaryStream:
			body = call.unaryStream()
		case StreamStream:
			body = call.streamStream()
		}
	}

	st.resolver.AddImport(pyast.ImportFrom{Module: st.opts.ConversionModule, Name: toWire})
	st.resolver.AddImport(pyast.ImportFrom{Module: st.opts.ConversionModule, Name: fromWire})

	return pyast.FunctionDef{
		Name: m.Name,
		Args: []pyast.Arg{
			{Name: "self"},
			{Name: card.ParamName(), Annotation: input},
		},
		Returns: output,
		Body:    body,
	}, nil
}

// rpcCall holds the expressions every body variant is assembled from.
type rpcCall struct {
	name     string
	wireType pyast.Expr
	response pyast.Expr
}

func (st *moduleState) newCall(m *schema.Method) (rpcCall, error) {
	wire, err := st.types.WireType(m.Input.Name, "", pyast.Attr(pyast.N("self"), "_protobuf"))
	if err != nil {
		return rpcCall{}, err
	}
	response, err := st.types.Class(m.Output.Name, "")
	if err != nil {
		return rpcCall{}, err
	}

	return rpcCall{
		name:     m.Name,
		wireType: wire,
		response: response,
	}, nil
}

// encode is dataclass_to_protobuf(<value>, <wire type>()).
func (c rpcCall) encode(value string) pyast.Expr {
	return pyast.Call{
		Func: pyast.N(toWire),
		Args: []pyast.Expr{pyast.N(value), pyast.Call{Func: c.wireType}},
	}
}

// decode is protobuf_to_dataclass(<value>, <Output>).
func (c rpcCall) decode(value string) pyast.Expr {
	return pyast.Call{
		Func: pyast.N(fromWire),
		Args: []pyast.Expr{pyast.N(value), c.response},
	}
}

func (c rpcCall) stub() pyast.Expr {
	return pyast.Attr(pyast.N("self"), "_stub", c.name)
}

func (c rpcCall) metadata() pyast.Keyword {
	return pyast.Keyword{Arg: "metadata", Value: pyast.Attr(pyast.N("self"), "_metadata")}
}

// unaryUnary converts the request, calls the stub with_call and converts
// the response.
func (c rpcCall) unaryUnary() []pyast.Stmt {
	return []pyast.Stmt{
		pyast.Assign{Target: pyast.N("protobuf_request"), Value: c.encode("request")},
		pyast.Assign{
			Target: pyast.Tuple{Elts: []pyast.Expr{pyast.N("response"), pyast.N("call")}},
			Value: pyast.Call{
				Func: pyast.Attr(c.stub(), "with_call"),
				Keywords: []pyast.Keyword{
					{Arg: "request", Value: pyast.N("protobuf_request")},
					c.metadata(),
				},
			},
		},
		pyast.Return{Value: c.decode("response")},
	}
}

// encodeStream lazily converts every element of requests.
func (c rpcCall) encodeStream() pyast.Stmt {
	return pyast.Assign{
		Target: pyast.N("protobuf_requests"),
		Value: pyast.GeneratorExp{
			Elt:    c.encode("request"),
			Target: pyast.N("request"),
			Iter:   pyast.N("requests"),
		},
	}
}

func (c rpcCall) streamUnary() []pyast.Stmt {
	return []pyast.Stmt{
		c.encodeStream(),
		pyast.Assign{
			Target: pyast.Tuple{Elts: []pyast.Expr{pyast.N("response"), pyast.N("call")}},
			Value: pyast.Call{
				Func: pyast.Attr(c.stub(), "with_call"),
				Keywords: []pyast.Keyword{
					{Arg: "request_iterator", Value: pyast.N("protobuf_requests")},
					c.metadata(),
				},
			},
		},
		pyast.Return{Value: c.decode("response")},
	}
}

// yieldResponses iterates the response stream of the stub call.
func (c rpcCall) yieldResponses(arg pyast.Keyword) pyast.Stmt {
	return pyast.For{
		Target: pyast.N("response"),
		Iter: pyast.Call{
			Func:     c.stub(),
			Keywords: []pyast.Keyword{arg, c.metadata()},
		},
		Body: []pyast.Stmt{
			pyast.ExprStmt{Value: pyast.Yield{Value: c.decode("response")}},
		},
	}
}

func (c rpcCall) unaryStream() []pyast.Stmt {
	return []pyast.Stmt{
		pyast.Assign{Target: pyast.N("protobuf_request"), Value: c.encode("request")},
		c.yieldResponses(pyast.Keyword{Arg: "request", Value: pyast.N("protobuf_request")}),
	}
}

func (c rpcCall) streamStream() []pyast.Stmt {
	return []pyast.Stmt{
		c.encodeStream(),
		c.yieldResponses(pyast.Keyword{Arg: "request_iterator", Value: pyast.N("protobuf_requests")}),
	}
}
