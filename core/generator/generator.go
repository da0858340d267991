// Package generator turns parsed schema modules into Python module trees.
//
// A Generator is created once per build from the frozen symbol table and is
// safe for concurrent use: every call to Generate works on its own import
// resolver and type mapper.
package generator

import (
	"fmt"
	"strings"

	"github.com/irusland/pyroto/core/imports"
	"github.com/irusland/pyroto/core/pyast"
	"github.com/irusland/pyroto/core/registry"
	"github.com/irusland/pyroto/core/schema"
	"github.com/irusland/pyroto/core/typemap"
	"github.com/rs/zerolog"
)

// StreamingMode selects how streaming RPC bodies are generated.
type StreamingMode string

const (
	// StreamingPlaceholder reuses the unary body for every cardinality.
	StreamingPlaceholder StreamingMode = "placeholder"
	// StreamingNative iterates request and response streams.
	StreamingNative StreamingMode = "native"
)

// Options configures the generated runtime references.
type Options struct {
	// ConversionModule provides dataclass_to_protobuf and
	// protobuf_to_dataclass.
	ConversionModule string

	// BaseService is the dotted path of the service base class
	// ("base_service.BaseService"). Empty means no base class.
	BaseService string

	// PB2Package is the package holding the *_pb2 modules. Empty means the
	// package of the generated module.
	PB2Package string

	StreamingBodies StreamingMode
}

// DefaultOptions returns the options matching the protopy runtime.
func DefaultOptions() Options {
	return Options{
		ConversionModule: "protopy",
		BaseService:      "base_service.BaseService",
		StreamingBodies:  StreamingPlaceholder,
	}
}

// Generator generates output modules against one symbol table.
type Generator struct {
	table  *registry.Table
	opts   Options
	logger zerolog.Logger
}

// New creates a generator.
func New(table *registry.Table, opts Options, logger zerolog.Logger) *Generator {
	if opts.ConversionModule == "" {
		opts.ConversionModule = DefaultOptions().ConversionModule
	}
	if opts.StreamingBodies == "" {
		opts.StreamingBodies = StreamingPlaceholder
	}
	return &Generator{table: table, opts: opts, logger: logger}
}

// Options returns the effective options.
func (g *Generator) Options() Options {
	return g.opts
}

// moduleState is the per-module working set shared by the element
// generators.
type moduleState struct {
	path     string
	source   schema.Module
	opts     Options
	resolver *imports.Resolver
	types    *typemap.Mapper
}

// Generate produces the output module at path for mod. Declarations follow
// the schema order of messages, enums and services; every other element
// kind is skipped in place.
func (g *Generator) Generate(path string, mod schema.Module) (*pyast.Module, error) {
	resolver := imports.NewResolver(g.table, path)
	st := &moduleState{
		path:     path,
		source:   mod,
		opts:     g.opts,
		resolver: resolver,
		types:    typemap.New(resolver),
	}

	var body []pyast.Stmt
	for _, el := range mod.Elements {
		switch e := el.(type) {
		case *schema.Message:
			decl, err := st.message(e, "")
			if err != nil {
				return nil, fmt.Errorf("module %s: %w", mod.Path, err)
			}
			body = append(body, decl)
		case *schema.Enum:
			decl, err := st.enum(e)
			if err != nil {
				return nil, fmt.Errorf("module %s: %w", mod.Path, err)
			}
			body = append(body, decl)
		case *schema.Service:
			decl, err := st.service(e)
			if err != nil {
				return nil, fmt.Errorf("module %s: %w", mod.Path, err)
			}
			body = append(body, decl)
		case *schema.Package, *schema.Option, *schema.Import, *schema.Comment, *schema.Extension, *schema.Empty:
			continue
		default:
			return nil, &StructureError{Scope: "module " + mod.Path, Kind: el.Kind()}
		}
	}

	out := &pyast.Module{
		Path:    path,
		Imports: resolver.Imports(),
		Body:    body,
	}

	g.logger.Debug().
		Str("module", path).
		Int("declarations", len(out.Body)).
		Int("imports", len(out.Imports)).
		Msg("generated module")

	return out, nil
}

// pb2Modules returns the imports of the protobuf and gRPC modules generated
// by protoc for this schema file.
func (st *moduleState) pb2Modules() (pb2, grpc pyast.ImportFrom) {
	pkg := st.opts.PB2Package
	if pkg == "" {
		if i := strings.LastIndex(st.path, "."); i >= 0 {
			pkg = st.path[:i]
		}
	}

	name := st.source.Name()
	return pyast.ImportFrom{Module: pkg, Name: name + "_pb2"},
		pyast.ImportFrom{Module: pkg, Name: name + "_pb2_grpc"}
}

// importDotted imports the last segment of a dotted path and returns the
// bound name.
func (st *moduleState) importDotted(dotted string) string {
	i := strings.LastIndex(dotted, ".")
	if i < 0 {
		st.resolver.AddImport(pyast.ImportFrom{Name: dotted})
		return dotted
	}
	st.resolver.AddImport(pyast.ImportFrom{Module: dotted[:i], Name: dotted[i+1:]})
	return dotted[i+1:]
}
