// Package registry maps schema symbols to the generated module that owns them.
// Symbols are registered into a Builder for every module of a build, then the
// Builder is frozen into a Table that generation reads concurrently.
package registry

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/irusland/pyroto/core/schema"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"
)

// KindWellKnown marks entries that have no generated owner.
const KindWellKnown schema.ElementKind = 100

// Entry records which module owns a symbol and what to import for it.
type Entry struct {
	// Symbol is the registered name: "Pong", "Pong.Inner" or, for
	// well-known types, the fully qualified "google.protobuf.Timestamp".
	Symbol string

	// Module is the dotted path of the owning output module.
	Module string

	// Name is the importable name: the top-level segment of Symbol for
	// generated types, the target name for well-known types.
	Name string

	Kind schema.ElementKind
}

// WellKnown reports whether the entry was pre-seeded rather than generated.
func (e Entry) WellKnown() bool {
	return e.Kind == KindWellKnown
}

// wellKnownTypes have no generated module; they map onto existing imports.
var wellKnownTypes = []Entry{
	{Symbol: "google.protobuf.Timestamp", Module: "datetime", Name: "datetime", Kind: KindWellKnown},
	{Symbol: "google.protobuf.Duration", Module: "datetime", Name: "timedelta", Kind: KindWellKnown},
	{Symbol: "google.protobuf.Empty", Module: "google.protobuf.empty_pb2", Name: "Empty", Kind: KindWellKnown},
	{Symbol: "google.protobuf.Any", Module: "google.protobuf.any_pb2", Name: "Any", Kind: KindWellKnown},
}

// Builder collects symbol ownership during the registration phase.
type Builder struct {
	mu      sync.Mutex
	entries map[string]Entry
	strict  bool
	logger  zerolog.Logger
}

// NewBuilder creates a builder pre-seeded with the well-known types.
// In strict mode a duplicate registration is an error; otherwise it is
// logged and the first owner is kept.
func NewBuilder(strict bool, logger zerolog.Logger) *Builder {
	b := &Builder{
		entries: make(map[string]Entry),
		strict:  strict,
		logger:  logger,
	}
	for _, e := range wellKnownTypes {
		b.entries[e.Symbol] = e
	}
	return b
}

// Register records that module owns symbol.
func (b *Builder) Register(symbol string, kind schema.ElementKind, module string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.stage(symbol, kind, module, nil)
	if err != nil || e == nil {
		return err
	}
	b.entries[symbol] = *e
	return nil
}

// RegisterModule registers every declaration of mod under module. Either
// all of them are recorded or, on the first failure, none.
func (b *Builder) RegisterModule(module string, mod schema.Module) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	staged := make(map[string]Entry)
	for _, decl := range mod.Declared() {
		e, err := b.stage(decl.Name, decl.Kind, module, staged)
		if err != nil {
			return err
		}
		if e != nil {
			staged[decl.Name] = *e
		}
	}
	for symbol, e := range staged {
		b.entries[symbol] = e
	}
	return nil
}

// stage checks symbol against the recorded and staged entries and returns
// the entry to add, or nil when there is nothing to add. b.mu must be held.
func (b *Builder) stage(symbol string, kind schema.ElementKind, module string, staged map[string]Entry) (*Entry, error) {
	existing, ok := b.entries[symbol]
	if !ok {
		existing, ok = staged[symbol]
	}
	if ok {
		if existing.Module == module {
			return nil, nil
		}
		dup := &DuplicateSymbolError{Symbol: symbol, Existing: existing.Module, Module: module}
		if b.strict {
			return nil, dup
		}
		b.logger.Warn().
			Str("symbol", symbol).
			Str("owner", existing.Module).
			Str("ignored", module).
			Msg("duplicate symbol, keeping first owner")
		return nil, nil
	}

	name := symbol
	if i := strings.Index(symbol, "."); i >= 0 {
		name = symbol[:i]
	}
	return &Entry{Symbol: symbol, Module: module, Name: name, Kind: kind}, nil
}

// Build freezes the collected entries into a Table.
func (b *Builder) Build() *Table {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := make(map[string]Entry, len(b.entries))
	for k, v := range b.entries {
		entries[k] = v
	}
	return &Table{entries: entries}
}

// Table is an immutable symbol table. It is safe for concurrent use.
type Table struct {
	entries map[string]Entry
}

// Resolve returns the entry registered for symbol.
func (t *Table) Resolve(symbol string) (Entry, error) {
	e, ok := t.entries[symbol]
	if !ok {
		return Entry{}, &UnknownSymbolError{Symbol: symbol}
	}
	return e, nil
}

// Lookup resolves a type name as written in a schema. scope is the dotted
// name of the enclosing message, empty at top level. Names are tried
// innermost scope first, then with leading package segments removed.
func (t *Table) Lookup(name, scope string) (Entry, error) {
	name = strings.TrimPrefix(name, ".")

	for s := scope; s != ""; s = parentScope(s) {
		if e, ok := t.entries[s+"."+name]; ok {
			return e, nil
		}
	}

	if e, ok := t.entries[name]; ok {
		return e, nil
	}

	rest := name
	for {
		i := strings.Index(rest, ".")
		if i < 0 {
			break
		}
		rest = rest[i+1:]
		if e, ok := t.entries[rest]; ok {
			return e, nil
		}
	}

	return Entry{}, &UnknownSymbolError{Symbol: name}
}

func parentScope(scope string) string {
	if i := strings.LastIndex(scope, "."); i >= 0 {
		return scope[:i]
	}
	return ""
}

// Len returns the number of entries, well-known types included.
func (t *Table) Len() int {
	return len(t.entries)
}

// List returns all entries sorted by module, then symbol.
func (t *Table) List() []Entry {
	entries := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Module != entries[j].Module {
			return entries[i].Module < entries[j].Module
		}
		return entries[i].Symbol < entries[j].Symbol
	})

	return entries
}

// Fingerprint identifies the table contents. Two tables with the same
// ownership produce the same fingerprint.
func (t *Table) Fingerprint() string {
	var sb strings.Builder
	for _, e := range t.List() {
		fmt.Fprintf(&sb, "%s\x00%s\x00%s\n", e.Symbol, e.Module, e.Name)
	}
	sum := blake2b.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// DuplicateSymbolError reports a symbol defined by two modules.
type DuplicateSymbolError struct {
	Symbol   string
	Existing string
	Module   string
}

func (e *DuplicateSymbolError) Error() string {
	return fmt.Sprintf("symbol %q defined in %s is already defined in %s", e.Symbol, e.Module, e.Existing)
}

// Unwrap lets errors.Is match ErrDuplicateSymbol.
func (e *DuplicateSymbolError) Unwrap() error {
	return ErrDuplicateSymbol
}

// UnknownSymbolError reports a reference to a symbol no module defines.
type UnknownSymbolError struct {
	Symbol string
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("unknown symbol %q", e.Symbol)
}

// Unwrap lets errors.Is match ErrUnknownSymbol.
func (e *UnknownSymbolError) Unwrap() error {
	return ErrUnknownSymbol
}
