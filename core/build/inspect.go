package build

import (
	"strings"

	"github.com/irusland/pyroto/core/registry"
)

// SymbolInfo is one entry of the symbol table as shown by inspection.
type SymbolInfo struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Kind   string `json:"kind" yaml:"kind"`
	Module string `json:"module" yaml:"module"`
	Name   string `json:"name" yaml:"name"`
}

// Symbols lists the table in module, then symbol order.
func Symbols(t *registry.Table) []SymbolInfo {
	entries := t.List()
	out := make([]SymbolInfo, len(entries))
	for i, e := range entries {
		kind := e.Kind.String()
		if e.WellKnown() {
			kind = "well-known"
		}
		out[i] = SymbolInfo{Symbol: e.Symbol, Kind: kind, Module: e.Module, Name: e.Name}
	}
	return out
}

// Row returns the symbol as a formatter row.
func (s SymbolInfo) Row() map[string]any {
	return map[string]any{
		"symbol": s.Symbol,
		"kind":   s.Kind,
		"module": s.Module,
		"name":   s.Name,
	}
}

// Row returns the report as a formatter row.
func (r ModuleReport) Row() map[string]any {
	row := map[string]any{
		"module":       r.Module,
		"source":       r.SourcePath,
		"output":       r.OutputPath,
		"status":       string(r.Status),
		"declarations": strings.Join(r.Declarations, ", "),
		"imports":      r.Imports,
		"bytes":        r.Bytes,
		"duration":     r.Duration,
	}
	if r.Error != "" {
		row["error"] = r.Error
	}
	return row
}
