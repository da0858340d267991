package build

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/irusland/pyroto/core/registry"
	"github.com/irusland/pyroto/core/schema"
	"github.com/rs/zerolog"
)

// Unit is one schema file scheduled for generation.
type Unit struct {
	// Module is the dotted output module path.
	Module string
	Schema schema.Module
}

// Plan is the outcome of parsing and symbol registration: the frozen table
// plus the modules that can be generated against it.
type Plan struct {
	Table *registry.Table
	Units []Unit

	// Failed holds modules rejected during registration, keyed by module.
	Failed map[string]*ModuleError
}

// ModulePath maps a schema path relative to the source directory to a
// dotted module path: "tinkoff/invest/users.proto" with prefix "client"
// becomes "client.tinkoff.invest.users".
func ModulePath(rel, prefix string) string {
	rel = strings.TrimSuffix(path.Clean(rel), ".proto")
	dotted := strings.ReplaceAll(rel, "/", ".")
	if prefix != "" {
		dotted = prefix + "." + dotted
	}
	return dotted
}

// OutputFile is the slash separated file of module below the output root.
func OutputFile(module string) string {
	return strings.ReplaceAll(module, ".", "/") + ".py"
}

// NewPlan runs the registration phase over parsed modules. Registration
// errors fail the offending module only, and none of its symbols reach the
// returned table.
func NewPlan(mods []schema.Module, prefix string, strict bool, logger zerolog.Logger) *Plan {
	sorted := append([]schema.Module(nil), mods...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	b := registry.NewBuilder(strict, logger)
	plan := &Plan{Failed: make(map[string]*ModuleError)}
	owners := make(map[string]string, len(sorted))

	for _, mod := range sorted {
		module := ModulePath(mod.Path, prefix)

		if other, ok := owners[module]; ok {
			plan.Failed[module] = &ModuleError{
				Module:     module,
				SourcePath: mod.Path,
				Err:        fmt.Errorf("output module also produced by %s", other),
			}
			continue
		}
		owners[module] = mod.Path

		if err := b.RegisterModule(module, mod); err != nil {
			logger.Error().Err(err).Str("module", module).Msg("symbol registration failed")
			plan.Failed[module] = &ModuleError{Module: module, SourcePath: mod.Path, Err: err}
			continue
		}
		plan.Units = append(plan.Units, Unit{Module: module, Schema: mod})
	}

	plan.Table = b.Build()
	return plan
}
