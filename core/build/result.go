package build

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Status is the outcome of one module in a run.
type Status string

const (
	StatusGenerated Status = "generated"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// ModuleReport describes what a run did with one module.
type ModuleReport struct {
	Module       string        `json:"module" yaml:"module"`
	SourcePath   string        `json:"source" yaml:"source"`
	OutputPath   string        `json:"output" yaml:"output"`
	Status       Status        `json:"status" yaml:"status"`
	Declarations []string      `json:"declarations" yaml:"declarations"`
	Imports      int           `json:"imports" yaml:"imports"`
	Bytes        int           `json:"bytes" yaml:"bytes"`
	Duration     time.Duration `json:"duration_ns" yaml:"duration"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result summarises a run.
type Result struct {
	RunID      string         `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time      `json:"finished_at" yaml:"finished_at"`
	Generated  int            `json:"generated" yaml:"generated"`
	Skipped    int            `json:"skipped" yaml:"skipped"`
	Failed     int            `json:"failed" yaml:"failed"`
	Modules    []ModuleReport `json:"modules" yaml:"modules"`

	errs *multierror.Error
}

// Err returns the aggregated module failures, or nil.
func (r *Result) Err() error {
	return r.errs.ErrorOrNil()
}

// Module returns the report for a module path.
func (r *Result) Module(module string) (ModuleReport, bool) {
	i := sort.Search(len(r.Modules), func(i int) bool { return r.Modules[i].Module >= module })
	if i < len(r.Modules) && r.Modules[i].Module == module {
		return r.Modules[i], true
	}
	return ModuleReport{}, false
}

func (r *Result) add(rep ModuleReport, err error) {
	switch rep.Status {
	case StatusGenerated:
		r.Generated++
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
		r.errs = multierror.Append(r.errs, err)
	}
	r.Modules = append(r.Modules, rep)
}

func (r *Result) sort() {
	sort.Slice(r.Modules, func(i, j int) bool { return r.Modules[i].Module < r.Modules[j].Module })
	if r.errs != nil {
		// errors follow module order for stable CLI output
		sort.SliceStable(r.errs.Errors, func(i, j int) bool {
			return moduleOf(r.errs.Errors[i]) < moduleOf(r.errs.Errors[j])
		})
	}
}

func moduleOf(err error) string {
	var me *ModuleError
	if errors.As(err, &me) {
		return me.Module
	}
	return ""
}

// ModuleError is the failure of a single module. Nothing is written for
// the module; the rest of the run continues.
type ModuleError struct {
	Module     string
	SourcePath string
	Err        error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Module, e.SourcePath, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}
