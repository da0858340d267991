// Package ports defines interfaces (contracts) between layers.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Fingerprinter digests byte sequences into a stable hex string.
type Fingerprinter interface {
	// Sum digests parts in order. Part boundaries are significant:
	// Sum("ab", "c") differs from Sum("a", "bc").
	Sum(parts ...[]byte) string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// CachedModule records the last successful generation of one output module.
type CachedModule struct {
	Module       string
	SourcePath   string
	Fingerprint  string
	OutputPath   string
	Declarations int
	Imports      int
	GeneratedAt  time.Time
}

// BuildRun summarises one pipeline run.
type BuildRun struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Generated  int
	Skipped    int
	Failed     int
}

// CacheStore persists generation fingerprints between builds.
type CacheStore interface {
	// Lookup returns the cached record for module. ok is false when the
	// module was never generated.
	Lookup(ctx context.Context, module string) (m CachedModule, ok bool, err error)

	// Store inserts or replaces the record for m.Module.
	Store(ctx context.Context, m CachedModule) error

	// Forget removes the record for module.
	Forget(ctx context.Context, module string) error

	// RecordRun stores a finished build run.
	RecordRun(ctx context.Context, run BuildRun) error

	// Runs returns the most recent runs, newest first.
	Runs(ctx context.Context, limit int) ([]BuildRun, error)
}
