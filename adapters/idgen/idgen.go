// Package idgen provides build run identifiers.
package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/irusland/pyroto/ports"
)

// UUID generates time-ordered UUIDs (version 7), so run IDs sort by start.
type UUID struct{}

// New returns a new UUID v7, falling back to v4 if the clock source fails.
func (UUID) New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

var _ ports.IDGenerator = UUID{}

// Sequential generates predictable IDs for tests.
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New returns prefix followed by the next counter value, starting at 1.
func (s *Sequential) New() string {
	return fmt.Sprintf("%s%d", s.prefix, s.counter.Add(1))
}

var _ ports.IDGenerator = (*Sequential)(nil)
