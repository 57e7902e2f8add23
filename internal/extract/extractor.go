// Package extract turns upstream report payloads into normalized ledger records.
package extract

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/ledgersync/internal/domain"
)

// Scope identifies who a payload belongs to. Every record an extractor emits
// carries these identifiers.
type Scope struct {
	CompanyID  int64
	SourceID   int64
	SourceName string
}

// Extractor converts one raw payload into records. Implementations never emit
// a record with a zero amount.
type Extractor interface {
	// Format returns the payload layout this extractor understands.
	Format() domain.Format

	// Extract parses payload and returns the records it contains.
	// A payload missing required structure fails with *ShapeError.
	Extract(ctx context.Context, payload []byte, scope Scope) ([]domain.Record, error)
}

// ShapeError reports a payload that lacks the structure its format requires.
type ShapeError struct {
	Format domain.Format
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Format, e.Reason)
}

func shapeErrorf(format domain.Format, msg string, args ...any) *ShapeError {
	return &ShapeError{Format: format, Reason: fmt.Sprintf(msg, args...)}
}

// Registry holds the extractors available to the sync pipeline, keyed by format.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	extractors map[domain.Format]Extractor
}

// NewRegistry creates a registry holding the given extractors.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{extractors: make(map[domain.Format]Extractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// DefaultRegistry returns a registry with the hierarchical and flat extractors.
func DefaultRegistry() *Registry {
	return NewRegistry(NewHierarchical(), NewFlat())
}

// Register adds or replaces the extractor for its format.
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[e.Format()] = e
}

// Lookup returns the extractor registered for format.
func (r *Registry) Lookup(format domain.Format) (Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.extractors[format]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for format %q", format)
	}
	return e, nil
}

// Formats lists the registered format tags in sorted order.
func (r *Registry) Formats() []domain.Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	formats := make([]domain.Format, 0, len(r.extractors))
	for f := range r.extractors {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}
