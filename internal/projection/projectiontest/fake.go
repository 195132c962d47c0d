// Package projectiontest provides an in-memory projection.Store fake
// for tests that would otherwise need a live backend Supabase
// connection.
package projectiontest

import (
	"context"
	"sync"

	"github.com/g2scv/llm-cost/internal/models"
	"github.com/g2scv/llm-cost/internal/projection"
)

var _ projection.Store = (*Fake)(nil)

// Fake is an in-memory projection.Store.
type Fake struct {
	mu   sync.Mutex
	rows map[string]models.ProjectionRow
}

// New builds an empty Fake.
func New() *Fake {
	return &Fake{rows: make(map[string]models.ProjectionRow)}
}

func (f *Fake) ListRows(ctx context.Context) ([]models.ProjectionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ProjectionRow, 0, len(f.rows))
	for _, row := range f.rows {
		out = append(out, row)
	}
	return out, nil
}

func (f *Fake) UpsertRow(ctx context.Context, row models.ProjectionRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[row.ModelSlug] = row
	return nil
}

func (f *Fake) InsertRow(ctx context.Context, row models.ProjectionRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[row.ModelSlug] = row
	return nil
}

func (f *Fake) SetActive(ctx context.Context, slug string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[slug]
	if !ok {
		return nil
	}
	row.IsActive = active
	f.rows[slug] = row
	return nil
}

// Seed inserts a row directly, for test setup of pre-existing backend
// state.
func (f *Fake) Seed(row models.ProjectionRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[row.ModelSlug] = row
}

// Row returns the current row for slug, for test assertions.
func (f *Fake) Row(slug string) (models.ProjectionRow, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[slug]
	return row, ok
}
