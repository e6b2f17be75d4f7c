package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent"
)

type rowKey struct {
	appID   uuid.UUID
	id      uuid.UUID
	version int64
}

// Store implements schemacontent.Store using in-memory storage
type Store struct {
	mu      sync.RWMutex
	rows    map[rowKey]*schemacontent.Row
	indexes map[string]schemacontent.IndexSpec
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		rows:    make(map[rowKey]*schemacontent.Row),
		indexes: make(map[string]schemacontent.IndexSpec),
	}
}

func keyOf(row *schemacontent.Row) rowKey {
	return rowKey{appID: row.AppID, id: row.ID, version: row.Version}
}

func (s *Store) Insert(ctx context.Context, row *schemacontent.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(row)
	if _, exists := s.rows[key]; exists {
		return schemacontent.ErrDuplicateVersion
	}
	// Store a copy to avoid external modifications
	s.rows[key] = row.Clone()
	return nil
}

func (s *Store) ClearLatest(ctx context.Context, appID, id uuid.UUID, belowVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, row := range s.rows {
		if key.appID == appID && key.id == id && key.version < belowVersion {
			row.IsLatest = false
		}
	}
	return nil
}

func (s *Store) SetStatus(ctx context.Context, appID, id uuid.UUID, version int64, status schemacontent.Status, modified time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, exists := s.rows[rowKey{appID: appID, id: id, version: version}]
	if !exists {
		return schemacontent.ErrContentNotFound
	}
	row.Status = status
	row.LastModified = modified
	return nil
}

func (s *Store) Find(ctx context.Context, plan *schemacontent.Plan) ([]*schemacontent.Row, error) {
	matched, err := s.match(ctx, plan)
	if err != nil {
		return nil, err
	}

	sortRows(matched, plan.Sort)

	if plan.Skip >= len(matched) {
		return []*schemacontent.Row{}, nil
	}
	matched = matched[plan.Skip:]
	if plan.Take > 0 && plan.Take < len(matched) {
		matched = matched[:plan.Take]
	}
	return matched, nil
}

func (s *Store) Count(ctx context.Context, plan *schemacontent.Plan) (int64, error) {
	matched, err := s.match(ctx, plan)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (s *Store) IDs(ctx context.Context, plan *schemacontent.Plan) ([]uuid.UUID, error) {
	matched, err := s.match(ctx, plan)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(matched))
	ids := make([]uuid.UUID, 0, len(matched))
	for _, row := range matched {
		if !seen[row.ID] {
			seen[row.ID] = true
			ids = append(ids, row.ID)
		}
	}
	return ids, nil
}

// EnsureIndexes records the declared indexes; the memory store scans every row.
func (s *Store) EnsureIndexes(ctx context.Context, indexes []schemacontent.IndexSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, idx := range indexes {
		s.indexes[idx.Name] = idx
	}
	return nil
}

// Indexes returns the names of the ensured indexes, sorted.
func (s *Store) Indexes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rows returns a copy of every stored row of a content item ordered by version.
func (s *Store) Rows(appID, id uuid.UUID) []*schemacontent.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*schemacontent.Row
	for key, row := range s.rows {
		if key.appID == appID && key.id == id {
			out = append(out, row.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

func (s *Store) match(ctx context.Context, plan *schemacontent.Plan) ([]*schemacontent.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*schemacontent.Row
	for _, row := range s.rows {
		if plan.Filter == nil || matches(row, plan.Filter) {
			// Return copies to prevent external modifications
			matched = append(matched, row.Clone())
		}
	}
	// Map order is random; start from a stable order before sorting.
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.ID != b.ID {
			return a.ID.String() < b.ID.String()
		}
		return a.Version < b.Version
	})
	return matched, nil
}
