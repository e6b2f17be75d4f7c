package schemacontent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
)

// Repository is the content repository consumed by the service layer.
// Every operation is scoped to one app; rows of other apps are never visible.
type Repository interface {
	// Query operations
	Query(ctx context.Context, appID, schemaID uuid.UUID, statuses []Status, q *query.Query) (*ResultPage, error)
	QueryByIDs(ctx context.Context, appID, schemaID uuid.UUID, statuses []Status, ids []uuid.UUID) (*ResultPage, error)
	// QueryMissingIDs returns the requested ids without any stored row, in request order.
	QueryMissingIDs(ctx context.Context, appID, schemaID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)

	// Point lookups return nil, nil when nothing matches.
	FindLatest(ctx context.Context, appID, schemaID, id uuid.UUID) (*ContentItem, error)
	FindAtVersion(ctx context.Context, appID, schemaID, id uuid.UUID, minVersion int64) (*ContentItem, error)

	// Lifecycle operations
	Create(ctx context.Context, req CreateRequest) (*ContentItem, error)
	Update(ctx context.Context, req UpdateRequest) (*ContentItem, error)
	Publish(ctx context.Context, req StatusRequest) (*ContentItem, error)
	Unpublish(ctx context.Context, req StatusRequest) (*ContentItem, error)
	Archive(ctx context.Context, req StatusRequest) (*ContentItem, error)

	// EnsureIndexes creates the required index set. It is idempotent.
	EnsureIndexes(ctx context.Context) error
}

// Store persists version rows and executes plans. Implementations translate
// their engine failures into *StorageUnavailableError or *StorageError and
// must be safe for concurrent use.
type Store interface {
	// Insert adds a new version row. It returns ErrDuplicateVersion when a row
	// with the same app, id and version exists.
	Insert(ctx context.Context, row *Row) error

	// ClearLatest unsets the latest flag on every row of the content with a
	// version below the given one.
	ClearLatest(ctx context.Context, appID, id uuid.UUID, belowVersion int64) error

	// SetStatus changes the status of one version row. It returns
	// ErrContentNotFound when the row does not exist.
	SetStatus(ctx context.Context, appID, id uuid.UUID, version int64, status Status, modified time.Time) error

	// Find returns the rows matching the plan, sorted and paged.
	Find(ctx context.Context, plan *Plan) ([]*Row, error)

	// Count returns the number of rows matching the plan filter.
	Count(ctx context.Context, plan *Plan) (int64, error)

	// IDs returns the distinct content ids matching the plan filter.
	IDs(ctx context.Context, plan *Plan) ([]uuid.UUID, error)

	// EnsureIndexes creates the given indexes, ignoring ones that exist.
	EnsureIndexes(ctx context.Context, indexes []IndexSpec) error
}

// EventSink receives lifecycle events after a successful write.
type EventSink interface {
	// ContentCreated is fired when content is created
	ContentCreated(ctx context.Context, item *ContentItem) error

	// ContentUpdated is fired when a new version is written
	ContentUpdated(ctx context.Context, item *ContentItem) error

	// ContentStatusChanged is fired after publish, unpublish and archive
	ContentStatusChanged(ctx context.Context, item *ContentItem, previous Status) error
}
