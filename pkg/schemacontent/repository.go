package schemacontent

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxWriteAttempts bounds how often an unconditional update retries after
// losing a version race.
const maxWriteAttempts = 5

// repository implements the Repository interface
type repository struct {
	store       Store
	registry    schema.Registry
	eventSink   EventSink
	logger      *zap.Logger
	now         func() time.Time
	indexPolicy IndexPolicy
}

// Option represents a functional option for configuring the repository
type Option func(*repository)

// WithStore sets the storage backend
func WithStore(store Store) Option {
	return func(r *repository) {
		r.store = store
	}
}

// WithRegistry sets the schema registry used to resolve schemas
func WithRegistry(registry schema.Registry) Option {
	return func(r *repository) {
		r.registry = registry
	}
}

// WithEventSink sets the event sink for lifecycle events
func WithEventSink(sink EventSink) Option {
	return func(r *repository) {
		r.eventSink = sink
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *repository) {
		r.logger = logger
	}
}

// WithClock overrides the time source for lastModified
func WithClock(now func() time.Time) Option {
	return func(r *repository) {
		r.now = func() time.Time { return now().UTC().Truncate(time.Millisecond) }
	}
}

// WithIndexPolicy sets the retry policy of EnsureIndexes
func WithIndexPolicy(policy IndexPolicy) Option {
	return func(r *repository) {
		r.indexPolicy = policy
	}
}

// New creates a new repository with the given options
func New(options ...Option) (Repository, error) {
	r := &repository{
		eventSink:   NewNoopEventSink(),
		logger:      zap.NewNop(),
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		indexPolicy: DefaultIndexPolicy(),
	}

	for _, option := range options {
		option(r)
	}

	if r.store == nil {
		return nil, errors.New("store is required")
	}
	if r.registry == nil {
		return nil, errors.New("schema registry is required")
	}

	return r, nil
}

// Query operations

func (r *repository) Query(ctx context.Context, appID, schemaID uuid.UUID, statuses []Status, q *query.Query) (*ResultPage, error) {
	const op = "query"
	if err := ctx.Err(); err != nil {
		return nil, r.boundary(op, err)
	}

	s, err := r.schemaFor(ctx, appID, schemaID)
	if err != nil {
		return nil, r.boundary(op, err)
	}
	plan, err := Translate(s, statuses, q)
	if err != nil {
		return nil, r.boundary(op, err)
	}

	page, err := r.execute(ctx, s, plan)
	if err != nil {
		return nil, r.boundary(op, err)
	}
	r.logger.Debug("query executed",
		zap.Stringer("app_id", appID),
		zap.Stringer("schema_id", schemaID),
		zap.Int("items", len(page.Items)),
		zap.Int64("total", page.Total))
	return page, nil
}

func (r *repository) QueryByIDs(ctx context.Context, appID, schemaID uuid.UUID, statuses []Status, ids []uuid.UUID) (*ResultPage, error) {
	const op = "query by ids"
	if err := ctx.Err(); err != nil {
		return nil, r.boundary(op, err)
	}

	s, err := r.schemaFor(ctx, appID, schemaID)
	if err != nil {
		return nil, r.boundary(op, err)
	}
	plan, err := TranslateIDs(s, statuses, ids)
	if err != nil {
		return nil, r.boundary(op, err)
	}
	if plan.Take == 0 {
		return &ResultPage{Items: []*ContentItem{}}, nil
	}

	page, err := r.execute(ctx, s, plan)
	if err != nil {
		return nil, r.boundary(op, err)
	}
	return page, nil
}

func (r *repository) QueryMissingIDs(ctx context.Context, appID, schemaID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	const op = "query missing ids"
	if err := ctx.Err(); err != nil {
		return nil, r.boundary(op, err)
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return []uuid.UUID{}, nil
	}

	found, err := r.store.IDs(ctx, idsPlan(appID, schemaID, ids))
	if err != nil {
		return nil, r.boundary(op, err)
	}

	present := make(map[uuid.UUID]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	missing := make([]uuid.UUID, 0, len(ids)-len(present))
	for _, id := range ids {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r *repository) FindLatest(ctx context.Context, appID, schemaID, id uuid.UUID) (*ContentItem, error) {
	const op = "find latest"
	return r.findOne(ctx, op, appID, schemaID, latestPlan(appID, schemaID, id))
}

func (r *repository) FindAtVersion(ctx context.Context, appID, schemaID, id uuid.UUID, minVersion int64) (*ContentItem, error) {
	const op = "find at version"
	return r.findOne(ctx, op, appID, schemaID, versionPlan(appID, schemaID, id, minVersion))
}

func (r *repository) EnsureIndexes(ctx context.Context) error {
	return EnsureIndexes(ctx, r.store, r.indexPolicy, r.logger)
}

func (r *repository) findOne(ctx context.Context, op string, appID, schemaID uuid.UUID, plan *Plan) (*ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, r.boundary(op, err)
	}

	s, err := r.schemaFor(ctx, appID, schemaID)
	if err != nil {
		return nil, r.boundary(op, err)
	}
	rows, err := r.store.Find(ctx, plan)
	if err != nil {
		return nil, r.boundary(op, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	item, err := Hydrate(rows[0], s)
	if err != nil {
		return nil, r.boundary(op, err)
	}
	return item, nil
}

// execute runs items and count concurrently and assembles the page.
func (r *repository) execute(ctx context.Context, s *schema.Schema, plan *Plan) (*ResultPage, error) {
	var (
		rows  []*Row
		total int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = r.store.Find(gctx, plan)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = r.store.Count(gctx, plan)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := make([]*ContentItem, 0, len(rows))
	for _, row := range rows {
		item, err := Hydrate(row, s)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return &ResultPage{Items: items, Total: total}, nil
}

// schemaFor resolves a schema and checks that it belongs to the app.
func (r *repository) schemaFor(ctx context.Context, appID, schemaID uuid.UUID) (*schema.Schema, error) {
	s, err := r.registry.GetSchema(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	if s == nil || s.AppID != appID {
		return nil, errors.Wrapf(ErrSchemaNotFound, "schema %s in app %s", schemaID, appID)
	}
	return s, nil
}

// boundary maps any failure onto the error taxonomy of this package.
func (r *repository) boundary(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		validation  *ValidationError
		conflict    *VersionConflictError
		cancelled   *CancelledError
		unavailable *StorageUnavailableError
		storage     *StorageError
		unknown     *UnknownFieldError
		mismatch    *TypeMismatchError
		unsupported *UnsupportedQueryError
		syntax      *query.SyntaxError
	)

	switch {
	case errors.As(err, &validation), errors.As(err, &conflict), errors.As(err, &cancelled):
		return err
	case errors.As(err, &unknown), errors.As(err, &mismatch), errors.As(err, &unsupported), errors.As(err, &syntax):
		return &ValidationError{Err: err}
	case errors.Is(err, context.Canceled):
		return &CancelledError{Op: op, Err: context.Canceled}
	case errors.Is(err, context.DeadlineExceeded):
		return &CancelledError{Op: op, Err: context.DeadlineExceeded}
	case errors.As(err, &unavailable), errors.As(err, &storage):
		return err
	case errors.Is(err, ErrContentNotFound), errors.Is(err, ErrContentExists),
		errors.Is(err, ErrContentArchived), errors.Is(err, ErrSchemaNotFound),
		errors.Is(err, ErrInvalidStatus):
		return err
	default:
		r.logger.Error("unexpected storage failure", zap.String("op", op), zap.Error(err))
		return &StorageError{Op: op, Msg: err.Error()}
	}
}
