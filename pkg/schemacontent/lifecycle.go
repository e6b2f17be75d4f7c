package schemacontent

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
	"go.uber.org/zap"
)

// Lifecycle operations. The repository is the only writer of version,
// status and the latest flag; every write is a single-row insert or update.

func (r *repository) Create(ctx context.Context, req CreateRequest) (*ContentItem, error) {
	const op = "create"
	if err := ctx.Err(); err != nil {
		return nil, r.boundary(op, err)
	}

	s, err := r.schemaFor(ctx, req.AppID, req.SchemaID)
	if err != nil {
		return nil, r.boundary(op, err)
	}
	raw, err := EncodeData(s, req.Data)
	if err != nil {
		return nil, r.boundary(op, err)
	}

	id := req.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	existing, err := r.store.Find(ctx, existsPlan(req.AppID, id))
	if err != nil {
		return nil, r.boundary(op, err)
	}
	if len(existing) > 0 {
		return nil, errors.Wrapf(ErrContentExists, "content %s", id)
	}

	row := r.newRow(s, req.AppID, id, 1, StatusDraft, req.Data, raw)
	if err := r.store.Insert(ctx, row); err != nil {
		if errors.Is(err, ErrDuplicateVersion) {
			return nil, errors.Wrapf(ErrContentExists, "content %s", id)
		}
		return nil, r.boundary(op, err)
	}

	item, err := Hydrate(row, s)
	if err != nil {
		return nil, r.boundary(op, err)
	}
	if err := r.eventSink.ContentCreated(ctx, item); err != nil {
		r.logger.Warn("event sink failed", zap.String("op", op), zap.Error(err))
	}
	return item, nil
}

// Update writes the next version of a content item with the status of the
// current one. Without an expected version a lost version race is retried
// against the new latest row, so concurrent writers never leave gaps.
func (r *repository) Update(ctx context.Context, req UpdateRequest) (*ContentItem, error) {
	const op = "update"
	if err := ctx.Err(); err != nil {
		return nil, r.boundary(op, err)
	}

	s, err := r.schemaFor(ctx, req.AppID, req.SchemaID)
	if err != nil {
		return nil, r.boundary(op, err)
	}
	raw, err := EncodeData(s, req.Data)
	if err != nil {
		return nil, r.boundary(op, err)
	}

	for attempt := 1; ; attempt++ {
		latest, err := r.latestRow(ctx, req.AppID, req.SchemaID, req.ID)
		if err != nil {
			return nil, r.boundary(op, err)
		}
		if err := checkExpected(req.ID, req.ExpectedVersion, latest.Version); err != nil {
			return nil, err
		}
		if ok, err := canUpdate(latest.Status); !ok {
			return nil, r.boundary(op, err)
		}

		row := r.newRow(s, req.AppID, req.ID, latest.Version+1, latest.Status, req.Data, raw)
		err = r.store.Insert(ctx, row)
		if errors.Is(err, ErrDuplicateVersion) {
			if req.ExpectedVersion != AnyVersion || attempt >= maxWriteAttempts {
				return nil, &VersionConflictError{ContentID: req.ID, Expected: latest.Version, Actual: row.Version}
			}
			r.logger.Debug("lost version race, retrying",
				zap.Stringer("content_id", req.ID), zap.Int64("version", row.Version))
			continue
		}
		if err != nil {
			return nil, r.boundary(op, err)
		}

		if err := r.store.ClearLatest(ctx, req.AppID, req.ID, row.Version); err != nil {
			return nil, r.boundary(op, err)
		}
		if err := r.archiveIfPredecessorArchived(ctx, s, row, latest.Version); err != nil {
			return nil, r.boundary(op, err)
		}

		item, err := Hydrate(row, s)
		if err != nil {
			return nil, r.boundary(op, err)
		}
		if err := r.eventSink.ContentUpdated(ctx, item); err != nil {
			r.logger.Warn("event sink failed", zap.String("op", op), zap.Error(err))
		}
		return item, nil
	}
}

func (r *repository) Publish(ctx context.Context, req StatusRequest) (*ContentItem, error) {
	return r.changeStatus(ctx, "publish", req, StatusPublished)
}

func (r *repository) Unpublish(ctx context.Context, req StatusRequest) (*ContentItem, error) {
	return r.changeStatus(ctx, "unpublish", req, StatusDraft)
}

// Archive marks the latest version archived. Archiving archived content is a
// no-op. Versions written concurrently are archived as well.
func (r *repository) Archive(ctx context.Context, req StatusRequest) (*ContentItem, error) {
	return r.changeStatus(ctx, "archive", req, StatusArchived)
}

func (r *repository) changeStatus(ctx context.Context, op string, req StatusRequest, to Status) (*ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, r.boundary(op, err)
	}

	s, err := r.schemaFor(ctx, req.AppID, req.SchemaID)
	if err != nil {
		return nil, r.boundary(op, err)
	}
	latest, err := r.latestRow(ctx, req.AppID, req.SchemaID, req.ID)
	if err != nil {
		return nil, r.boundary(op, err)
	}
	if err := checkExpected(req.ID, req.ExpectedVersion, latest.Version); err != nil {
		return nil, err
	}

	previous := latest.Status
	changed, err := canTransition(previous, to)
	if err != nil {
		return nil, r.boundary(op, err)
	}
	if changed {
		now := r.now()
		if err := r.store.SetStatus(ctx, req.AppID, req.ID, latest.Version, to, now); err != nil {
			return nil, r.boundary(op, err)
		}
		latest.Status = to
		latest.LastModified = now
	}

	if to == StatusArchived {
		newest, err := r.latestRow(ctx, req.AppID, req.SchemaID, req.ID)
		if err != nil {
			return nil, r.boundary(op, err)
		}
		if newest.Version > latest.Version && newest.Status != StatusArchived {
			now := r.now()
			if err := r.store.SetStatus(ctx, req.AppID, req.ID, newest.Version, StatusArchived, now); err != nil {
				return nil, r.boundary(op, err)
			}
			newest.Status = StatusArchived
			newest.LastModified = now
			changed = true
		}
		if newest.Version > latest.Version {
			latest = newest
		}
	}

	item, err := Hydrate(latest, s)
	if err != nil {
		return nil, r.boundary(op, err)
	}
	if changed {
		if err := r.eventSink.ContentStatusChanged(ctx, item, previous); err != nil {
			r.logger.Warn("event sink failed", zap.String("op", op), zap.Error(err))
		}
	}
	return item, nil
}

// archiveIfPredecessorArchived lets a concurrent archive win over an update
// that read the predecessor before it was archived.
func (r *repository) archiveIfPredecessorArchived(ctx context.Context, s *schema.Schema, row *Row, predecessor int64) error {
	rows, err := r.store.Find(ctx, versionPlan(row.AppID, s.ID, row.ID, predecessor))
	if err != nil {
		return err
	}
	if len(rows) == 0 || rows[0].Version != predecessor || rows[0].Status != StatusArchived {
		return nil
	}

	now := r.now()
	if err := r.store.SetStatus(ctx, row.AppID, row.ID, row.Version, StatusArchived, now); err != nil {
		return err
	}
	r.logger.Info("content archived during update, archiving new version",
		zap.Stringer("content_id", row.ID), zap.Int64("version", row.Version))
	row.Status = StatusArchived
	row.LastModified = now
	return nil
}

func (r *repository) latestRow(ctx context.Context, appID, schemaID, id uuid.UUID) (*Row, error) {
	rows, err := r.store.Find(ctx, latestPlan(appID, schemaID, id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(ErrContentNotFound, "content %s", id)
	}
	return rows[0], nil
}

func (r *repository) newRow(s *schema.Schema, appID, id uuid.UUID, version int64, status Status, data ContentData, raw RawData) *Row {
	return &Row{
		ID:            id,
		AppID:         appID,
		SchemaID:      s.ID,
		Version:       version,
		Status:        status,
		IsLatest:      true,
		LastModified:  r.now(),
		ReferencedIDs: referencedIDs(s, data),
		Data:          raw,
		DataText:      indexedText(s, data),
	}
}

func checkExpected(id uuid.UUID, expected, actual int64) error {
	if expected != AnyVersion && expected != actual {
		return &VersionConflictError{ContentID: id, Expected: expected, Actual: actual}
	}
	return nil
}
