package schemacontent

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lestrrat-go/backoff/v2"
	"go.uber.org/zap"
)

// IndexKey is one key of an index.
type IndexKey struct {
	Column     SystemColumn
	Descending bool
}

// IndexSpec declares an index every Store must provide.
type IndexSpec struct {
	Name string
	Keys []IndexKey
	// Text marks a full-text index over the single key column.
	Text bool
}

// RequiredIndexes returns the index set queries rely on.
func RequiredIndexes() []IndexSpec {
	return []IndexSpec{
		{Name: "id_version", Keys: []IndexKey{{Column: ColumnID}, {Column: ColumnVersion}}},
		{Name: "id_version_desc", Keys: []IndexKey{{Column: ColumnID}, {Column: ColumnVersion, Descending: true}}},
		{Name: "schema_latest_modified", Keys: []IndexKey{
			{Column: ColumnSchemaID},
			{Column: ColumnIsLatest, Descending: true},
			{Column: ColumnLastModified, Descending: true},
		}},
		{Name: "referenced_ids", Keys: []IndexKey{{Column: ColumnReferencedIDs}}},
		{Name: "status", Keys: []IndexKey{{Column: ColumnStatus}}},
		{Name: "data_text", Keys: []IndexKey{{Column: ColumnDataText}}, Text: true},
	}
}

// IndexPolicy bounds the retries of EnsureIndexes.
type IndexPolicy struct {
	MaxRetries  int
	MinInterval time.Duration
	MaxInterval time.Duration
}

// DefaultIndexPolicy retries for roughly half a minute.
func DefaultIndexPolicy() IndexPolicy {
	return IndexPolicy{
		MaxRetries:  6,
		MinInterval: 500 * time.Millisecond,
		MaxInterval: 10 * time.Second,
	}
}

// EnsureIndexes creates the required indexes on store. Transient failures
// (*StorageUnavailableError) are retried with exponential backoff; any other
// failure, or running out of retries, is returned.
func EnsureIndexes(ctx context.Context, store Store, policy IndexPolicy, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	p := backoff.Exponential(
		backoff.WithMinInterval(policy.MinInterval),
		backoff.WithMaxInterval(policy.MaxInterval),
		backoff.WithJitterFactor(0.1),
		backoff.WithMaxRetries(policy.MaxRetries),
	)
	// The policy's timer goroutine runs until its context is done.
	retryCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	b := p.Start(retryCtx)

	var lastErr error
	attempts := 0
	for backoff.Continue(b) {
		attempts++
		err := store.EnsureIndexes(ctx, RequiredIndexes())
		if err == nil {
			logger.Info("indexes ensured", zap.Int("attempts", attempts))
			return nil
		}

		var unavailable *StorageUnavailableError
		if !errors.As(err, &unavailable) {
			return errors.Wrap(err, "ensure indexes")
		}
		lastErr = err
		logger.Warn("storage unavailable while ensuring indexes, retrying",
			zap.Int("attempt", attempts), zap.Error(err))
	}

	if err := ctx.Err(); err != nil {
		return &CancelledError{Op: "ensure indexes", Err: err}
	}
	if lastErr == nil {
		lastErr = errors.New("no attempt made")
	}
	return errors.Wrapf(lastErr, "ensure indexes: giving up after %d attempts", attempts)
}
