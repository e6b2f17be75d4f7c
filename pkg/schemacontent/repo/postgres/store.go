package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/schema-content/pkg/schemacontent"
)

// DefaultTable is the table version rows are stored in.
const DefaultTable = "contents"

const rowColumns = "id, app_id, schema_id, version, status, is_latest, last_modified, referenced_ids, data, data_text"

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements schemacontent.Store using PostgreSQL. Content data is
// kept in a jsonb column shaped {field: {partition: value}}.
type Store struct {
	db    DBTX
	table string
}

// New creates a new PostgreSQL store
func New(db DBTX) *Store {
	return &Store{db: db, table: DefaultTable}
}

// NewWithPool creates a new PostgreSQL store with connection pool
func NewWithPool(pool *pgxpool.Pool) *Store {
	return New(pool)
}

// WithTable returns a store using another table name.
func (s *Store) WithTable(table string) *Store {
	return &Store{db: s.db, table: pgx.Identifier{table}.Sanitize()}
}

func (s *Store) Insert(ctx context.Context, row *schemacontent.Row) error {
	data, err := json.Marshal(row.Data.Map())
	if err != nil {
		return schemacontent.NewStorageError("insert content", err)
	}
	refs := row.ReferencedIDs
	if refs == nil {
		refs = []uuid.UUID{}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, s.table, rowColumns)

	_, err = s.db.Exec(ctx, query,
		row.ID, row.AppID, row.SchemaID, row.Version, string(row.Status), row.IsLatest,
		row.LastModified.UTC(), refs, data, row.DataText)
	if err != nil {
		return s.handlePostgresError("insert content", err)
	}
	return nil
}

func (s *Store) ClearLatest(ctx context.Context, appID, id uuid.UUID, belowVersion int64) error {
	query := fmt.Sprintf(`
		UPDATE %s SET is_latest = false
		WHERE app_id = $1 AND id = $2 AND version < $3 AND is_latest`, s.table)

	if _, err := s.db.Exec(ctx, query, appID, id, belowVersion); err != nil {
		return s.handlePostgresError("clear latest", err)
	}
	return nil
}

func (s *Store) SetStatus(ctx context.Context, appID, id uuid.UUID, version int64, status schemacontent.Status, modified time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s SET status = $4, last_modified = $5
		WHERE app_id = $1 AND id = $2 AND version = $3`, s.table)

	tag, err := s.db.Exec(ctx, query, appID, id, version, string(status), modified.UTC())
	if err != nil {
		return s.handlePostgresError("set status", err)
	}
	if tag.RowsAffected() == 0 {
		return schemacontent.ErrContentNotFound
	}
	return nil
}

func (s *Store) Find(ctx context.Context, plan *schemacontent.Plan) ([]*schemacontent.Row, error) {
	query, args, err := selectSQL(s.table, plan)
	if err != nil {
		return nil, schemacontent.NewStorageError("render query", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, s.handlePostgresError("find content", err)
	}
	defer rows.Close()

	var result []*schemacontent.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, s.handlePostgresError("scan content", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, s.handlePostgresError("iterate content rows", err)
	}
	return result, nil
}

func (s *Store) Count(ctx context.Context, plan *schemacontent.Plan) (int64, error) {
	query, args, err := countSQL(s.table, plan)
	if err != nil {
		return 0, schemacontent.NewStorageError("render count", err)
	}

	var count int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, s.handlePostgresError("count content", err)
	}
	return count, nil
}

func (s *Store) IDs(ctx context.Context, plan *schemacontent.Plan) ([]uuid.UUID, error) {
	query, args, err := idsSQL(s.table, plan)
	if err != nil {
		return nil, schemacontent.NewStorageError("render ids", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, s.handlePostgresError("find content ids", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, s.handlePostgresError("scan content id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, s.handlePostgresError("iterate content ids", err)
	}
	return ids, nil
}

// EnsureIndexes creates the table when missing and then every index.
func (s *Store) EnsureIndexes(ctx context.Context, indexes []schemacontent.IndexSpec) error {
	if _, err := s.db.Exec(ctx, createTableSQL(s.table)); err != nil {
		return s.handlePostgresError("create table", err)
	}
	for _, idx := range indexes {
		stmt, err := createIndexSQL(s.table, idx)
		if err != nil {
			return schemacontent.NewStorageError("create index", err)
		}
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return s.handlePostgresError("create index "+idx.Name, err)
		}
	}
	return nil
}

func scanRow(rows pgx.Rows) (*schemacontent.Row, error) {
	var (
		row    schemacontent.Row
		status string
		data   []byte
	)
	if err := rows.Scan(&row.ID, &row.AppID, &row.SchemaID, &row.Version, &status, &row.IsLatest,
		&row.LastModified, &row.ReferencedIDs, &data, &row.DataText); err != nil {
		return nil, err
	}
	row.Status = schemacontent.Status(status)
	row.LastModified = row.LastModified.UTC()

	var fields map[string]map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrapf(err, "decode data of %s", row.ID)
	}
	row.Data = rawData(fields)
	return &row, nil
}

// rawData orders decoded fields and partitions by name.
func rawData(fields map[string]map[string]interface{}) schemacontent.RawData {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	data := make(schemacontent.RawData, 0, len(names))
	for _, name := range names {
		partitions := fields[name]
		keys := make([]string, 0, len(partitions))
		for key := range partitions {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		field := schemacontent.RawField{Name: name}
		for _, key := range keys {
			field.Partitions = append(field.Partitions, schemacontent.RawPartition{Key: key, Value: partitions[key]})
		}
		data = append(data, field)
	}
	return data
}

// Error handling helper
func (s *Store) handlePostgresError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return schemacontent.ErrDuplicateVersion
		case pgErr.Code == "42P01": // undefined_table
			return &schemacontent.StorageError{Op: operation, Msg: "table does not exist - indexes must be ensured first"}
		case strings.HasPrefix(pgErr.Code, "08"), // connection_exception
			pgErr.Code == "53300", // too_many_connections
			pgErr.Code == "57P01", // admin_shutdown
			pgErr.Code == "57P03": // cannot_connect_now
			return &schemacontent.StorageUnavailableError{Op: operation, Msg: pgErr.Message}
		default:
			return &schemacontent.StorageError{Op: operation, Msg: fmt.Sprintf("%s (code: %s)", pgErr.Message, pgErr.Code)}
		}
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return schemacontent.NewStorageUnavailableError(operation, err)
	}
	return schemacontent.NewStorageError(operation, err)
}
