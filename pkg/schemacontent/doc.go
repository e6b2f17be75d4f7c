// Package schemacontent provides a versioned content repository for
// schema-defined documents with pluggable storage backends.
//
// Content items carry a dynamic, per-schema payload. Each write appends a new
// version row; the newest row of a content id is flagged as latest and carries
// the item's lifecycle status (Draft, Published, Archived). History is never
// deleted.
//
// The Repository interface ties four parts together:
//
//   - Translate turns an abstract query (package query) into a storage-neutral
//     Plan, resolving field paths and literal types against the schema.
//   - The lifecycle operations (Create, Update, Publish, Unpublish, Archive)
//     own version numbers, status and the latest flag.
//   - EnsureIndexes declares the index set every Store must provide.
//   - Hydrate decodes stored rows into ContentItem values. Rows never leave
//     the repository without passing through it.
//
// Stores for memory, Postgres and MongoDB live under repo/. Each renders a
// Plan natively and maps engine failures into the error taxonomy of this
// package, so callers only ever see ValidationError, VersionConflictError,
// CancelledError, StorageUnavailableError or StorageError.
//
// Schema changes that add queryable paths are not reindexed automatically.
package schemacontent
