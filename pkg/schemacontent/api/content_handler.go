package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
	"go.uber.org/zap"
)

// CreateContentRequest is the request body for creating a content
type CreateContentRequest struct {
	// ID is optional; a new id is generated when empty.
	ID   string                            `json:"id,omitempty"`
	Data map[string]map[string]interface{} `json:"data"`
}

// UpdateContentRequest is the request body for writing a new content version
type UpdateContentRequest struct {
	Data map[string]map[string]interface{} `json:"data"`
}

// MissingIDsRequest is the request body for the missing-ids lookup
type MissingIDsRequest struct {
	IDs []string `json:"ids"`
}

// MissingIDsResponse lists the requested ids without stored content
type MissingIDsResponse struct {
	Missing []uuid.UUID `json:"missing"`
}

// ContentHandler serves the content repository of one app schema over HTTP.
// Routes expect the {appID} and {schemaID} URL parameters from the mount point.
type ContentHandler struct {
	repo     schemacontent.Repository
	registry schema.Registry
	logger   *zap.Logger
}

// NewContentHandler creates a new content handler
func NewContentHandler(repo schemacontent.Repository, registry schema.Registry, logger *zap.Logger) *ContentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentHandler{
		repo:     repo,
		registry: registry,
		logger:   logger,
	}
}

// Routes returns the routes for content
func (h *ContentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.QueryContents)
	r.Post("/", h.CreateContent)
	r.Get("/bulk", h.GetContentsByIDs)
	r.Post("/missing", h.GetMissingIDs)

	r.Get("/{id}", h.GetContent)
	r.Put("/{id}", h.UpdateContent)
	r.Get("/{id}/versions/{version}", h.GetContentVersion)

	// Status changes
	r.Post("/{id}/publish", h.PublishContent)
	r.Post("/{id}/unpublish", h.UnpublishContent)
	r.Post("/{id}/archive", h.ArchiveContent)

	return r
}

const maxContentsPerRequest = schemacontent.MaxTake

// QueryContents runs an OData query ($filter, $orderby, $top, $skip, $search)
// restricted to the requested statuses.
func (h *ContentHandler) QueryContents(w http.ResponseWriter, r *http.Request) {
	appID, schemaID, ok := scopeParams(w, r)
	if !ok {
		return
	}
	statuses, err := parseStatuses(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q, err := query.ParseOData(r.URL.Query())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	page, err := h.repo.Query(r.Context(), appID, schemaID, statuses, q)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, page)
}

// GetContentsByIDs retrieves the latest versions of the requested ids
func (h *ContentHandler) GetContentsByIDs(w http.ResponseWriter, r *http.Request) {
	appID, schemaID, ok := scopeParams(w, r)
	if !ok {
		return
	}

	idStrings := r.URL.Query()["id"]
	if len(idStrings) > maxContentsPerRequest {
		badRequest(w, r, "Too many IDs requested")
		return
	}
	ids, err := parseIDs(idStrings)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	statuses, err := parseStatuses(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	page, err := h.repo.QueryByIDs(r.Context(), appID, schemaID, statuses, ids)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, page)
}

// GetMissingIDs reports which of the posted ids have no stored content
func (h *ContentHandler) GetMissingIDs(w http.ResponseWriter, r *http.Request) {
	appID, schemaID, ok := scopeParams(w, r)
	if !ok {
		return
	}

	var req MissingIDsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "Invalid request body")
		return
	}
	if len(req.IDs) > maxContentsPerRequest {
		badRequest(w, r, "Too many IDs requested")
		return
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}

	missing, err := h.repo.QueryMissingIDs(r.Context(), appID, schemaID, ids)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if missing == nil {
		missing = []uuid.UUID{}
	}
	render.JSON(w, r, MissingIDsResponse{Missing: missing})
}

// GetContent retrieves the latest version of a content
func (h *ContentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	appID, schemaID, ok := scopeParams(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	item, err := h.repo.FindLatest(r.Context(), appID, schemaID, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if item == nil {
		writeError(w, r, h.logger, errors.Wrapf(schemacontent.ErrContentNotFound, "content %s", id))
		return
	}
	writeItem(w, r, http.StatusOK, item)
}

// GetContentVersion retrieves the oldest version at or above the requested one
func (h *ContentHandler) GetContentVersion(w http.ResponseWriter, r *http.Request) {
	appID, schemaID, ok := scopeParams(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	version, err := strconv.ParseInt(chi.URLParam(r, "version"), 10, 64)
	if err != nil || version < 1 {
		badRequest(w, r, "Invalid version")
		return
	}

	item, err := h.repo.FindAtVersion(r.Context(), appID, schemaID, id, version)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if item == nil {
		writeError(w, r, h.logger, errors.Wrapf(schemacontent.ErrContentNotFound, "content %s version %d", id, version))
		return
	}
	writeItem(w, r, http.StatusOK, item)
}

// CreateContent creates a new content in Draft status
func (h *ContentHandler) CreateContent(w http.ResponseWriter, r *http.Request) {
	appID, schemaID, ok := scopeParams(w, r)
	if !ok {
		return
	}

	var req CreateContentRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "Invalid request body")
		return
	}

	var id uuid.UUID
	if req.ID != "" {
		parsed, err := uuid.Parse(req.ID)
		if err != nil {
			badRequest(w, r, "Invalid content ID")
			return
		}
		id = parsed
	}

	data, err := h.parseData(r, appID, schemaID, req.Data)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	item, err := h.repo.Create(r.Context(), schemacontent.CreateRequest{
		AppID:    appID,
		SchemaID: schemaID,
		ID:       id,
		Data:     data,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("content created", zap.Stringer("content_id", item.ID))
	w.Header().Set("Location", r.URL.Path+"/"+item.ID.String())
	writeItem(w, r, http.StatusCreated, item)
}

// UpdateContent writes a new version. An If-Match header carries the
// expected latest version.
func (h *ContentHandler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	appID, schemaID, ok := scopeParams(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	expected, ok := expectedVersion(w, r)
	if !ok {
		return
	}

	var req UpdateContentRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "Invalid request body")
		return
	}

	data, err := h.parseData(r, appID, schemaID, req.Data)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	item, err := h.repo.Update(r.Context(), schemacontent.UpdateRequest{
		AppID:           appID,
		SchemaID:        schemaID,
		ID:              id,
		Data:            data,
		ExpectedVersion: expected,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("content updated", zap.Stringer("content_id", item.ID), zap.Int64("version", item.Version))
	writeItem(w, r, http.StatusOK, item)
}

// PublishContent publishes the latest version
func (h *ContentHandler) PublishContent(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.repo.Publish)
}

// UnpublishContent moves the latest version back to Draft
func (h *ContentHandler) UnpublishContent(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.repo.Unpublish)
}

// ArchiveContent archives the latest version
func (h *ContentHandler) ArchiveContent(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.repo.Archive)
}

func (h *ContentHandler) changeStatus(w http.ResponseWriter, r *http.Request,
	change func(context.Context, schemacontent.StatusRequest) (*schemacontent.ContentItem, error)) {
	appID, schemaID, ok := scopeParams(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	expected, ok := expectedVersion(w, r)
	if !ok {
		return
	}

	item, err := change(r.Context(), schemacontent.StatusRequest{
		AppID:           appID,
		SchemaID:        schemaID,
		ID:              id,
		ExpectedVersion: expected,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("content status changed", zap.Stringer("content_id", item.ID), zap.String("status", string(item.Status)))
	writeItem(w, r, http.StatusOK, item)
}

// parseData decodes request data against the schema of the mount point.
func (h *ContentHandler) parseData(r *http.Request, appID, schemaID uuid.UUID, input map[string]map[string]interface{}) (schemacontent.ContentData, error) {
	s, err := h.registry.GetSchema(r.Context(), schemaID)
	if err != nil {
		return nil, err
	}
	if s.AppID != appID {
		return nil, errors.Wrapf(schemacontent.ErrSchemaNotFound, "schema %s in app %s", schemaID, appID)
	}
	return schemacontent.ParseData(s, input)
}

func writeItem(w http.ResponseWriter, r *http.Request, status int, item *schemacontent.ContentItem) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(item.Version, 10)))
	render.Status(r, status)
	render.JSON(w, r, item)
}

func scopeParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	appID, err := uuid.Parse(chi.URLParam(r, "appID"))
	if err != nil {
		badRequest(w, r, "Invalid app ID")
		return uuid.Nil, uuid.Nil, false
	}
	schemaID, err := uuid.Parse(chi.URLParam(r, "schemaID"))
	if err != nil {
		badRequest(w, r, "Invalid schema ID")
		return uuid.Nil, uuid.Nil, false
	}
	return appID, schemaID, true
}

func idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, r, "Invalid content ID")
		return uuid.Nil, false
	}
	return id, true
}

// expectedVersion reads If-Match. A missing header or "*" accepts any version.
func expectedVersion(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return schemacontent.AnyVersion, true
	}
	raw = strings.TrimPrefix(raw, "W/")
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		badRequest(w, r, "Invalid If-Match version")
		return 0, false
	}
	return v, true
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, errors.Newf("invalid content ID %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseStatuses reads repeated or comma separated status parameters.
func parseStatuses(r *http.Request) ([]schemacontent.Status, error) {
	var statuses []schemacontent.Status
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status := schemacontent.Status(part)
			if !status.Valid() {
				return nil, errors.Wrapf(schemacontent.ErrInvalidStatus, "%q", part)
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}
