package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/schema-content/pkg/schemacontent/admin"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
	"go.uber.org/zap"
)

// AdminHandler exposes admin listing and statistics. Unlike ContentHandler it
// includes archived content unless a status is requested.
type AdminHandler struct {
	service admin.AdminService
	logger  *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service admin.AdminService, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{service: service, logger: logger}
}

// Routes returns the admin routes
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListContents)
	r.Get("/count", h.CountContents)
	r.Get("/statistics", h.GetStatistics)
	return r
}

// ListContents lists latest versions with OData paging
func (h *AdminHandler) ListContents(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	resp, err := h.service.ListAllContents(r.Context(), admin.ListContentsRequest{Filters: filters})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, resp)
}

// CountContents counts latest versions matching the filters
func (h *AdminHandler) CountContents(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	resp, err := h.service.CountContents(r.Context(), admin.CountRequest{Filters: filters})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, resp)
}

// GetStatistics returns per-status counts and the newest modification time
func (h *AdminHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	start := time.Now()
	resp, err := h.service.GetStatistics(r.Context(), admin.StatisticsRequest{
		Filters: filters,
		Options: admin.DefaultStatisticsOptions(),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Debug("statistics computed", zap.Duration("duration", time.Since(start)))
	render.JSON(w, r, resp)
}

func (h *AdminHandler) filters(w http.ResponseWriter, r *http.Request) (admin.ContentFilters, bool) {
	appID, schemaID, ok := scopeParams(w, r)
	if !ok {
		return admin.ContentFilters{}, false
	}
	statuses, err := parseStatuses(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return admin.ContentFilters{}, false
	}
	q, err := query.ParseOData(r.URL.Query())
	if err != nil {
		writeError(w, r, h.logger, err)
		return admin.ContentFilters{}, false
	}
	return admin.ContentFilters{
		AppID:    appID,
		SchemaID: schemaID,
		Statuses: statuses,
		Filter:   q.Filter,
		Search:   q.Search,
		Sort:     q.Sort,
		Limit:    q.Take,
		Offset:   q.Skip,
	}, true
}
