package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/admin"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
	"go.uber.org/zap"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// RequestTimeout bounds each request context; zero disables it.
	RequestTimeout time.Duration

	// MaxBodyBytes limits request bodies (default: 1 MiB)
	MaxBodyBytes int64
}

// NewRouter wires the content and admin handlers with the standard middleware.
//
//	/health
//	/apps/{appID}/schemas/{schemaID}/contents/...
//	/admin/apps/{appID}/schemas/{schemaID}/contents/...
func NewRouter(repo schemacontent.Repository, registry schema.Registry, logger *zap.Logger, opts RouterOptions) chi.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoveryMiddleware(logger))
	r.Use(TimeoutMiddleware(opts.RequestTimeout))
	r.Use(RequestSizeLimitMiddleware(opts.MaxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	contents := NewContentHandler(repo, registry, logger)
	r.Mount("/apps/{appID}/schemas/{schemaID}/contents", contents.Routes())

	admins := NewAdminHandler(admin.New(repo), logger)
	r.Mount("/admin/apps/{appID}/schemas/{schemaID}/contents", admins.Routes())

	return r
}
