package admin

import (
	"context"

	"github.com/tendant/schema-content/pkg/schemacontent"
)

// AdminService defines the interface for administrative content operations.
// Unlike regular queries it sees archived content by default. Every call is
// still scoped to one app and schema.
//
// IMPORTANT: Endpoints using this service should be protected with appropriate
// authentication and authorization middleware.
type AdminService interface {
	// ListAllContents returns a paginated list of latest versions with optional filtering.
	ListAllContents(ctx context.Context, req ListContentsRequest) (*ListContentsResponse, error)

	// CountContents returns the count of contents matching the given filters.
	CountContents(ctx context.Context, req CountRequest) (*CountResponse, error)

	// GetStatistics returns aggregated statistics about contents.
	GetStatistics(ctx context.Context, req StatisticsRequest) (*StatisticsResponse, error)
}

// New creates a new AdminService instance that uses the provided repository.
func New(repo schemacontent.Repository) AdminService {
	return &adminService{
		repo: repo,
	}
}
