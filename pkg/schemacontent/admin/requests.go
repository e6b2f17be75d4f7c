package admin

import (
	"time"

	"github.com/tendant/schema-content/pkg/schemacontent"
)

// ListContentsRequest contains parameters for admin content listing
type ListContentsRequest struct {
	Filters ContentFilters `json:"filters"`
}

// ListContentsResponse contains the paginated list of contents
type ListContentsResponse struct {
	Contents   []*schemacontent.ContentItem `json:"contents"`
	TotalCount int64                        `json:"total_count"`
	Limit      int                          `json:"limit"`
	Offset     int                          `json:"offset"`
	HasMore    bool                         `json:"has_more"`
}

// CountRequest contains parameters for counting contents
type CountRequest struct {
	Filters ContentFilters `json:"filters"`
}

// CountResponse contains the count result
type CountResponse struct {
	Count int64 `json:"count"`
}

// StatisticsRequest contains parameters for retrieving content statistics
type StatisticsRequest struct {
	Filters ContentFilters    `json:"filters"`
	Options StatisticsOptions `json:"options"`
}

// StatisticsResponse contains the statistics result
type StatisticsResponse struct {
	Statistics ContentStatistics `json:"statistics"`
	ComputedAt time.Time         `json:"computed_at"`
}
