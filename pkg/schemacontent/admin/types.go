package admin

import (
	"time"

	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
)

// AllStatuses includes archived content, which default queries hide.
var AllStatuses = []schemacontent.Status{
	schemacontent.StatusDraft,
	schemacontent.StatusPublished,
	schemacontent.StatusArchived,
}

// ContentStatistics provides aggregated statistics about the latest versions of one schema
type ContentStatistics struct {
	TotalCount int64                          `json:"total_count"`
	ByStatus   map[schemacontent.Status]int64 `json:"by_status,omitempty"`
	Newest     *time.Time                     `json:"newest_content,omitempty"`
}

// ContentFilters defines filtering options for admin operations
type ContentFilters struct {
	// Scope
	AppID    uuid.UUID `json:"app_id"`
	SchemaID uuid.UUID `json:"schema_id"`

	// Statuses defaults to AllStatuses
	Statuses []schemacontent.Status `json:"statuses,omitempty"`

	// Query narrows the result; Take and Skip are replaced by Limit and Offset
	Filter query.Filter      `json:"-"`
	Search string            `json:"search,omitempty"`
	Sort   []query.SortField `json:"sort,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func (f ContentFilters) statuses() []schemacontent.Status {
	if len(f.Statuses) == 0 {
		return AllStatuses
	}
	return f.Statuses
}

// StatisticsOptions defines what statistics to compute
type StatisticsOptions struct {
	IncludeStatusBreakdown bool `json:"include_status_breakdown"`
	IncludeNewest          bool `json:"include_newest"`
}

// DefaultStatisticsOptions returns statistics options with all breakdowns enabled
func DefaultStatisticsOptions() StatisticsOptions {
	return StatisticsOptions{
		IncludeStatusBreakdown: true,
		IncludeNewest:          true,
	}
}
