package admin

import (
	"context"
	"time"

	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
	"golang.org/x/sync/errgroup"
)

// adminService implements the AdminService interface
type adminService struct {
	repo schemacontent.Repository
}

// Ensure adminService implements AdminService
var _ AdminService = (*adminService)(nil)

// ListAllContents returns a paginated list of contents with optional filtering
func (s *adminService) ListAllContents(ctx context.Context, req ListContentsRequest) (*ListContentsResponse, error) {
	f := req.Filters
	limit := f.Limit
	if limit <= 0 {
		limit = schemacontent.DefaultTake
	}
	if limit > schemacontent.MaxTake {
		limit = schemacontent.MaxTake
	}

	page, err := s.repo.Query(ctx, f.AppID, f.SchemaID, f.statuses(), &query.Query{
		Filter: f.Filter,
		Search: f.Search,
		Sort:   f.Sort,
		Skip:   f.Offset,
		Take:   limit,
	})
	if err != nil {
		return nil, err
	}

	return &ListContentsResponse{
		Contents:   page.Items,
		TotalCount: page.Total,
		Limit:      limit,
		Offset:     f.Offset,
		HasMore:    int64(f.Offset+len(page.Items)) < page.Total,
	}, nil
}

// CountContents returns the count of contents matching the given filters
func (s *adminService) CountContents(ctx context.Context, req CountRequest) (*CountResponse, error) {
	count, _, err := s.count(ctx, req.Filters, req.Filters.statuses())
	if err != nil {
		return nil, err
	}
	return &CountResponse{Count: count}, nil
}

// GetStatistics returns aggregated statistics about contents. Each status is
// counted with its own query.
func (s *adminService) GetStatistics(ctx context.Context, req StatisticsRequest) (*StatisticsResponse, error) {
	statuses := req.Filters.statuses()
	counts := make([]int64, len(statuses))
	newest := make([]*time.Time, len(statuses))

	g, gctx := errgroup.WithContext(ctx)
	for i, status := range statuses {
		g.Go(func() error {
			count, latest, err := s.count(gctx, req.Filters, []schemacontent.Status{status})
			if err != nil {
				return err
			}
			counts[i], newest[i] = count, latest
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := ContentStatistics{}
	if req.Options.IncludeStatusBreakdown {
		stats.ByStatus = make(map[schemacontent.Status]int64, len(statuses))
	}
	for i, status := range statuses {
		stats.TotalCount += counts[i]
		if stats.ByStatus != nil {
			stats.ByStatus[status] = counts[i]
		}
		if req.Options.IncludeNewest && newest[i] != nil && (stats.Newest == nil || newest[i].After(*stats.Newest)) {
			stats.Newest = newest[i]
		}
	}

	return &StatisticsResponse{
		Statistics: stats,
		ComputedAt: time.Now().UTC(),
	}, nil
}

// count returns the match count and the newest lastModified of the matches.
func (s *adminService) count(ctx context.Context, f ContentFilters, statuses []schemacontent.Status) (int64, *time.Time, error) {
	page, err := s.repo.Query(ctx, f.AppID, f.SchemaID, statuses, &query.Query{
		Filter: f.Filter,
		Search: f.Search,
		Take:   1,
	})
	if err != nil {
		return 0, nil, err
	}
	if len(page.Items) == 0 {
		return page.Total, nil, nil
	}
	newest := page.Items[0].LastModified
	return page.Total, &newest, nil
}
