package scan

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/admin"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
	"go.uber.org/zap"
)

// Scanner queries contents and processes them with the provided processor.
type Scanner struct {
	adminSvc admin.AdminService
	logger   *zap.Logger
}

// New creates a new Scanner instance. A nil logger disables logging.
func New(adminSvc admin.AdminService, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{adminSvc: adminSvc, logger: logger}
}

// ScanOptions configures the scan operation.
type ScanOptions struct {
	// Filters specifies which contents to process. Sort, Limit and Offset
	// are managed by the scanner.
	Filters admin.ContentFilters

	// Processor defines the processing logic (required unless DryRun is true)
	Processor ContentProcessor

	// BatchSize controls how many contents to query at once (default: 100)
	BatchSize int

	// DryRun if true, doesn't process contents, just reports what would be processed
	DryRun bool

	// OnProgress is called after each batch is processed (optional)
	OnProgress func(processed, total int64)
}

// ScanResult contains statistics about the scan operation.
type ScanResult struct {
	// TotalFound is the total number of contents found matching the filters
	TotalFound int64

	// TotalProcessed is the number of contents successfully processed
	TotalProcessed int64

	// TotalFailed is the number of contents that failed processing
	TotalFailed int64

	// FailedIDs contains the IDs of contents that failed processing
	FailedIDs []string
}

// Scan pages through the matching contents ordered by id and processes each
// one. A failing item is recorded and scanning continues.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	result := &ScanResult{}

	if !opts.DryRun && opts.Processor == nil {
		return result, errors.New("processor is required when DryRun is false")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.BatchSize > schemacontent.MaxTake {
		opts.BatchSize = schemacontent.MaxTake
	}

	filters := opts.Filters
	filters.Sort = []query.SortField{{Path: "id"}}
	filters.Limit = opts.BatchSize
	filters.Offset = 0

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		resp, err := s.adminSvc.ListAllContents(ctx, admin.ListContentsRequest{Filters: filters})
		if err != nil {
			return result, errors.Wrap(err, "failed to list contents")
		}
		if len(resp.Contents) == 0 {
			break
		}

		result.TotalFound += int64(len(resp.Contents))

		for _, item := range resp.Contents {
			if opts.DryRun {
				s.logger.Info("dry run: would process content",
					zap.Stringer("id", item.ID),
					zap.Int64("version", item.Version),
					zap.String("status", string(item.Status)))
				result.TotalProcessed++
				continue
			}

			if err := opts.Processor.Process(ctx, item); err != nil {
				result.TotalFailed++
				result.FailedIDs = append(result.FailedIDs, item.ID.String())
				s.logger.Warn("failed to process content", zap.Stringer("id", item.ID), zap.Error(err))
				continue
			}
			result.TotalProcessed++
		}

		if opts.OnProgress != nil {
			opts.OnProgress(result.TotalProcessed+result.TotalFailed, resp.TotalCount)
		}

		if !resp.HasMore {
			break
		}
		filters.Offset += opts.BatchSize
	}

	return result, nil
}

// ForEach is a convenience method that processes each content with a callback function.
//
// Example:
//
//	scanner.ForEach(ctx, filters, func(ctx context.Context, item *schemacontent.ContentItem) error {
//	    return export(item)
//	})
func (s *Scanner) ForEach(ctx context.Context, filters admin.ContentFilters, fn func(context.Context, *schemacontent.ContentItem) error) (*ScanResult, error) {
	return s.Scan(ctx, ScanOptions{
		Filters:   filters,
		Processor: ProcessorFunc(fn),
	})
}
