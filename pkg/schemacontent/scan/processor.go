package scan

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/tendant/schema-content/pkg/schemacontent"
)

// ContentProcessor processes individual content items.
// External apps implement this to define custom processing logic, such as
// re-indexing, exporting or emitting events for backfill.
type ContentProcessor interface {
	// Process is called for each content found during scan.
	// Return error to mark this content as failed (scan continues with next content).
	Process(ctx context.Context, item *schemacontent.ContentItem) error
}

// ProcessorFunc adapts a function to the ContentProcessor interface.
type ProcessorFunc func(ctx context.Context, item *schemacontent.ContentItem) error

func (f ProcessorFunc) Process(ctx context.Context, item *schemacontent.ContentItem) error {
	return f(ctx, item)
}

// Chain runs processors in order and stops at the first failure.
func Chain(processors ...ContentProcessor) ContentProcessor {
	return ProcessorFunc(func(ctx context.Context, item *schemacontent.ContentItem) error {
		for i, p := range processors {
			if err := p.Process(ctx, item); err != nil {
				return errors.Wrapf(err, "processor %d", i)
			}
		}
		return nil
	})
}

// Counter counts processed items per status.
type Counter struct {
	mu       sync.Mutex
	byStatus map[schemacontent.Status]int64
}

// NewCounter creates an empty Counter.
func NewCounter() *Counter {
	return &Counter{byStatus: make(map[schemacontent.Status]int64)}
}

func (c *Counter) Process(_ context.Context, item *schemacontent.ContentItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byStatus[item.Status]++
	return nil
}

// Counts returns a copy of the per-status counts.
func (c *Counter) Counts() map[schemacontent.Status]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[schemacontent.Status]int64, len(c.byStatus))
	for k, v := range c.byStatus {
		out[k] = v
	}
	return out
}
