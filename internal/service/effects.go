package service

import (
	"context"

	"github.com/noah-isme/arc-docs-api/pkg/events"
)

// postCommit runs the side effects of a committed mutation: transition
// metrics, lifecycle events and statistics cache invalidation. None of them
// can fail the request.
type postCommit struct {
	dispatcher *EventDispatcher
	cache      *CacheService
	metrics    *MetricsService
}

func (p postCommit) run(ctx context.Context, evts ...events.Event) {
	for _, event := range evts {
		if event.From != "" && event.To != "" {
			p.metrics.TransitionCommitted(event.From, event.To)
		}
	}
	if len(evts) > 0 {
		p.dispatcher.Dispatch(evts...)
	}
	p.cache.Invalidate(ctx, statsCachePattern)
}
