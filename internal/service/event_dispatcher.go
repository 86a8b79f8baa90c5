package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/arc-docs-api/pkg/config"
	"github.com/noah-isme/arc-docs-api/pkg/events"
	"github.com/noah-isme/arc-docs-api/pkg/jobs"
)

const eventJobType = "lifecycle_event"

// EventDispatcher delivers lifecycle events after their transaction commits.
// Delivery is best effort: a full queue or exhausted retries are
// logged and counted but never fail the request that produced the event.
type EventDispatcher struct {
	publisher events.Publisher
	queue     *jobs.Queue
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewEventDispatcher wires a publisher behind a worker queue.
func NewEventDispatcher(publisher events.Publisher, cfg config.EventsConfig, metrics *MetricsService, logger *zap.Logger) *EventDispatcher {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &EventDispatcher{publisher: publisher, metrics: metrics, logger: logger}
	d.queue = jobs.NewQueue("events", d.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnGiveUp: func(job jobs.Job, err error) {
			if event, ok := job.Payload.(events.Event); ok {
				d.metrics.EventPublished(string(event.Type), "dropped")
			}
		},
	})
	return d
}

// Start launches the delivery workers.
func (d *EventDispatcher) Start(ctx context.Context) {
	if d == nil {
		return
	}
	d.queue.Start(ctx)
}

// Stop drains buffered events and closes the publisher.
func (d *EventDispatcher) Stop() {
	if d == nil {
		return
	}
	d.queue.Stop()
	d.publisher.Close()
}

// Dispatch queues events for delivery. Call it only after commit.
func (d *EventDispatcher) Dispatch(evts ...events.Event) {
	if d == nil {
		return
	}
	for _, event := range evts {
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.OccurredAt.IsZero() {
			event.OccurredAt = time.Now().UTC()
		}
		job := jobs.Job{ID: event.ID, Type: eventJobType, Payload: event}
		if err := d.queue.Enqueue(job); err != nil {
			d.metrics.EventPublished(string(event.Type), "dropped")
			d.logger.Warn("lifecycle event not queued", zap.String("type", string(event.Type)), zap.String("document_id", event.DocumentID), zap.Error(err))
		}
	}
}

func (d *EventDispatcher) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(events.Event)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.publisher.Publish(publishCtx, event); err != nil {
		d.metrics.EventPublished(string(event.Type), "error")
		return err
	}
	d.metrics.EventPublished(string(event.Type), "ok")
	return nil
}
