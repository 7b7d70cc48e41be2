package adapter

import (
	"context"

	"compliance-extraction-engine/internal/domain/model"
)

// ProgressPublisher fans a persisted ProgressEvent out to live subscribers.
// Delivery is at-least-once and best-effort: a publish failure must never
// roll back or block the state transition that produced the event.
type ProgressPublisher interface {
	Publish(ctx context.Context, ev model.ProgressEvent) error
}

// ProgressFeed lets a subscriber ride the live event stream for one job.
// Late subscribers fetch history from the repository first; the feed only
// carries events published after Subscribe returns.
type ProgressFeed interface {
	Subscribe(ctx context.Context, jobID string) (<-chan model.ProgressEvent, func(), error)
}
