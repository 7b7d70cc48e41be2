package redis

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"compliance-extraction-engine/internal/domain/model"
	"compliance-extraction-engine/internal/domain/ports/adapter"
)

// Compile-time checks
var (
	_ adapter.ProgressPublisher = (*ProgressFeed)(nil)
	_ adapter.ProgressFeed      = (*ProgressFeed)(nil)
)

// ProgressFeed rides Redis pub/sub as the real-time change feed over the
// persisted event log. The database row is the durable record; this feed is
// only the wake-up signal for live subscribers, so losing a message costs a
// subscriber nothing but latency (they re-read history on reconnect).
type ProgressFeed struct {
	cli *Client
	log *zerolog.Logger
}

func NewProgressFeed(cli *Client, log *zerolog.Logger) *ProgressFeed {
	return &ProgressFeed{cli: cli, log: log}
}

func channelFor(jobID string) string { return "progress:" + jobID }

func (f *ProgressFeed) Publish(ctx context.Context, ev model.ProgressEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.cli.Publish(ctx, channelFor(ev.JobID), b)
}

// Subscribe returns a channel of future events for one job. The returned
// cancel func must be called to release the underlying subscription.
func (f *ProgressFeed) Subscribe(ctx context.Context, jobID string) (<-chan model.ProgressEvent, func(), error) {
	sub := f.cli.Subscribe(ctx, channelFor(jobID))
	// Force the subscription to be established before we return, so callers
	// that fetch history right after Subscribe cannot miss events in between.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan model.ProgressEvent, 16)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev model.ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.log.Warn().Err(err).Str("job_id", jobID).Msg("malformed progress event on feed")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}
