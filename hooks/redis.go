package hooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher implements Publisher over a Redis Stream, grounded on the
// teacher's features/stream/pulse Redis-backed stream clients (same
// github.com/redis/go-redis/v9 dependency) but talking to a plain Redis
// Stream directly rather than through Pulse's higher-level Stream
// abstraction, since the publish activity only needs XAdd/at-least-once
// delivery, not Pulse's consumer-group replay semantics.
//
// Publish is best-effort per spec.md §4.2/§4.4: a single attempt, and errors
// are logged rather than returned so a broker outage never blocks the
// workflow beyond the publish activity's own short timeout.
type RedisPublisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
	logger func(ctx context.Context, msg string, keyvals ...any)
}

// RedisPublisherOptions configures a RedisPublisher.
type RedisPublisherOptions struct {
	// Client is a pre-configured Redis client. Required.
	Client *redis.Client
	// Stream is the Redis Stream key events are XADDed to. Defaults to
	// "agentrun:events".
	Stream string
	// MaxLen approximately caps the stream length (XADD MAXLEN ~). Zero
	// means unbounded.
	MaxLen int64
	// OnPublishError, if set, is called when an XADD fails instead of
	// silently dropping the event.
	OnPublishError func(ctx context.Context, msg string, keyvals ...any)
}

var _ Publisher = (*RedisPublisher)(nil)

// DefaultStream is the Redis Stream key used when RedisPublisherOptions.Stream
// is empty.
const DefaultStream = "agentrun:events"

// NewRedisPublisher constructs a RedisPublisher.
func NewRedisPublisher(opts RedisPublisherOptions) (*RedisPublisher, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("hooks: redis client is required")
	}
	stream := opts.Stream
	if stream == "" {
		stream = DefaultStream
	}
	logger := opts.OnPublishError
	if logger == nil {
		logger = func(context.Context, string, ...any) {}
	}
	return &RedisPublisher{rdb: opts.Client, stream: stream, maxLen: opts.MaxLen, logger: logger}, nil
}

// Publish XADDs each event to the configured stream as a single "payload"
// field holding its JSON encoding, matching the wire format spec.md §6
// defines (one record per event, UTF-8 JSON). A context.Background with no
// deadline is used since Publisher.Publish carries no context of its own;
// the activity layer bounds PublishWorkflowEventsActivity's own timeout.
func (p *RedisPublisher) Publish(events []Event) {
	ctx := context.Background()
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			p.logger(ctx, "hooks: marshal event failed", "event_id", e.EventID, "error", err.Error())
			continue
		}
		args := &redis.XAddArgs{
			Stream: p.stream,
			Values: map[string]any{
				"event_id":   e.EventID,
				"event_type": string(e.EventType),
				"payload":    payload,
			},
		}
		if p.maxLen > 0 {
			args.MaxLen = p.maxLen
			args.Approx = true
		}
		if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
			p.logger(ctx, "hooks: publish event failed", "event_id", e.EventID, "stream", p.stream, "error", err.Error())
		}
	}
}
