package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix = "dispatch:user:"
	collectorsChannel = "dispatch:collectors"
)

// envelope wraps an encoded event for Redis transport. Origin identifies
// the publishing process so subscribers skip their own messages; Exclude
// carries the collector to leave out of a fan-out (the claim winner must
// not receive the withdrawal for its own claim).
type envelope struct {
	Origin  string          `json:"origin"`
	Exclude uint            `json:"exclude,omitempty"`
	Event   json.RawMessage `json:"event"`
}

func decodeEnvelope(payload string) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, err
	}
	if len(env.Event) == 0 {
		return nil, fmt.Errorf("envelope without event")
	}
	return &env, nil
}

// Notifier publishes dispatch envelopes into Redis channels so events
// reach sessions held by other server instances.
type Notifier struct {
	rdb    *redis.Client
	origin string
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb, origin: uuid.NewString()}
}

// Origin returns the identifier this process stamps on published envelopes.
func (n *Notifier) Origin() string { return n.origin }

// PublishUser sends an encoded event to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, event []byte) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(envelope{Origin: n.origin, Event: event})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// PublishCollectors sends an encoded event to the collectors channel.
// excludeUserID, when non-zero, marks a collector whose sessions must not
// receive the event.
func (n *Notifier) PublishCollectors(ctx context.Context, excludeUserID uint, event []byte) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(envelope{Origin: n.origin, Exclude: excludeUserID, Event: event})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return n.rdb.Publish(ctx, collectorsChannel, payload).Err()
}

// StartPatternSubscriber subscribes to the dispatch patterns and calls
// onMessage for each incoming message. onMessage receives channel and payload.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*", collectorsChannel)
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in PatternSubscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}
