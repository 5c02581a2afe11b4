// Package notifications publishes notification events to Redis channels so an
// external delivery collaborator (websocket gateway, email/SMS worker) can
// pick them up. Persistence of the inbox rows lives in the service layer; the
// publisher is best-effort.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"

	"sophia/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Notifier publishes notification payloads into per-user Redis channels.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier using the provided Redis client. A nil
// client disables publishing; every method becomes a no-op.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Event is the wire shape published for each notification.
type Event struct {
	Kind      models.NotificationKind `json:"tipo"`
	UserID    uuid.UUID               `json:"usuario_id"`
	ChannelID uuid.UUID               `json:"canal_id"`
	MessageID *uuid.UUID              `json:"mensagem_id,omitempty"`
	Title     string                  `json:"titulo"`
	Body      string                  `json:"corpo"`
}

// PublishUser sends an event to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uuid.UUID, ev Event) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	channel := fmt.Sprintf("notifications:user:%s", userID)
	return n.rdb.Publish(ctx, channel, payload).Err()
}

// StartPatternSubscriber subscribes to `notifications:user:*` and calls
// onMessage for each incoming message. onMessage receives channel and payload.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "notifications:user:*")
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
