package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const bridgeChannel = "vigil:fanout:alerts"

// BridgeRecipient ties a recipient to their notification record. Only
// recipients whose durable record landed are relayed; the id lets peers
// correlate their push with the record in logs.
type BridgeRecipient struct {
	UserID         uuid.UUID `json:"userId"`
	NotificationID uuid.UUID `json:"notificationId"`
}

// BridgeEvent is one dispatch relayed across instances.
type BridgeEvent struct {
	Origin     string            `json:"origin"`
	Frame      json.RawMessage   `json:"frame"`
	Recipients []BridgeRecipient `json:"recipients"`
}

// Bridge relays dispatches over Redis pub/sub so recipients connected to a
// peer instance still get a live push. The origin instance id guards against
// pushing to the same sessions twice. The bridge is push-only: the ledger
// record was already written by the origin, and its status moves only through
// client acknowledgment.
type Bridge struct {
	client     *redis.Client
	instanceID string
	presence   Presence
	logger     *slog.Logger
}

func NewBridge(client *redis.Client, presence Presence, logger *slog.Logger) *Bridge {
	return &Bridge{
		client:     client,
		instanceID: uuid.NewString(),
		presence:   presence,
		logger:     logger,
	}
}

// Publish implements Publisher.
func (b *Bridge) Publish(ctx context.Context, ev BridgeEvent) error {
	ev.Origin = b.instanceID
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode bridge event: %w", err)
	}
	if err := b.client.Publish(ctx, bridgeChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish bridge event: %w", err)
	}
	return nil
}

// Run subscribes and pushes relayed dispatches to locally connected
// recipients. Blocks until ctx is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, bridgeChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(ctx, []byte(msg.Payload))
		}
	}
}

func (b *Bridge) handle(ctx context.Context, payload []byte) {
	var ev BridgeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		b.logger.WarnContext(ctx, "discarding malformed bridge event", "error", err.Error())
		return
	}
	if ev.Origin == b.instanceID {
		return
	}

	for _, r := range ev.Recipients {
		if b.presence.Send(r.UserID, ev.Frame) {
			b.logger.DebugContext(ctx, "pushed relayed alert",
				"user_id", r.UserID,
				"notification_id", r.NotificationID,
			)
		}
	}
}
