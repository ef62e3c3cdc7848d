package dispatch

import (
	"context"
	"encoding/json"

	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
)

// PubSub is the Redis surface the relay needs.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (*goredis.PubSub, error)
}

// Relay fans dispatch events out across API instances through a Redis
// channel. Every instance runs a relay subscriber that feeds its local hub;
// publishers that have no hub (the cron worker) only use Broadcast.
type Relay struct {
	redis   PubSub
	channel string
	hub     *Hub
	logg    *logger.Logger
}

func NewRelay(redis PubSub, channel string, hub *Hub, logg *logger.Logger) (*Relay, error) {
	if redis == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "redis client required")
	}
	if channel == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dispatch channel required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Relay{redis: redis, channel: channel, hub: hub, logg: logg}, nil
}

// Broadcast publishes event to every instance, this one included.
func (r *Relay) Broadcast(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode dispatch event")
	}
	if err := r.redis.Publish(ctx, r.channel, payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish dispatch event")
	}
	return nil
}

// Run delivers channel messages to the local hub until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	if r.hub == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "relay has no hub to feed")
	}
	sub, err := r.redis.Subscribe(ctx, r.channel)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "subscribe dispatch channel")
	}
	defer sub.Close()

	ctx = r.logg.WithField(ctx, "channel", r.channel)
	r.logg.Info(ctx, "dispatch relay subscribed")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return pkgerrors.New(pkgerrors.CodeDependency, "dispatch channel closed")
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "discarding malformed dispatch event")
				continue
			}
			r.hub.Deliver(event)
		}
	}
}
