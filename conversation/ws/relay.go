package ws

import (
	"context"
	"encoding/json"

	"discussion-facilitator/backend/conversation/models"
	"discussion-facilitator/backend/pkg/logger"
)

// PubSub carries change events between processes
type PubSub interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context, handler func([]byte)) error
}

// Relay publishes change events through PubSub so that every process
// sharing the store, including this one, pushes them to its own clients
type Relay struct {
	hub *Hub
	bus PubSub
	log *logger.Logger
}

func NewRelay(hub *Hub, bus PubSub, log *logger.Logger) *Relay {
	return &Relay{hub: hub, bus: bus, log: log.Named("relay")}
}

// Start subscribes the local hub to the bus
func (r *Relay) Start(ctx context.Context) error {
	return r.bus.Subscribe(ctx, func(payload []byte) {
		var event models.ChangeEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			r.log.Warn("Dropping malformed change event", "error", err.Error())
			return
		}
		r.hub.Notify(ctx, event)
	})
}

// Notify publishes event on the bus, falling back to local clients only
func (r *Relay) Notify(ctx context.Context, event models.ChangeEvent) {
	payload, err := json.Marshal(event)
	if err == nil {
		err = r.bus.Publish(ctx, payload)
	}
	if err != nil {
		r.log.Warn("Change feed publish failed, notifying local clients only", "error", err.Error())
		r.hub.Notify(ctx, event)
	}
}
