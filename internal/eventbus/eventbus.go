// Package eventbus implements C9: typed event emission to in-process
// subscribers, synchronous and sequential in registration order.
package eventbus

import (
	"context"

	"cosmossdk.io/log"

	"github.com/solo-machine/soloend/internal/errs"
	"github.com/solo-machine/soloend/internal/plugin"
)

// Kind enumerates the event taxonomy of spec §4.9.
type Kind string

const (
	ChainAdded           Kind = "ChainAdded"
	ConnectionEstablished Kind = "ConnectionEstablished"
	TokensMinted         Kind = "TokensMinted"
	TokensBurned         Kind = "TokensBurned"
	SignerUpdated        Kind = "SignerUpdated"
	PacketTimedOut       Kind = "PacketTimedOut"
	Warning              Kind = "Warning"
	Error                Kind = "Error"
)

// Event is the structured payload handed to every subscriber.
type Event struct {
	Kind    Kind
	ChainID string
	Payload map[string]interface{}
}

// Bus holds the ordered subscriber list and delivers events synchronously.
type Bus struct {
	registry *plugin.Registry
	logger   log.Logger
}

// New builds a Bus over the registry's ordered handler list.
func New(registry *plugin.Registry, logger log.Logger) *Bus {
	return &Bus{registry: registry, logger: logger}
}

// Emit delivers evt to every registered handler in registration order. If a
// subscriber fails, subsequent subscribers for the same event are skipped
// and a HandlerError is returned to the caller; already-committed state is
// never rolled back (spec §4.9).
func (b *Bus) Emit(ctx context.Context, evt Event) error {
	pe := plugin.Event{Type: string(evt.Kind), ChainID: evt.ChainID, Payload: evt.Payload}
	for _, h := range b.registry.Handlers() {
		if err := h.Handle(ctx, pe); err != nil {
			b.logger.Error("event handler failed, skipping remaining subscribers for this event",
				"kind", evt.Kind, "chain_id", evt.ChainID, "err", err)
			return errs.ErrHandler.Wrap(err.Error())
		}
	}
	return nil
}
