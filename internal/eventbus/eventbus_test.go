package eventbus_test

import (
	"context"
	"errors"
	"testing"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/require"

	"github.com/solo-machine/soloend/internal/eventbus"
	"github.com/solo-machine/soloend/internal/plugin"
)

type recordingHandler struct {
	seen []plugin.Event
	fail bool
}

func (h *recordingHandler) Handle(_ context.Context, evt plugin.Event) error {
	h.seen = append(h.seen, evt)
	if h.fail {
		return errors.New("boom")
	}
	return nil
}

func TestEmitDeliversInRegistrationOrder(t *testing.T) {
	registry := plugin.NewRegistry()
	first := &recordingHandler{}
	second := &recordingHandler{}
	registry.RegisterHandler(first)
	registry.RegisterHandler(second)

	bus := eventbus.New(registry, log.NewNopLogger())
	require.NoError(t, bus.Emit(context.Background(), eventbus.Event{
		Kind: eventbus.TokensMinted, ChainID: "chain-a",
	}))

	require.Len(t, first.seen, 1)
	require.Len(t, second.seen, 1)
	require.Equal(t, "chain-a", first.seen[0].ChainID)
}

func TestEmitStopsAtFirstFailingHandler(t *testing.T) {
	registry := plugin.NewRegistry()
	failing := &recordingHandler{fail: true}
	never := &recordingHandler{}
	registry.RegisterHandler(failing)
	registry.RegisterHandler(never)

	bus := eventbus.New(registry, log.NewNopLogger())
	err := bus.Emit(context.Background(), eventbus.Event{Kind: eventbus.Warning})

	require.Error(t, err)
	require.Len(t, failing.seen, 1)
	require.Empty(t, never.seen)
}
