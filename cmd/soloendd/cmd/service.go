package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solo-machine/soloend/internal/api"
	"github.com/solo-machine/soloend/internal/codec"
	"github.com/solo-machine/soloend/internal/eventbus"
	"github.com/solo-machine/soloend/internal/plugin"
	"github.com/solo-machine/soloend/internal/store"
	"github.com/solo-machine/soloend/internal/wiring"
)

// buildService opens the store, loads the configured signer/handler
// plugins into a Registry, and assembles the api.Service the ibc/chain
// subcommands dispatch into. chainID binds the loaded signer (if any) to
// the one chain this CLI invocation operates against. The returned closer
// tears down plugin subprocesses; callers must defer it.
func buildService(cmd *cobra.Command, v *viper.Viper, chainID string) (*api.Service, func(), error) {
	dbPath := v.GetString(flagDBPath)
	logger := loggerFromCmd(cmd)

	s, err := store.Open(store.BackendSQLite, dbPath, logger)
	if err != nil {
		return nil, nil, err
	}

	registry := plugin.NewRegistry()
	var closers []func()
	closer := func() {
		for _, c := range closers {
			c()
		}
	}

	if signerPath := v.GetString(flagSigner); signerPath != "" {
		client, signer, err := plugin.LaunchSigner(signerPath)
		if err != nil {
			return nil, closer, err
		}
		closers = append(closers, client.Close)
		registry.BindSigner(chainID, signer)
	}

	for _, handlerPath := range v.GetStringSlice(flagHandler) {
		client, handler, err := plugin.LaunchHandler(handlerPath)
		if err != nil {
			closer()
			return nil, closer, err
		}
		closers = append(closers, client.Close)
		registry.RegisterHandler(handler)
	}

	bus := eventbus.New(registry, logger)
	cdc := codec.New()
	engines := wiring.New(s, registry, bus, cdc)
	svc := api.New(s, engines)
	return svc, closer, nil
}
