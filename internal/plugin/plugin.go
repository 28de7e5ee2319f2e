// Package plugin implements the external plugin ABI of spec §6/§9: signer
// and event-handler capabilities are loaded from subprocess plugin binaries
// over hashicorp/go-plugin's net/rpc transport (see rpc.go) rather than the unsafe
// stdlib "plugin" package, per spec §9's redesign note.
package plugin

import (
	"context"
	"os/exec"

	goplugin "github.com/hashicorp/go-plugin"

	"github.com/solo-machine/soloend/internal/errs"
)

// Signer is the capability a signer plugin registers (spec §6 Plugin ABI).
type Signer interface {
	// ID names this signer capability, e.g. for logging which plugin
	// serviced a chain.
	ID() string
	Sign(ctx context.Context, chainID, keyAlgo string, signBytes []byte) ([]byte, error)
	PublicKey(ctx context.Context, chainID string) ([]byte, error)
}

// EventHandler is the capability an event-handler plugin registers.
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

// Event is the wire shape handed to EventHandler.Handle; concrete payloads
// live in package eventbus and are re-exported here to avoid a cycle.
type Event struct {
	Type    string
	ChainID string
	Payload map[string]interface{}
}

// Registry is the explicit, non-global registry built once at startup and
// passed to every component that needs it as a constructor argument,
// replacing the shared-library ABI's process-wide mutable singleton (spec §9).
type Registry struct {
	signers  map[string]Signer // keyed by chain_id -> signer capability
	handlers []EventHandler    // ordered, per spec §4.9
}

// NewRegistry returns an empty registry; BindSigner/RegisterHandler populate
// it at startup, with capabilities from LaunchSigner/LaunchHandler, before
// any chain operation runs.
func NewRegistry() *Registry {
	return &Registry{signers: make(map[string]Signer)}
}

// BindSigner associates a loaded Signer capability with chainID. A signer
// plugin may serve several chains; BindSigner is called once per chain_id
// the operator configures against that plugin.
func (r *Registry) BindSigner(chainID string, s Signer) {
	r.signers[chainID] = s
}

// SignerFor returns the signer bound to chainID, or ok=false, which the
// caller must map to SignerUnavailable.
func (r *Registry) SignerFor(chainID string) (Signer, bool) {
	s, ok := r.signers[chainID]
	return s, ok
}

// RegisterHandler appends an event handler to the ordered subscriber list.
func (r *Registry) RegisterHandler(h EventHandler) {
	r.handlers = append(r.handlers, h)
}

// Handlers returns the ordered subscriber list for the event bus to drive.
func (r *Registry) Handlers() []EventHandler {
	return r.handlers
}

// handshakeConfig is shared by every plugin kind, the way go-plugin host
// processes conventionally pin a magic cookie per ABI generation.
var handshakeConfig = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "SOLOEND_PLUGIN",
	MagicCookieValue: "solo-machine-endpoint",
}

// pluginMap names the two ABI entry points a plugin binary may implement,
// mirroring register_signer/register_handler from spec §6.
var pluginMap = map[string]goplugin.Plugin{
	"signer":  &signerPlugin{},
	"handler": &handlerPlugin{},
}

// Client is a running subprocess plugin, kept alive for process lifetime;
// unloading is not supported (spec §6).
type Client struct {
	rpc *goplugin.Client
}

// LaunchSigner spawns binaryPath as a subprocess and returns its Signer
// capability. Fails with SignerUnavailable if the plugin never serves one.
func LaunchSigner(binaryPath string) (*Client, Signer, error) {
	c := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: handshakeConfig,
		Plugins:         pluginMap,
		Cmd:             exec.Command(binaryPath), //nolint:gosec // operator-supplied plugin path, per spec's --signer flag
	})

	rpcClient, err := c.Client()
	if err != nil {
		c.Kill()
		return nil, nil, errs.ErrSignerUnavailable.Wrap(err.Error())
	}

	raw, err := rpcClient.Dispense("signer")
	if err != nil {
		c.Kill()
		return nil, nil, errs.ErrSignerUnavailable.Wrap(err.Error())
	}

	signer, ok := raw.(Signer)
	if !ok {
		c.Kill()
		return nil, nil, errs.ErrSignerUnavailable.Wrapf("plugin %q did not register a signer", binaryPath)
	}

	return &Client{rpc: c}, signer, nil
}

// LaunchHandler spawns binaryPath and returns its EventHandler capability.
func LaunchHandler(binaryPath string) (*Client, EventHandler, error) {
	c := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: handshakeConfig,
		Plugins:         pluginMap,
		Cmd:             exec.Command(binaryPath), //nolint:gosec // operator-supplied plugin path, per spec's --handler flag
	})

	rpcClient, err := c.Client()
	if err != nil {
		c.Kill()
		return nil, nil, errs.ErrHandler.Wrap(err.Error())
	}

	raw, err := rpcClient.Dispense("handler")
	if err != nil {
		c.Kill()
		return nil, nil, errs.ErrHandler.Wrap(err.Error())
	}

	handler, ok := raw.(EventHandler)
	if !ok {
		c.Kill()
		return nil, nil, errs.ErrHandler.Wrapf("plugin %q did not register a handler", binaryPath)
	}

	return &Client{rpc: c}, handler, nil
}

// Close tears down the subprocess. The host keeps the handle alive for
// process lifetime otherwise (spec §6); Close is only called on shutdown.
func (c *Client) Close() {
	c.rpc.Kill()
}
