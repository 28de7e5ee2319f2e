package plugin

import (
	"context"
	"net/rpc"

	goplugin "github.com/hashicorp/go-plugin"
)

// signerPlugin is the go-plugin net/rpc Plugin implementation for the
// Signer capability. go-plugin's net/rpc transport (rather than its gRPC
// one) keeps the ABI to plain gob-encodable request/response structs,
// which is all spec §6's Signer/EventHandler interfaces need.
type signerPlugin struct {
	Impl Signer // set on the plugin binary's side only
}

func (p *signerPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &signerRPCServer{impl: p.Impl}, nil
}

func (p *signerPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &signerRPCClient{client: c}, nil
}

// handlerPlugin is the analogous Plugin implementation for EventHandler.
type handlerPlugin struct {
	Impl EventHandler
}

func (p *handlerPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &handlerRPCServer{impl: p.Impl}, nil
}

func (p *handlerPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &handlerRPCClient{client: c}, nil
}

// --- Signer over net/rpc ---

type signBytesArgs struct {
	ChainID   string
	KeyAlgo   string
	SignBytes []byte
}

type publicKeyArgs struct {
	ChainID string
}

// signerRPCClient is the Signer implementation dispensed to the host.
type signerRPCClient struct{ client *rpc.Client }

func (s *signerRPCClient) ID() string { return "remote-signer" }

func (s *signerRPCClient) Sign(_ context.Context, chainID, keyAlgo string, signBytes []byte) ([]byte, error) {
	var resp []byte
	err := s.client.Call("Plugin.Sign", &signBytesArgs{ChainID: chainID, KeyAlgo: keyAlgo, SignBytes: signBytes}, &resp)
	return resp, err
}

func (s *signerRPCClient) PublicKey(_ context.Context, chainID string) ([]byte, error) {
	var resp []byte
	err := s.client.Call("Plugin.PublicKey", &publicKeyArgs{ChainID: chainID}, &resp)
	return resp, err
}

// signerRPCServer runs inside the plugin binary, dispatching to Impl.
type signerRPCServer struct{ impl Signer }

func (s *signerRPCServer) Sign(args *signBytesArgs, resp *[]byte) error {
	sig, err := s.impl.Sign(context.Background(), args.ChainID, args.KeyAlgo, args.SignBytes)
	if err != nil {
		return err
	}
	*resp = sig
	return nil
}

func (s *signerRPCServer) PublicKey(args *publicKeyArgs, resp *[]byte) error {
	pk, err := s.impl.PublicKey(context.Background(), args.ChainID)
	if err != nil {
		return err
	}
	*resp = pk
	return nil
}

// --- EventHandler over net/rpc ---

type handlerRPCClient struct{ client *rpc.Client }

func (h *handlerRPCClient) Handle(_ context.Context, event Event) error {
	var unused struct{}
	return h.client.Call("Plugin.Handle", &event, &unused)
}

type handlerRPCServer struct{ impl EventHandler }

func (h *handlerRPCServer) Handle(event *Event, _ *struct{}) error {
	return h.impl.Handle(context.Background(), *event)
}
