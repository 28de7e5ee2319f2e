// Package errs defines the stable, machine-readable error taxonomy shared by
// every component of the solo-machine endpoint.
package errs

import (
	cosmoserrors "cosmossdk.io/errors"
)

// codespace namespaces every registered error below so codes stay stable
// across releases even as new ones are appended.
const codespace = "soloend"

var (
	// Input errors: surfaced to the caller with the offending field.
	ErrInvalidArgument = cosmoserrors.Register(codespace, 1, "invalid argument")
	ErrUnknownChain    = cosmoserrors.Register(codespace, 2, "unknown chain")
	ErrDuplicateChain  = cosmoserrors.Register(codespace, 3, "duplicate chain")

	// Crypto errors: fatal for the current operation, no state change.
	ErrBadSignature     = cosmoserrors.Register(codespace, 10, "bad signature")
	ErrBadPublicKey     = cosmoserrors.Register(codespace, 11, "bad public key")
	ErrSignerUnavailable = cosmoserrors.Register(codespace, 12, "signer unavailable")

	// Light-client errors: fatal, trusted state remains at last good height.
	ErrInsufficientVotingPower = cosmoserrors.Register(codespace, 20, "insufficient voting power")
	ErrOutsideTrustingPeriod   = cosmoserrors.Register(codespace, 21, "outside trusting period")
	ErrClockDrift              = cosmoserrors.Register(codespace, 22, "clock drift exceeded")
	ErrBadChainID              = cosmoserrors.Register(codespace, 23, "unexpected chain id")
	ErrHashMismatch            = cosmoserrors.Register(codespace, 24, "hash mismatch")

	// Chain errors: see retry policy in the transaction broadcaster.
	ErrChainRPC      = cosmoserrors.Register(codespace, 30, "chain rpc error")
	ErrDeliverTxFail = cosmoserrors.Register(codespace, 31, "deliver tx failed")
	ErrTxTimedOut    = cosmoserrors.Register(codespace, 32, "tx timed out")

	// Storage errors: transaction aborts, caller may retry.
	ErrStorage  = cosmoserrors.Register(codespace, 40, "storage error")
	ErrConflict = cosmoserrors.Register(codespace, 41, "conflict")

	// Plugin errors: event-bus policy decides what happens next.
	ErrHandler = cosmoserrors.Register(codespace, 50, "handler error")

	// Protocol errors: fatal, state machine remains at last committed phase.
	ErrHandshakeOutOfOrder = cosmoserrors.Register(codespace, 60, "handshake out of order")
	ErrSequenceMismatch    = cosmoserrors.Register(codespace, 61, "sequence mismatch")
	ErrPacketNotFound      = cosmoserrors.Register(codespace, 62, "packet not found")
)

// DeliverTxFailed wraps a chain-reported ABCI failure with its code and log,
// matching spec's DeliverTxFailed{code, log} variant.
type DeliverTxFailed struct {
	Code uint32
	Log  string
}

func (e *DeliverTxFailed) Error() string {
	return cosmoserrors.Wrapf(ErrDeliverTxFail, "code %d: %s", e.Code, e.Log).Error()
}

func (e *DeliverTxFailed) Unwrap() error {
	return ErrDeliverTxFail
}

// LightClientError carries the specific light-client sub-reason alongside
// the generic registered error so callers can switch on it.
type LightClientError struct {
	Reason error
}

func (e *LightClientError) Error() string {
	return e.Reason.Error()
}

func (e *LightClientError) Unwrap() error {
	return e.Reason
}
