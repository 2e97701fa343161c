package signer

import (
	"fmt"
)

// SignPsbtOptions narrows what a signer may touch in a PSBT.
type SignPsbtOptions struct {
	// InputIndexes limits signing to the given inputs; nil signs everything
	// the signer can.
	InputIndexes []int
}

// Signer is the wallet boundary. The production implementation lives in the
// connected wallet; LocalSigner backs tests and dev mode.
type Signer interface {
	// GetPublicKey returns the depositor's x-only public key.
	GetPublicKey() ([]byte, error)
	// SignPsbt signs the depositor-owned inputs of a PSBT. When the packet is
	// complete it is finalized and returned as broadcastable raw transaction
	// hex; otherwise the partially signed PSBT hex comes back.
	SignPsbt(psbtHex string, opts *SignPsbtOptions) (string, error)
	// SignMessage signs an arbitrary message under the named scheme.
	SignMessage(msg []byte, scheme string) ([]byte, error)
}

// Signature schemes accepted by SignMessage.
const (
	SchemeECDSA   = "ecdsa"
	SchemeSchnorr = "schnorr"
)

// ErrUnknownScheme reports an unsupported message-signature scheme.
type ErrUnknownScheme struct {
	Scheme string
}

func (e *ErrUnknownScheme) Error() string {
	return fmt.Sprintf("unknown signature scheme %q", e.Scheme)
}
