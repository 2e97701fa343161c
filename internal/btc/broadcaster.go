package btc

import (
	"fmt"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/tbv-labs/vault-depositor/internal/types"
	log "github.com/sirupsen/logrus"
)

// Broadcaster pushes signed raw transactions to the Bitcoin network.
type Broadcaster interface {
	PushTx(signedTxHex string) (string, error)
}

// RPCBroadcaster broadcasts through a bitcoind/btcd RPC connection.
type RPCBroadcaster struct {
	btcClient *rpcclient.Client
}

func NewRPCBroadcaster(btcClient *rpcclient.Client) *RPCBroadcaster {
	return &RPCBroadcaster{btcClient: btcClient}
}

var _ Broadcaster = (*RPCBroadcaster)(nil)

// PushTx submits a signed transaction and returns its txid. Broadcast is
// irreversible; callers must not treat a later failure as a rollback.
func (b *RPCBroadcaster) PushTx(signedTxHex string) (string, error) {
	tx, err := types.DecodeRawTransaction(signedTxHex)
	if err != nil {
		return "", fmt.Errorf("cannot decode signed transaction: %w", err)
	}
	hash, err := b.btcClient.SendRawTransaction(tx, false)
	if err != nil {
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	log.Infof("Broadcasted bitcoin transaction %s", hash.String())
	return hash.String(), nil
}
