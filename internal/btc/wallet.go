package btc

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/tbv-labs/vault-depositor/internal/types"
	log "github.com/sirupsen/logrus"
)

// UtxoLister reports the wallet's confirmed spendable outputs.
type UtxoLister interface {
	ListSpendable() ([]types.Utxo, error)
}

// RPCUtxoLister lists spendable outputs through the node wallet.
type RPCUtxoLister struct {
	btcClient *rpcclient.Client
	minConf   int
}

func NewRPCUtxoLister(btcClient *rpcclient.Client, minConf int) *RPCUtxoLister {
	if minConf < 1 {
		minConf = 1
	}
	return &RPCUtxoLister{btcClient: btcClient, minConf: minConf}
}

var _ UtxoLister = (*RPCUtxoLister)(nil)

func (l *RPCUtxoLister) ListSpendable() ([]types.Utxo, error) {
	unspent, err := l.btcClient.ListUnspentMin(l.minConf)
	if err != nil {
		return nil, fmt.Errorf("failed to list unspent outputs: %w", err)
	}

	utxos := make([]types.Utxo, 0, len(unspent))
	for _, u := range unspent {
		if !u.Spendable {
			continue
		}
		amount, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			log.Warnf("Skipping utxo %s:%d with unparseable amount %f", u.TxID, u.Vout, u.Amount)
			continue
		}
		pkScript, err := hex.DecodeString(u.ScriptPubKey)
		if err != nil {
			log.Warnf("Skipping utxo %s:%d with bad scriptPubKey", u.TxID, u.Vout)
			continue
		}
		utxos = append(utxos, types.Utxo{
			UtxoRef:  types.UtxoRef{Txid: u.TxID, Vout: u.Vout},
			Value:    uint64(amount),
			PkScript: pkScript,
		})
	}
	return utxos, nil
}
