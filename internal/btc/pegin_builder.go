package btc

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/tbv-labs/vault-depositor/internal/deposit"
	"github.com/tbv-labs/vault-depositor/internal/plan"
	"github.com/tbv-labs/vault-depositor/internal/state"
	"github.com/tbv-labs/vault-depositor/internal/types"
)

// PeginTxBuilder builds the unsigned vault-funding transaction for one
// allocation: the vault output pays a Taproot address committing to the
// depositor, provider, keeper and challenger keys.
type PeginTxBuilder struct {
	net *chaincfg.Params
}

func NewPeginTxBuilder(net *chaincfg.Params) *PeginTxBuilder {
	return &PeginTxBuilder{net: net}
}

var _ deposit.TransactionBuilder = (*PeginTxBuilder)(nil)

// BuildPeginPsbt assembles the funding transaction for one vault and returns
// it as a PSBT with witness utxos attached, ready for the wallet to sign.
func (b *PeginTxBuilder) BuildPeginPsbt(alloc plan.VaultAllocation, splitTx *plan.SplitTransaction, params *state.MarketParams, depositorPubkey []byte, changeAddress string, feeRate uint64) (*deposit.PeginTx, error) {
	vaultScript, err := vaultOutputScript(depositorPubkey, params)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	var prevOuts []*wire.TxOut

	switch alloc.Kind {
	case plan.FundingSplit:
		if splitTx == nil {
			return nil, fmt.Errorf("split allocation for vault %d without a split transaction", alloc.VaultIndex)
		}
		if alloc.SplitOutputIndex < 0 || alloc.SplitOutputIndex >= len(splitTx.Outputs) {
			return nil, fmt.Errorf("split output index %d out of range (%d outputs)", alloc.SplitOutputIndex, len(splitTx.Outputs))
		}
		out := splitTx.Outputs[alloc.SplitOutputIndex]
		if out.Amount < alloc.Amount {
			return nil, fmt.Errorf("split output %d sat below vault amount %d sat", out.Amount, alloc.Amount)
		}
		hash, err := chainhash.NewHashFromStr(splitTx.Txid)
		if err != nil {
			return nil, fmt.Errorf("invalid split txid %s: %w", splitTx.Txid, err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, out.Vout), nil, nil))

		script, err := payToAddressScript(out.Address, b.net)
		if err != nil {
			return nil, err
		}
		prevOuts = append(prevOuts, wire.NewTxOut(int64(out.Amount), script))

		// the split output was sized as amount plus this transaction's fee,
		// the difference is consumed as fee with no change output
		tx.AddTxOut(wire.NewTxOut(int64(alloc.Amount), vaultScript))

	case plan.FundingDirect:
		if len(alloc.Utxos) == 0 {
			return nil, fmt.Errorf("direct allocation for vault %d without utxos", alloc.VaultIndex)
		}
		for _, utxo := range alloc.Utxos {
			if len(utxo.PkScript) == 0 {
				return nil, fmt.Errorf("utxo %s has no pkScript", utxo.Key())
			}
			hash, err := chainhash.NewHashFromStr(utxo.Txid)
			if err != nil {
				return nil, fmt.Errorf("invalid utxo txid %s: %w", utxo.Txid, err)
			}
			tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, utxo.Vout), nil, nil))
			prevOuts = append(prevOuts, wire.NewTxOut(int64(utxo.Value), utxo.PkScript))
		}

		totalIn := types.SumValue(alloc.Utxos)
		fee := types.EstimateFee(len(alloc.Utxos), 2, feeRate)
		if totalIn < alloc.Amount+fee {
			return nil, fmt.Errorf("allocated inputs total %d sat below vault amount %d sat plus fee %d sat", totalIn, alloc.Amount, fee)
		}
		tx.AddTxOut(wire.NewTxOut(int64(alloc.Amount), vaultScript))

		change := totalIn - alloc.Amount - fee
		if change > types.GetDustAmount(feeRate) {
			changeScript, err := payToAddressScript(changeAddress, b.net)
			if err != nil {
				return nil, err
			}
			tx.AddTxOut(wire.NewTxOut(int64(change), changeScript))
		}

	default:
		return nil, fmt.Errorf("unknown funding kind %q", alloc.Kind)
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to build psbt: %w", err)
	}
	for i := range packet.Inputs {
		packet.Inputs[i].WitnessUtxo = prevOuts[i]
		packet.Inputs[i].SighashType = txscript.SigHashDefault
	}

	var psbtBuf bytes.Buffer
	if err := packet.Serialize(&psbtBuf); err != nil {
		return nil, fmt.Errorf("failed to serialize psbt: %w", err)
	}
	raw, err := types.SerializeTransaction(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize pegin transaction: %w", err)
	}

	return &deposit.PeginTx{
		Txid:     tx.TxHash().String(),
		PsbtHex:  hex.EncodeToString(psbtBuf.Bytes()),
		RawTxHex: hex.EncodeToString(raw),
	}, nil
}

// vaultOutputScript derives the vault's Taproot output script. The depositor
// key is the internal key; the script tree commits to a cooperative leaf
// (keepers then provider) and, when challengers exist, a challenge leaf.
func vaultOutputScript(depositorPubkey []byte, params *state.MarketParams) ([]byte, error) {
	internalKey, err := schnorr.ParsePubKey(depositorPubkey)
	if err != nil {
		return nil, fmt.Errorf("invalid depositor pubkey: %w", err)
	}

	cooperative, err := checksigChainScript(append(params.VaultKeeperPubkeys, params.VaultProviderPubkey))
	if err != nil {
		return nil, fmt.Errorf("cooperative leaf: %w", err)
	}
	leaves := []txscript.TapLeaf{txscript.NewBaseTapLeaf(cooperative)}

	if len(params.UniversalChallengerPubkeys) > 0 {
		challenge, err := checksigChainScript(params.UniversalChallengerPubkeys)
		if err != nil {
			return nil, fmt.Errorf("challenge leaf: %w", err)
		}
		leaves = append(leaves, txscript.NewBaseTapLeaf(challenge))
	}

	tree := txscript.AssembleTaprootScriptTree(leaves...)
	root := tree.RootNode.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(internalKey, root[:])
	return txscript.PayToTaprootScript(outputKey)
}

// checksigChainScript requires a signature from every listed x-only key.
func checksigChainScript(pubkeyHexes []string) ([]byte, error) {
	if len(pubkeyHexes) == 0 {
		return nil, fmt.Errorf("no pubkeys")
	}
	builder := txscript.NewScriptBuilder()
	for i, keyHex := range pubkeyHexes {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("pubkey %d is not a 32-byte x-only key", i)
		}
		builder.AddData(key)
		if i < len(pubkeyHexes)-1 {
			builder.AddOp(txscript.OP_CHECKSIGVERIFY)
		} else {
			builder.AddOp(txscript.OP_CHECKSIG)
		}
	}
	return builder.Script()
}
