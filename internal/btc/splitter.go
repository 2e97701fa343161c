package btc

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/tbv-labs/vault-depositor/internal/plan"
	"github.com/tbv-labs/vault-depositor/internal/types"
)

// SplitTxBuilder constructs the split transaction that divides one UTXO
// selection into per-vault outputs plus change.
type SplitTxBuilder struct {
	net *chaincfg.Params
}

func NewSplitTxBuilder(net *chaincfg.Params) *SplitTxBuilder {
	return &SplitTxBuilder{net: net}
}

var _ plan.SplitTxBuilder = (*SplitTxBuilder)(nil)

// BuildSplitTx builds an unsigned split transaction: one output per vault
// amount paying destAddress, plus a change output back to changeAddress when
// the remainder clears the dust threshold.
func (b *SplitTxBuilder) BuildSplitTx(inputs []types.Utxo, vaultAmounts []uint64, destAddress, changeAddress string, feeRate uint64) (*plan.SplitTransaction, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs for split transaction")
	}
	if len(vaultAmounts) == 0 {
		return nil, fmt.Errorf("no vault amounts for split transaction")
	}

	tx := wire.NewMsgTx(wire.TxVersion)

	totalIn := types.SumValue(inputs)
	for _, input := range inputs {
		hash, err := chainhash.NewHashFromStr(input.Txid)
		if err != nil {
			return nil, fmt.Errorf("invalid input txid %s: %w", input.Txid, err)
		}
		outPoint := wire.NewOutPoint(hash, input.Vout)
		tx.AddTxIn(wire.NewTxIn(outPoint, nil, nil))
	}

	destScript, err := payToAddressScript(destAddress, b.net)
	if err != nil {
		return nil, err
	}

	// each output carries the follow-up pegin fee on top of the vault amount,
	// so spending it covers the vault output and its own fee exactly
	peginFee := types.EstimateFee(1, 2, feeRate)

	var amountTotal uint64
	outputs := make([]plan.SplitOutput, 0, len(vaultAmounts)+1)
	for i, amount := range vaultAmounts {
		outValue := amount + peginFee
		amountTotal += outValue
		tx.AddTxOut(wire.NewTxOut(int64(outValue), destScript))
		outputs = append(outputs, plan.SplitOutput{
			Amount:  outValue,
			Address: destAddress,
			Vout:    uint32(i),
		})
	}

	fee := types.EstimateFee(len(inputs), len(vaultAmounts)+1, feeRate)
	if totalIn < amountTotal+fee {
		return nil, fmt.Errorf("split inputs total %d sat below outputs %d sat plus fee %d sat", totalIn, amountTotal, fee)
	}

	change := totalIn - amountTotal - fee
	if change > types.GetDustAmount(feeRate) {
		changeScript, err := payToAddressScript(changeAddress, b.net)
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(wire.NewTxOut(int64(change), changeScript))
		outputs = append(outputs, plan.SplitOutput{
			Amount:  change,
			Address: changeAddress,
			Vout:    uint32(len(vaultAmounts)),
		})
	}
	// sub-dust change is swallowed by the fee

	raw, err := types.SerializeTransaction(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize split transaction: %w", err)
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to build split psbt: %w", err)
	}
	for i, input := range inputs {
		if len(input.PkScript) == 0 {
			return nil, fmt.Errorf("split input %s has no pkScript", input.Key())
		}
		packet.Inputs[i].WitnessUtxo = wire.NewTxOut(int64(input.Value), input.PkScript)
		packet.Inputs[i].SighashType = txscript.SigHashDefault
	}
	var psbtBuf bytes.Buffer
	if err := packet.Serialize(&psbtBuf); err != nil {
		return nil, fmt.Errorf("failed to serialize split psbt: %w", err)
	}

	return &plan.SplitTransaction{
		Inputs:  inputs,
		Outputs: outputs,
		TxHex:   hex.EncodeToString(raw),
		PsbtHex: hex.EncodeToString(psbtBuf.Bytes()),
		Txid:    tx.TxHash().String(),
	}, nil
}

func payToAddressScript(address string, net *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, net)
	if err != nil {
		return nil, fmt.Errorf("invalid address %s: %w", address, err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("cannot build script for %s: %w", address, err)
	}
	return script, nil
}
