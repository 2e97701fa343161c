package signer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	log "github.com/sirupsen/logrus"
)

// LocalSigner signs with an in-process private key. Used by tests and dev
// deployments; production signing happens in the connected wallet.
type LocalSigner struct {
	privKey *btcec.PrivateKey
}

func NewLocalSigner(privKeyHex string) (*LocalSigner, error) {
	raw, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	privKey, _ := btcec.PrivKeyFromBytes(raw)
	return &LocalSigner{privKey: privKey}, nil
}

func NewLocalSignerFromKey(privKey *btcec.PrivateKey) *LocalSigner {
	return &LocalSigner{privKey: privKey}
}

var _ Signer = (*LocalSigner)(nil)

func (s *LocalSigner) GetPublicKey() ([]byte, error) {
	return schnorr.SerializePubKey(s.privKey.PubKey()), nil
}

// SignPsbt signs every Taproot key-spend input that carries a witness utxo.
// A fully signed packet is finalized and returned as raw transaction hex
// ready to broadcast; one still owing signatures comes back as PSBT hex.
func (s *LocalSigner) SignPsbt(psbtHex string, opts *SignPsbtOptions) (string, error) {
	raw, err := hex.DecodeString(psbtHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode psbt hex: %w", err)
	}
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		return "", fmt.Errorf("failed to parse psbt: %w", err)
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, input := range packet.Inputs {
		if input.WitnessUtxo != nil {
			fetcher.AddPrevOut(packet.UnsignedTx.TxIn[i].PreviousOutPoint, input.WitnessUtxo)
		}
	}
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)

	wanted := map[int]bool{}
	if opts != nil {
		for _, idx := range opts.InputIndexes {
			wanted[idx] = true
		}
	}

	signed := 0
	for i := range packet.Inputs {
		if len(wanted) > 0 && !wanted[i] {
			continue
		}
		witnessUtxo := packet.Inputs[i].WitnessUtxo
		if witnessUtxo == nil {
			continue
		}
		sig, err := txscript.RawTxInTaprootSignature(
			packet.UnsignedTx, sigHashes, i,
			witnessUtxo.Value, witnessUtxo.PkScript,
			nil, txscript.SigHashDefault, s.privKey,
		)
		if err != nil {
			return "", fmt.Errorf("failed to sign input %d: %w", i, err)
		}
		packet.Inputs[i].TaprootKeySpendSig = sig
		signed++
	}
	log.Debugf("Locally signed %d of %d psbt inputs", signed, len(packet.Inputs))

	if err := psbt.MaybeFinalizeAll(packet); err != nil {
		// other parties still owe signatures, return the partially signed packet
		log.Debugf("Psbt not finalizable yet: %v", err)
		var buf bytes.Buffer
		if err := packet.Serialize(&buf); err != nil {
			return "", fmt.Errorf("failed to serialize psbt: %w", err)
		}
		return hex.EncodeToString(buf.Bytes()), nil
	}

	finalTx, err := psbt.Extract(packet)
	if err != nil {
		return "", fmt.Errorf("failed to extract final transaction: %w", err)
	}
	var buf bytes.Buffer
	if err := finalTx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize final transaction: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func (s *LocalSigner) SignMessage(msg []byte, scheme string) ([]byte, error) {
	digest := sha256.Sum256(msg)
	switch scheme {
	case SchemeSchnorr:
		sig, err := schnorr.Sign(s.privKey, digest[:])
		if err != nil {
			return nil, err
		}
		return sig.Serialize(), nil
	case SchemeECDSA:
		sig := ecdsa.Sign(s.privKey, digest[:])
		return sig.Serialize(), nil
	default:
		return nil, &ErrUnknownScheme{Scheme: scheme}
	}
}
