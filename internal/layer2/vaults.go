package layer2

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/tbv-labs/vault-depositor/internal/pegin"
)

// contract status codes as stored on chain
var contractStatusByCode = map[uint8]pegin.ContractStatus{
	0: pegin.ContractPending,
	1: pegin.ContractVerified,
	2: pegin.ContractActive,
	3: pegin.ContractRedeemed,
	4: pegin.ContractLiquidated,
	5: pegin.ContractInvalid,
	6: pegin.ContractDepositorWithdrawn,
}

// VaultStatus reads the authoritative contract status of one vault. Unmapped
// codes come back as an empty status; the state machine renders those as
// Unknown rather than failing.
func (c *Client) VaultStatus(peginTxid common.Hash) (pegin.ContractStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	opts := &bind.CallOpts{Context: ctx}
	var out []interface{}
	if err := c.registry.Call(opts, &out, "vaultStatus", peginTxid); err != nil {
		return "", fmt.Errorf("failed to read vault status: %w", err)
	}
	code := *abi.ConvertType(out[0], new(uint8)).(*uint8)
	return contractStatusByCode[code], nil
}

// IsInUse reports whether the vault currently backs an open borrow position.
func (c *Client) IsInUse(peginTxid common.Hash) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	opts := &bind.CallOpts{Context: ctx}
	var out []interface{}
	if err := c.registry.Call(opts, &out, "isInUse", peginTxid); err != nil {
		return false, fmt.Errorf("failed to read vault usage: %w", err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// IsDeposited probes whether a peg-in output is registered. Not-found is a
// first-class false result, not an error.
func (c *Client) IsDeposited(peginTxid common.Hash, txOut uint32) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	opts := &bind.CallOpts{Context: ctx}
	var out []interface{}
	if err := c.registry.Call(opts, &out, "isDeposited", peginTxid, txOut); err != nil {
		return false, fmt.Errorf("failed to probe deposit: %w", err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// RegisterPegin submits the Ethereum-side registration transaction for a
// peg-in and returns its hash without waiting for inclusion.
func (c *Client) RegisterPegin(opts *bind.TransactOpts, peginTxid common.Hash, amount uint64, depositorPubkey [32]byte) (common.Hash, error) {
	tx, err := c.registry.Transact(opts, "registerPegin", peginTxid, amount, depositorPubkey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to submit pegin registration: %w", err)
	}
	return tx.Hash(), nil
}

// WaitForRegistration waits for the registration receipt and checks it
// succeeded.
func (c *Client) WaitForRegistration(ctx context.Context, txHash common.Hash, timeout time.Duration) error {
	receipt, err := c.WaitForReceipt(ctx, txHash, timeout)
	if err != nil {
		return err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("pegin registration tx %s reverted", txHash.Hex())
	}
	return nil
}
