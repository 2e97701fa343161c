package layer2

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-errors/errors"
	log "github.com/sirupsen/logrus"
)

// vaultRegistryABI is the minimal surface of the vault registry contract the
// depositor reads and writes.
const vaultRegistryABI = `[
  {"type":"function","name":"vaultStatus","stateMutability":"view","inputs":[{"name":"peginTxid","type":"bytes32"}],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"isInUse","stateMutability":"view","inputs":[{"name":"peginTxid","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"isDeposited","stateMutability":"view","inputs":[{"name":"peginTxid","type":"bytes32"},{"name":"txOut","type":"uint32"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"registerPegin","stateMutability":"nonpayable","inputs":[{"name":"peginTxid","type":"bytes32"},{"name":"amount","type":"uint64"},{"name":"depositorPubkey","type":"bytes32"}],"outputs":[]}
]`

const callTimeout = 15 * time.Second

// ErrTxNotFound marks a probe for a transaction the chain does not know yet.
var ErrTxNotFound = errors.New("transaction not found")

// TimeoutError reports that receipt polling gave up. It keeps the transaction
// hash so the operator can verify on a block explorer instead of assuming
// failure.
type TimeoutError struct {
	TxHash  common.Hash
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v waiting for receipt of tx %s, verify manually on a block explorer", e.Timeout, e.TxHash.Hex())
}

// Client wraps the Ethereum RPC connection and the vault registry contract.
type Client struct {
	eth          *ethclient.Client
	registry     *bind.BoundContract
	registryAddr common.Address
}

func NewClient(rpcURL string, registryAddress string) (*Client, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ethereum rpc: %w", err)
	}
	return newClientWithBackend(eth, registryAddress)
}

func newClientWithBackend(eth *ethclient.Client, registryAddress string) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(vaultRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse vault registry abi: %w", err)
	}
	addr := common.HexToAddress(registryAddress)
	return &Client{
		eth:          eth,
		registry:     bind.NewBoundContract(addr, parsed, eth, eth, eth),
		registryAddr: addr,
	}, nil
}

// Receipt returns the receipt of txHash, or ErrTxNotFound while the chain
// has not mined it yet.
func (c *Client) Receipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, txHash)
	if err != nil {
		if stderrors.Is(err, ethereum.NotFound) {
			return nil, ErrTxNotFound
		}
		return nil, err
	}
	return receipt, nil
}

// WaitForReceipt polls for the receipt of txHash until it lands or the
// timeout elapses. A timeout yields *TimeoutError carrying the hash.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash, timeout time.Duration) (*ethtypes.Receipt, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.Receipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		log.Debugf("Receipt for %s not available yet: %v", txHash.Hex(), err)

		if time.Now().After(deadline) {
			return nil, &TimeoutError{TxHash: txHash, Timeout: timeout}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
