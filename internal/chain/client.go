package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cuongbtq/chain-job-service/internal/metrics"
)

const (
	defaultPollInterval = 2 * time.Second
	transferGasLimit    = 21000
)

// Config holds chain client configuration
type Config struct {
	RPCURL              string
	ChainID             int64
	ReceiptPollInterval time.Duration
	AdminPrivateKey     string
	FaucetPrivateKey    string
}

// Client wraps the JSON-RPC provider together with the long-lived admin and
// faucet signers. It is safe for concurrent use.
type Client struct {
	rpc          *ethclient.Client
	chainID      *big.Int
	admin        Signer
	faucet       Signer
	pollInterval time.Duration
	logger       *slog.Logger
}

// Dial connects to the node and checks it serves the configured chain
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	admin, err := ParseSigner(cfg.AdminPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("admin signer: %w", err)
	}

	faucet, err := ParseSigner(cfg.FaucetPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("faucet signer: %w", err)
	}

	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}

	remoteID, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}

	if remoteID.Cmp(big.NewInt(cfg.ChainID)) != 0 {
		rpc.Close()
		return nil, fmt.Errorf("chain id mismatch: configured %d, node reports %s", cfg.ChainID, remoteID)
	}

	pollInterval := cfg.ReceiptPollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	logger.Info("Connected to chain",
		slog.Int64("chain_id", cfg.ChainID),
		slog.Any("admin", admin),
		slog.Any("faucet", faucet),
	)

	return &Client{
		rpc:          rpc,
		chainID:      remoteID,
		admin:        admin,
		faucet:       faucet,
		pollInterval: pollInterval,
		logger:       logger,
	}, nil
}

// Provider exposes the underlying JSON-RPC client
func (c *Client) Provider() *ethclient.Client {
	return c.rpc
}

// ChainID returns the chain id verified at dial time
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// AdminSigner returns the platform admin wallet
func (c *Client) AdminSigner() Signer {
	return c.admin
}

// FaucetSigner returns the wallet that funds user wallets
func (c *Client) FaucetSigner() Signer {
	return c.faucet
}

// GetContract binds name at address. A zero signer yields a read-only handle.
func (c *Client) GetContract(name ContractName, address common.Address, signer Signer) (Contract, error) {
	return newBoundContract(name, address, c.rpc, signer, c.chainID)
}

// PendingNonceAt returns the next nonce for address including pending transactions
func (c *Client) PendingNonceAt(ctx context.Context, address common.Address) (uint64, error) {
	nonce, err := c.rpc.PendingNonceAt(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("failed to read pending nonce of %s: %w", address.Hex(), err)
	}
	return nonce, nil
}

// BalanceAt returns the latest native balance of address
func (c *Client) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	return c.rpc.BalanceAt(ctx, address, nil)
}

// Transfer sends amount wei of native currency from the signer at the given nonce
func (c *Client) Transfer(ctx context.Context, from Signer, to common.Address, amount *big.Int, nonce uint64) (*types.Transaction, error) {
	if from.IsZero() {
		return nil, ErrReadOnlyContract
	}

	txData, err := c.transferTx(ctx, to, amount, nonce)
	if err != nil {
		metrics.TransactionSubmitted("native", "transfer", "error")
		return nil, err
	}

	signed, err := types.SignNewTx(from.key, types.LatestSignerForChainID(c.chainID), txData)
	if err != nil {
		metrics.TransactionSubmitted("native", "transfer", "error")
		return nil, fmt.Errorf("failed to sign transfer: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		metrics.TransactionSubmitted("native", "transfer", "error")
		return nil, fmt.Errorf("failed to send transfer to %s: %w", to.Hex(), err)
	}

	metrics.TransactionSubmitted("native", "transfer", "sent")
	return signed, nil
}

// transferTx prices a plain value transfer, preferring dynamic fees when the
// chain reports a base fee
func (c *Client) transferTx(ctx context.Context, to common.Address, amount *big.Int, nonce uint64) (types.TxData, error) {
	head, err := c.rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest header: %w", err)
	}

	if head.BaseFee == nil {
		gasPrice, err := c.rpc.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to suggest gas price: %w", err)
		}
		return &types.LegacyTx{
			Nonce:    nonce,
			To:       &to,
			Value:    amount,
			Gas:      transferGasLimit,
			GasPrice: gasPrice,
		}, nil
	}

	tip, err := c.rpc.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas tip: %w", err)
	}

	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	return &types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		To:        &to,
		Value:     amount,
		Gas:       transferGasLimit,
		GasTipCap: tip,
		GasFeeCap: feeCap,
	}, nil
}

// WaitMined polls until tx has a receipt. A reverted transaction is
// returned as *RevertedError together with its receipt.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	started := time.Now()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, tx.Hash())
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				metrics.ReceiptWaited("reverted", time.Since(started))
				return receipt, &RevertedError{TxHash: tx.Hash(), BlockNumber: receipt.BlockNumber.Uint64()}
			}
			metrics.ReceiptWaited("success", time.Since(started))
			return receipt, nil
		}

		if !errors.Is(err, ethereum.NotFound) {
			c.logger.Warn("Failed to fetch receipt",
				slog.String("tx_hash", tx.Hash().Hex()),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			metrics.ReceiptWaited("error", time.Since(started))
			return nil, fmt.Errorf("waiting for %s: %w", tx.Hash().Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close closes the RPC connection
func (c *Client) Close() {
	c.rpc.Close()
}
