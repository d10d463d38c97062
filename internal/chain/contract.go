package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/cuongbtq/chain-job-service/internal/metrics"
)

// Contract is a handle bound to one deployed contract. Handles created
// with a zero Signer can only Call and ParseEvent.
type Contract interface {
	Name() ContractName
	Address() common.Address
	// Call runs a read-only method and returns its outputs in ABI order
	Call(ctx context.Context, method string, args ...any) ([]any, error)
	// Transact signs and submits a state-changing call. A nil nonce lets the
	// node pick the pending nonce.
	Transact(ctx context.Context, nonce *uint64, method string, args ...any) (*types.Transaction, error)
	// ParseEvent decodes the first log of event emitted by this contract
	ParseEvent(receipt *types.Receipt, event string) (map[string]any, error)
}

type boundContract struct {
	name    ContractName
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
	signer  Signer
	chainID *big.Int
}

func newBoundContract(name ContractName, address common.Address, backend bind.ContractBackend, signer Signer, chainID *big.Int) (*boundContract, error) {
	parsed, err := ABI(name)
	if err != nil {
		return nil, err
	}

	return &boundContract{
		name:    name,
		address: address,
		abi:     parsed,
		bound:   bind.NewBoundContract(address, parsed, backend, backend, backend),
		signer:  signer,
		chainID: chainID,
	}, nil
}

func (c *boundContract) Name() ContractName {
	return c.name
}

func (c *boundContract) Address() common.Address {
	return c.address
}

func (c *boundContract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	opts := &bind.CallOpts{Context: ctx}
	if !c.signer.IsZero() {
		opts.From = c.signer.Address()
	}

	var out []any
	if err := c.bound.Call(opts, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s.%s at %s: %w", c.name, method, c.address.Hex(), err)
	}
	return out, nil
}

func (c *boundContract) Transact(ctx context.Context, nonce *uint64, method string, args ...any) (*types.Transaction, error) {
	opts, err := c.signer.transactOpts(c.chainID)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", c.name, method, err)
	}
	opts.Context = ctx
	if nonce != nil {
		opts.Nonce = new(big.Int).SetUint64(*nonce)
	}

	tx, err := c.bound.Transact(opts, method, args...)
	if err != nil {
		metrics.TransactionSubmitted(string(c.name), method, "error")
		return nil, fmt.Errorf("%s.%s at %s: %w", c.name, method, c.address.Hex(), err)
	}

	metrics.TransactionSubmitted(string(c.name), method, "sent")
	return tx, nil
}

func (c *boundContract) ParseEvent(receipt *types.Receipt, event string) (map[string]any, error) {
	if receipt == nil {
		return nil, fmt.Errorf("%w: %s (no receipt)", ErrEventNotFound, event)
	}
	return DecodeEvent(c.abi, event, &c.address, receipt.Logs)
}
