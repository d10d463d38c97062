package processor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/cuongbtq/chain-job-service/internal/chain"
)

// nonceSequence hands out consecutive nonces for one wallet within a single
// handler run. It is seeded once and never shared between jobs.
type nonceSequence struct {
	next uint64
}

func (n *nonceSequence) current() *uint64 {
	v := n.next
	return &v
}

// advance moves to the next nonce; call only after the previous
// transaction was accepted by the node
func (n *nonceSequence) advance() {
	n.next++
}

func (p *Processor) seedNonces(ctx context.Context, signer chain.Signer) (*nonceSequence, error) {
	nonce, err := p.chain.PendingNonceAt(ctx, signer.Address())
	if err != nil {
		return nil, err
	}
	return &nonceSequence{next: nonce}, nil
}

// userSigner fetches a user's key and turns it into a signer. The key lives
// only as long as the returned signer.
func (p *Processor) userSigner(ctx context.Context, userID string) (chain.Signer, error) {
	key, err := p.keys.UserPrivateKey(ctx, userID)
	if err != nil {
		return chain.Signer{}, fmt.Errorf("failed to fetch key of user %s: %w", userID, err)
	}

	signer, err := chain.ParseSigner(key.Reveal())
	if err != nil {
		return chain.Signer{}, fmt.Errorf("key of user %s: %w", userID, err)
	}
	return signer, nil
}

// registeredContract binds a contract whose address comes from configuration
func (p *Processor) registeredContract(name chain.ContractName, signer chain.Signer) (chain.Contract, error) {
	address, err := p.registry.Address(name)
	if err != nil {
		return nil, err
	}
	return p.chain.GetContract(name, address, signer)
}

func (p *Processor) readUint(ctx context.Context, contract chain.Contract, method string, args ...any) (*big.Int, error) {
	result, err := contract.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%s.%s returned nothing", contract.Name(), method)
	}

	value, ok := result[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s.%s returned %T, want uint256", contract.Name(), method, result[0])
	}
	return value, nil
}

// waitMined waits for tx and logs its outcome. contract may be nil for
// native transfers.
func (p *Processor) waitMined(ctx context.Context, contract chain.Contract, method string, tx *types.Transaction) (*types.Receipt, error) {
	target := "native"
	if contract != nil {
		target = string(contract.Name())
	}

	p.logger.Info("Transaction submitted",
		slog.String("contract", target),
		slog.String("method", method),
		slog.String("tx_hash", tx.Hash().Hex()),
		slog.Uint64("nonce", tx.Nonce()),
	)

	receipt, err := p.chain.WaitMined(ctx, tx)
	if err != nil {
		p.logger.Error("Transaction failed",
			slog.String("contract", target),
			slog.String("method", method),
			slog.String("tx_hash", tx.Hash().Hex()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%s.%s: %w", target, method, err)
	}

	p.logger.Info("Transaction mined",
		slog.String("contract", target),
		slog.String("method", method),
		slog.String("tx_hash", tx.Hash().Hex()),
		slog.Uint64("block_number", receipt.BlockNumber.Uint64()),
	)
	return receipt, nil
}
