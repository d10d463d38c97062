package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrContractNotConfigured is returned when a contract address is missing from configuration
	ErrContractNotConfigured = errors.New("contract address not configured")

	// ErrUnknownContract is returned for names the registry does not know
	ErrUnknownContract = errors.New("unknown contract")

	// ErrInvalidAddress is returned for malformed hex addresses
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidPrivateKey is returned when key material cannot be parsed. The
	// key itself is never part of the message.
	ErrInvalidPrivateKey = errors.New("invalid private key")

	// ErrReadOnlyContract is returned when Transact is called on an unsigned handle
	ErrReadOnlyContract = errors.New("contract handle has no signer")

	// ErrEventNotFound is returned when a receipt carries no log for the expected event
	ErrEventNotFound = errors.New("expected event not found in transaction logs")

	// ErrTransactionReverted is returned when a transaction was mined with status 0
	ErrTransactionReverted = errors.New("transaction reverted")
)

// RevertedError carries the hash of a mined-but-reverted transaction
type RevertedError struct {
	TxHash      common.Hash
	BlockNumber uint64
}

func (e *RevertedError) Error() string {
	return fmt.Sprintf("transaction %s reverted in block %d", e.TxHash.Hex(), e.BlockNumber)
}

func (e *RevertedError) Is(target error) bool {
	return target == ErrTransactionReverted
}
