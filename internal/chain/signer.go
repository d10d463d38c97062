package chain

import (
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is a wallet able to sign transactions. Its key never leaves the
// value: String, LogValue and fmt verbs only ever show the address.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner wraps an already parsed key
func NewSigner(key *ecdsa.PrivateKey) Signer {
	return Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// ParseSigner builds an ephemeral signer from hex key material (with or without 0x)
func ParseSigner(hexKey string) (Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return Signer{}, ErrInvalidPrivateKey
	}
	return NewSigner(key), nil
}

// Address returns the signer's account address
func (s Signer) Address() common.Address {
	return s.address
}

// IsZero reports whether the signer holds no key
func (s Signer) IsZero() bool {
	return s.key == nil
}

func (s Signer) String() string {
	return s.address.Hex()
}

// GoString keeps %#v from dumping the key
func (s Signer) GoString() string {
	return fmt.Sprintf("chain.Signer{address: %s}", s.address.Hex())
}

// LogValue implements slog.LogValuer
func (s Signer) LogValue() slog.Value {
	return slog.StringValue(s.address.Hex())
}

func (s Signer) transactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	if s.IsZero() {
		return nil, ErrReadOnlyContract
	}
	return bind.NewKeyedTransactorWithChainID(s.key, chainID)
}
