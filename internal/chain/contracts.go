package chain

import (
	"embed"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ContractName is the logical name of a platform contract
type ContractName string

const (
	OrganizationFactory  ContractName = "OrganizationFactory"
	OrganizationContract ContractName = "OrganizationContract"
	AssetRegistry        ContractName = "AssetRegistry"
	RevenueDistributor   ContractName = "RevenueDistributor"
	Stablecoin           ContractName = "Stablecoin"
)

var contractNames = []ContractName{
	OrganizationFactory,
	OrganizationContract,
	AssetRegistry,
	RevenueDistributor,
	Stablecoin,
}

//go:embed abi/*.json
var abiFS embed.FS

var loadABIs = sync.OnceValues(func() (map[ContractName]abi.ABI, error) {
	abis := make(map[ContractName]abi.ABI, len(contractNames))
	for _, name := range contractNames {
		f, err := abiFS.Open("abi/" + string(name) + ".json")
		if err != nil {
			return nil, fmt.Errorf("open %s abi: %w", name, err)
		}

		parsed, err := abi.JSON(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s abi: %w", name, err)
		}
		abis[name] = parsed
	}
	return abis, nil
})

// ABI returns the parsed ABI of a platform contract
func ABI(name ContractName) (abi.ABI, error) {
	abis, err := loadABIs()
	if err != nil {
		return abi.ABI{}, err
	}

	parsed, ok := abis[name]
	if !ok {
		return abi.ABI{}, fmt.Errorf("%w: %s", ErrUnknownContract, name)
	}
	return parsed, nil
}

// RegistryConfig holds configured contract addresses as hex strings
type RegistryConfig struct {
	OrganizationFactory string
	AssetRegistry       string
	RevenueDistributor  string
	Stablecoin          string
}

// Registry resolves logical contract names to deployed addresses.
// Values are read once from configuration and never change.
type Registry struct {
	addresses map[ContractName]string
	keys      map[ContractName]string
}

// NewRegistry creates a registry from configuration
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		addresses: map[ContractName]string{
			OrganizationFactory: cfg.OrganizationFactory,
			AssetRegistry:       cfg.AssetRegistry,
			RevenueDistributor:  cfg.RevenueDistributor,
			Stablecoin:          cfg.Stablecoin,
		},
		keys: map[ContractName]string{
			OrganizationFactory: "contracts.organization_factory",
			AssetRegistry:       "contracts.asset_registry",
			RevenueDistributor:  "contracts.revenue_distributor",
			Stablecoin:          "contracts.stablecoin",
		},
	}
}

// Address returns the deployed address of name. Organization contracts are
// deployed per organization and are never resolved here.
func (r *Registry) Address(name ContractName) (common.Address, error) {
	key, ok := r.keys[name]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s has no configured address", ErrUnknownContract, name)
	}

	value := r.addresses[name]
	if value == "" {
		return common.Address{}, fmt.Errorf("%w: %s (%s)", ErrContractNotConfigured, name, key)
	}

	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: %s (%s=%q)", ErrInvalidAddress, name, key, value)
	}

	return common.HexToAddress(value), nil
}
