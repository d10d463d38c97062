package processor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/cuongbtq/chain-job-service/internal/chain"
	"github.com/cuongbtq/chain-job-service/internal/domain"
)

// Event output keys
const (
	OutputContractAddress      = "contractAddress"
	OutputVerifierRoleGranted  = "verifierRoleGranted"
	OutputOnChainAssetID       = "onChainAssetId"
	OutputApprovalTxHash       = "approvalTxHash"
	OutputNativeTxHash         = "nativeTxHash"
	OutputOrganizationContract = "organizationContract"
)

// createOrgContract deploys the organization contract and, when a verifier
// is named, grants it the verifier role as the principal. A failed grant is
// logged and does not fail the job.
func (p *Processor) createOrgContract(ctx context.Context, pl *domain.CreateOrgContractPayload, output domain.EventOutput) (*types.Receipt, error) {
	factory, err := p.registeredContract(chain.OrganizationFactory, p.chain.AdminSigner())
	if err != nil {
		return nil, err
	}

	tx, err := factory.Transact(ctx, nil, "createOrganizationContract",
		pl.OrganizationID, common.HexToAddress(pl.PrincipalWalletAddress))
	if err != nil {
		return nil, err
	}

	receipt, err := p.waitMined(ctx, factory, "createOrganizationContract", tx)
	if err != nil {
		return nil, err
	}

	created, err := factory.ParseEvent(receipt, "OrganizationContractCreated")
	if err != nil {
		return nil, fmt.Errorf("tx %s: %w", tx.Hash().Hex(), err)
	}

	orgContract, ok := created["contractAddress"].(common.Address)
	if !ok || orgContract == (common.Address{}) {
		return nil, fmt.Errorf("tx %s: OrganizationContractCreated carries no contract address", tx.Hash().Hex())
	}

	output[OutputContractAddress] = orgContract.Hex()
	output[OutputVerifierRoleGranted] = false

	if pl.PlatformVerifierWalletAddress != "" {
		if err := p.grantVerifierRole(ctx, pl, orgContract); err != nil {
			p.logger.Error("CRITICAL: verifier role grant failed, organization contract needs manual remediation",
				slog.String("organization_id", pl.OrganizationID),
				slog.String("organization_contract", orgContract.Hex()),
				slog.String("verifier", pl.PlatformVerifierWalletAddress),
				slog.String("error", err.Error()),
			)
		} else {
			output[OutputVerifierRoleGranted] = true
		}
	}

	return receipt, nil
}

func (p *Processor) grantVerifierRole(ctx context.Context, pl *domain.CreateOrgContractPayload, orgContract common.Address) error {
	principal, err := p.userSigner(ctx, pl.PrincipalUserID)
	if err != nil {
		return err
	}

	org, err := p.chain.GetContract(chain.OrganizationContract, orgContract, principal)
	if err != nil {
		return err
	}

	tx, err := org.Transact(ctx, nil, "grantVerifierRole", common.HexToAddress(pl.PlatformVerifierWalletAddress))
	if err != nil {
		return err
	}

	_, err = p.waitMined(ctx, org, "grantVerifierRole", tx)
	return err
}

// createAsset registers the asset as the creating user and recovers the
// asset id from the registry's AssetRegistered log
func (p *Processor) createAsset(ctx context.Context, pl *domain.CreateAssetPayload, output domain.EventOutput) (*types.Receipt, error) {
	price, err := chain.ToBaseUnits(pl.Price, p.stablecoinDecimals)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}

	registry, err := p.registeredContract(chain.AssetRegistry, chain.Signer{})
	if err != nil {
		return nil, err
	}

	creator, err := p.userSigner(ctx, pl.UserID)
	if err != nil {
		return nil, err
	}

	org, err := p.chain.GetContract(chain.OrganizationContract, common.HexToAddress(pl.SiteAddress), creator)
	if err != nil {
		return nil, err
	}

	tx, err := org.Transact(ctx, nil, "createAsset",
		pl.AssetCID,
		[32]byte(common.HexToHash(pl.MetadataHash)),
		[32]byte(common.HexToHash(pl.AssetHash)),
		price,
		pl.IsEncrypted,
		pl.CanBeLicensed,
		common.HexToAddress(pl.FxPool),
		big.NewInt(pl.TimeStamp),
	)
	if err != nil {
		return nil, err
	}

	receipt, err := p.waitMined(ctx, org, "createAsset", tx)
	if err != nil {
		return nil, err
	}

	registered, err := registry.ParseEvent(receipt, "AssetRegistered")
	if err != nil {
		return nil, fmt.Errorf("tx %s: %w", tx.Hash().Hex(), err)
	}

	assetID, ok := registered["assetId"].(*big.Int)
	if !ok || assetID == nil {
		return nil, fmt.Errorf("tx %s: AssetRegistered carries no asset id", tx.Hash().Hex())
	}

	output[OutputOnChainAssetID] = assetID.String()
	return receipt, nil
}

// licenseAsset raises the buyer's stablecoin allowance when it does not
// cover the price, then licenses the asset. Both transactions come from the
// buyer's wallet on consecutive nonces.
func (p *Processor) licenseAsset(ctx context.Context, pl *domain.LicenseAssetPayload, output domain.EventOutput) (*types.Receipt, error) {
	price, err := chain.ToBaseUnits(pl.Price, p.stablecoinDecimals)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}

	buyer, err := p.userSigner(ctx, pl.UserID)
	if err != nil {
		return nil, err
	}

	stablecoin, err := p.registeredContract(chain.Stablecoin, buyer)
	if err != nil {
		return nil, err
	}

	site := common.HexToAddress(pl.SiteAddress)
	org, err := p.chain.GetContract(chain.OrganizationContract, site, buyer)
	if err != nil {
		return nil, err
	}

	nonces, err := p.seedNonces(ctx, buyer)
	if err != nil {
		return nil, err
	}

	allowance, err := p.readUint(ctx, stablecoin, "allowance", buyer.Address(), site)
	if err != nil {
		return nil, err
	}

	if allowance.Cmp(price) < 0 {
		approveTx, err := stablecoin.Transact(ctx, nonces.current(), "approve", site, price)
		if err != nil {
			return nil, err
		}
		nonces.advance()

		if _, err := p.waitMined(ctx, stablecoin, "approve", approveTx); err != nil {
			return nil, err
		}
		output[OutputApprovalTxHash] = approveTx.Hash().Hex()
	}

	licenseTx, err := org.Transact(ctx, nonces.current(), "licenseAsset",
		pl.OnChainAssetID.BigInt(),
		pl.Permissions,
		new(big.Int).SetUint64(uint64(pl.ResellerFee)),
	)
	if err != nil {
		return nil, err
	}
	nonces.advance()

	return p.waitMined(ctx, org, "licenseAsset", licenseTx)
}

// fundUserWallet sends gas money and then stablecoin from the faucet on
// consecutive nonces
func (p *Processor) fundUserWallet(ctx context.Context, pl *domain.FundUserWalletPayload, output domain.EventOutput) (*types.Receipt, error) {
	nativeAmount, err := chain.ToBaseUnits(p.fundNativeAmount, chain.NativeDecimals)
	if err != nil {
		return nil, fmt.Errorf("native funding amount: %w", err)
	}

	stablecoinAmount, err := chain.ToBaseUnits(p.fundStablecoinAmount, p.stablecoinDecimals)
	if err != nil {
		return nil, fmt.Errorf("stablecoin funding amount: %w", err)
	}

	faucet := p.chain.FaucetSigner()
	recipient := common.HexToAddress(pl.RecipientAddress)

	stablecoin, err := p.registeredContract(chain.Stablecoin, faucet)
	if err != nil {
		return nil, err
	}

	nonces, err := p.seedNonces(ctx, faucet)
	if err != nil {
		return nil, err
	}

	nativeTx, err := p.chain.Transfer(ctx, faucet, recipient, nativeAmount, *nonces.current())
	if err != nil {
		return nil, err
	}
	nonces.advance()

	if _, err := p.waitMined(ctx, nil, "nativeTransfer", nativeTx); err != nil {
		return nil, err
	}
	output[OutputNativeTxHash] = nativeTx.Hash().Hex()

	transferTx, err := stablecoin.Transact(ctx, nonces.current(), "transfer", recipient, stablecoinAmount)
	if err != nil {
		return nil, err
	}
	nonces.advance()

	return p.waitMined(ctx, stablecoin, "transfer", transferTx)
}

// withdrawOrgEarnings looks up the organization contract with the admin
// wallet and withdraws its revenue as the principal
func (p *Processor) withdrawOrgEarnings(ctx context.Context, pl *domain.WithdrawOrgEarningsPayload, output domain.EventOutput) (*types.Receipt, error) {
	factory, err := p.registeredContract(chain.OrganizationFactory, p.chain.AdminSigner())
	if err != nil {
		return nil, err
	}

	result, err := factory.Call(ctx, "getOrganizationContract", pl.OrganizationID)
	if err != nil {
		return nil, err
	}

	var orgContract common.Address
	if len(result) > 0 {
		orgContract, _ = result[0].(common.Address)
	}
	if orgContract == (common.Address{}) {
		return nil, fmt.Errorf("organization %s has no deployed contract", pl.OrganizationID)
	}
	output[OutputOrganizationContract] = orgContract.Hex()

	principal, err := p.userSigner(ctx, pl.PrincipalUserID)
	if err != nil {
		return nil, err
	}

	distributor, err := p.registeredContract(chain.RevenueDistributor, principal)
	if err != nil {
		return nil, err
	}

	tx, err := distributor.Transact(ctx, nil, "withdrawAll", orgContract)
	if err != nil {
		return nil, err
	}

	return p.waitMined(ctx, distributor, "withdrawAll", tx)
}

func (p *Processor) setCreatorRole(ctx context.Context, method string, role domain.CreatorRole) (*types.Receipt, error) {
	factory, err := p.registeredContract(chain.OrganizationFactory, p.chain.AdminSigner())
	if err != nil {
		return nil, err
	}

	tx, err := factory.Transact(ctx, nil, method, role.OrganizationID, common.HexToAddress(role.UserWalletAddress))
	if err != nil {
		return nil, err
	}

	return p.waitMined(ctx, factory, method, tx)
}

func (p *Processor) verifyAsset(ctx context.Context, pl *domain.VerifyAssetPayload) (*types.Receipt, error) {
	key, err := p.keys.VerifierPrivateKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch verifier key: %w", err)
	}

	verifier, err := chain.ParseSigner(key.Reveal())
	if err != nil {
		return nil, fmt.Errorf("verifier key: %w", err)
	}

	org, err := p.chain.GetContract(chain.OrganizationContract, common.HexToAddress(pl.SiteAddress), verifier)
	if err != nil {
		return nil, err
	}

	tx, err := org.Transact(ctx, nil, "verifyAsset", pl.OnChainAssetID.BigInt())
	if err != nil {
		return nil, err
	}

	return p.waitMined(ctx, org, "verifyAsset", tx)
}
