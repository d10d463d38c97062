package processor

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/chain-job-service/internal/chain"
	"github.com/cuongbtq/chain-job-service/internal/domain"
	"github.com/cuongbtq/chain-job-service/internal/kms"
)

const (
	bytes32A = "0x1111111111111111111111111111111111111111111111111111111111111111"
	bytes32B = "0x2222222222222222222222222222222222222222222222222222222222222222"
)

func assetRegisteredLog(t *testing.T, emitter common.Address, assetID int64, creator common.Address) *types.Log {
	t.Helper()

	parsed, err := chain.ABI(chain.AssetRegistry)
	require.NoError(t, err)
	event := parsed.Events["AssetRegistered"]

	data, err := event.Inputs.NonIndexed().Pack("bafy-asset")
	require.NoError(t, err)

	return &types.Log{
		Address: emitter,
		Topics: []common.Hash{
			event.ID,
			common.BigToHash(big.NewInt(assetID)),
			common.BytesToHash(siteAddress.Bytes()),
			common.BytesToHash(creator.Bytes()),
		},
		Data: data,
	}
}

func orgCreatedLog(t *testing.T, contract, principal common.Address) *types.Log {
	t.Helper()

	parsed, err := chain.ABI(chain.OrganizationFactory)
	require.NoError(t, err)
	event := parsed.Events["OrganizationContractCreated"]

	data, err := event.Inputs.NonIndexed().Pack("org-1")
	require.NoError(t, err)

	return &types.Log{
		Address: factoryAddress,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(contract.Bytes()),
			common.BytesToHash(principal.Bytes()),
		},
		Data: data,
	}
}

func createAssetPayload() string {
	return `{
		"txId": "tx-asset",
		"userId": "user-1",
		"siteAddress": "0x00000000000000000000000000000000000000c1",
		"assetCID": "bafy-asset",
		"metadataHash": "` + bytes32A + `",
		"assetHash": "` + bytes32B + `",
		"price": "25.5",
		"isEncrypted": false,
		"canBeLicensed": true,
		"fxPool": "0x00000000000000000000000000000000000000d1",
		"timeStamp": 1700000000
	}`
}

func licensePayload() string {
	return `{
		"txId": "tx-license",
		"userId": "user-1",
		"siteAddress": "0x00000000000000000000000000000000000000c1",
		"onChainAssetId": 42,
		"price": "10",
		"permissions": ["view", "download"],
		"resellerFee": 250
	}`
}

func TestProcess_CreateAsset(t *testing.T) {
	h := newHarness(t)
	h.chain.logs["createAsset"] = []*types.Log{assetRegisteredLog(t, assetRegistryAddr, 42, h.user.address)}
	jobID := h.addJob(domain.EventCreateAsset, createAssetPayload())

	require.NoError(t, h.processor.Process(context.Background(), jobID))

	job := h.store.job(jobID)
	assert.Equal(t, domain.StatusSuccess, job.Status)
	assert.Nil(t, job.ErrorMessage)
	require.NotNil(t, job.FinalizedAt)

	sent, ok := h.chain.lastSent("createAsset")
	require.True(t, ok)
	assert.Equal(t, h.user.address, sent.from)
	assert.Equal(t, siteAddress, sent.address)
	assert.Equal(t, chain.OrganizationContract, sent.contract)
	assert.Equal(t, big.NewInt(25_500_000), sent.args[3])
	assert.Equal(t, [32]byte(common.HexToHash(bytes32A)), sent.args[1])

	event := h.lastEvent(t)
	assert.Equal(t, domain.FinalStatusConfirmed, event.FinalStatus)
	assert.Equal(t, "tx-asset", event.ID)
	assert.Equal(t, jobID, event.JobID)
	assert.Equal(t, sent.tx.Hash().Hex(), event.TxHash)
	assert.Equal(t, "42", event.EventOutput[OutputOnChainAssetID])
	assert.Nil(t, event.Error)

	block, known := event.BlockNumber.Value()
	assert.True(t, known)
	assert.Equal(t, uint64(101), block)
}

func TestProcess_CreateAsset_MissingLogFails(t *testing.T) {
	h := newHarness(t)
	// the asset was registered but the log came from an unexpected contract
	h.chain.logs["createAsset"] = []*types.Log{assetRegisteredLog(t, siteAddress, 42, h.user.address)}
	jobID := h.addJob(domain.EventCreateAsset, createAssetPayload())

	require.NoError(t, h.processor.Process(context.Background(), jobID))

	job := h.store.job(jobID)
	assert.Equal(t, domain.StatusError, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "expected event not found")

	event := h.lastEvent(t)
	assert.Equal(t, domain.FinalStatusFailed, event.FinalStatus)
	assert.Equal(t, domain.Unknown, event.TxHash)
	_, known := event.BlockNumber.Value()
	assert.False(t, known)
	assert.Empty(t, event.EventOutput)
	require.NotNil(t, event.Error)
}

func TestProcess_CreateOrgContract(t *testing.T) {
	orgContract := common.HexToAddress("0x00000000000000000000000000000000000000c9")
	payload := func(verifier string) string {
		return `{
			"txId": "tx-org",
			"organizationId": "org-1",
			"principalUserId": "principal-1",
			"principalWalletAddress": "0x00000000000000000000000000000000000000a1",
			"platformVerifierWalletAddress": "` + verifier + `"
		}`
	}

	t.Run("with verifier role", func(t *testing.T) {
		h := newHarness(t)
		h.chain.logs["createOrganizationContract"] = []*types.Log{orgCreatedLog(t, orgContract, h.principal.address)}
		jobID := h.addJob(domain.EventCreateOrgContract, payload("0x00000000000000000000000000000000000000b1"))

		require.NoError(t, h.processor.Process(context.Background(), jobID))
		assert.Equal(t, domain.StatusSuccess, h.store.job(jobID).Status)
		assert.Equal(t, []string{"createOrganizationContract", "grantVerifierRole"}, h.chain.sentMethods())

		create, _ := h.chain.lastSent("createOrganizationContract")
		assert.Equal(t, h.admin.address, create.from)
		assert.Equal(t, factoryAddress, create.address)

		grant, _ := h.chain.lastSent("grantVerifierRole")
		assert.Equal(t, h.principal.address, grant.from)
		assert.Equal(t, orgContract, grant.address)

		event := h.lastEvent(t)
		assert.Equal(t, create.tx.Hash().Hex(), event.TxHash)
		assert.Equal(t, orgContract.Hex(), event.EventOutput[OutputContractAddress])
		assert.Equal(t, true, event.EventOutput[OutputVerifierRoleGranted])
	})

	t.Run("verifier grant failure is absorbed", func(t *testing.T) {
		h := newHarness(t)
		h.chain.logs["createOrganizationContract"] = []*types.Log{orgCreatedLog(t, orgContract, h.principal.address)}
		h.chain.reverts["grantVerifierRole"] = true
		jobID := h.addJob(domain.EventCreateOrgContract, payload("0x00000000000000000000000000000000000000b1"))

		require.NoError(t, h.processor.Process(context.Background(), jobID))
		assert.Equal(t, domain.StatusSuccess, h.store.job(jobID).Status)

		event := h.lastEvent(t)
		assert.Equal(t, domain.FinalStatusConfirmed, event.FinalStatus)
		assert.Equal(t, orgContract.Hex(), event.EventOutput[OutputContractAddress])
		assert.Equal(t, false, event.EventOutput[OutputVerifierRoleGranted])
	})

	t.Run("without verifier", func(t *testing.T) {
		h := newHarness(t)
		h.chain.logs["createOrganizationContract"] = []*types.Log{orgCreatedLog(t, orgContract, h.principal.address)}
		jobID := h.addJob(domain.EventCreateOrgContract, payload(""))

		require.NoError(t, h.processor.Process(context.Background(), jobID))
		assert.Equal(t, []string{"createOrganizationContract"}, h.chain.sentMethods())
		assert.Equal(t, false, h.lastEvent(t).EventOutput[OutputVerifierRoleGranted])
	})

	t.Run("creation revert fails the job", func(t *testing.T) {
		h := newHarness(t)
		h.chain.reverts["createOrganizationContract"] = true
		jobID := h.addJob(domain.EventCreateOrgContract, payload(""))

		require.NoError(t, h.processor.Process(context.Background(), jobID))

		job := h.store.job(jobID)
		assert.Equal(t, domain.StatusError, job.Status)
		create, _ := h.chain.lastSent("createOrganizationContract")
		assert.Contains(t, *job.ErrorMessage, create.tx.Hash().Hex())
		assert.Equal(t, domain.Unknown, h.lastEvent(t).TxHash)
	})
}

func TestProcess_LicenseAsset(t *testing.T) {
	t.Run("allowance covers price", func(t *testing.T) {
		h := newHarness(t)
		h.chain.nonces[h.user.address] = 7
		h.chain.calls["allowance"] = []any{big.NewInt(10_000_000)}
		jobID := h.addJob(domain.EventLicenseAsset, licensePayload())

		require.NoError(t, h.processor.Process(context.Background(), jobID))
		assert.Equal(t, domain.StatusSuccess, h.store.job(jobID).Status)

		require.Equal(t, []string{"licenseAsset"}, h.chain.sentMethods())
		license := h.chain.sent[0]
		require.NotNil(t, license.nonce)
		assert.Equal(t, uint64(7), *license.nonce)
		assert.Equal(t, h.user.address, license.from)
		assert.Equal(t, big.NewInt(42), license.args[0])
		assert.Equal(t, []string{"view", "download"}, license.args[1])
		assert.Equal(t, big.NewInt(250), license.args[2])

		event := h.lastEvent(t)
		assert.Equal(t, license.tx.Hash().Hex(), event.TxHash)
		assert.NotContains(t, event.EventOutput, OutputApprovalTxHash)
	})

	t.Run("approve then license on consecutive nonces", func(t *testing.T) {
		h := newHarness(t)
		h.chain.nonces[h.user.address] = 7
		h.chain.calls["allowance"] = []any{big.NewInt(1)}
		jobID := h.addJob(domain.EventLicenseAsset, licensePayload())

		require.NoError(t, h.processor.Process(context.Background(), jobID))
		assert.Equal(t, domain.StatusSuccess, h.store.job(jobID).Status)

		require.Equal(t, []string{"approve", "licenseAsset"}, h.chain.sentMethods())
		approve, license := h.chain.sent[0], h.chain.sent[1]
		assert.Equal(t, uint64(7), *approve.nonce)
		assert.Equal(t, *approve.nonce+1, *license.nonce)
		assert.Equal(t, stablecoinAddress, approve.address)
		assert.Equal(t, []any{siteAddress, big.NewInt(10_000_000)}, approve.args)

		// nonce read once, license only after approve is mined
		assert.Equal(t, []string{"nonce", "send:approve", "mined:approve", "send:licenseAsset", "mined:licenseAsset"}, h.chain.steps)

		event := h.lastEvent(t)
		assert.Equal(t, license.tx.Hash().Hex(), event.TxHash)
		assert.Equal(t, approve.tx.Hash().Hex(), event.EventOutput[OutputApprovalTxHash])
	})

	t.Run("approve revert stops the sequence", func(t *testing.T) {
		h := newHarness(t)
		h.chain.calls["allowance"] = []any{big.NewInt(0)}
		h.chain.reverts["approve"] = true
		jobID := h.addJob(domain.EventLicenseAsset, licensePayload())

		require.NoError(t, h.processor.Process(context.Background(), jobID))
		assert.Equal(t, domain.StatusError, h.store.job(jobID).Status)
		assert.Equal(t, []string{"approve"}, h.chain.sentMethods())
	})
}

func TestProcess_FundUserWallet(t *testing.T) {
	h := newHarness(t)
	h.chain.nonces[h.faucet.address] = 3
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	jobID := h.addJob(domain.EventFundUserWallet, `{"txId":"tx-fund","recipientAddress":"0x00000000000000000000000000000000000000e1"}`)

	require.NoError(t, h.processor.Process(context.Background(), jobID))
	assert.Equal(t, domain.StatusSuccess, h.store.job(jobID).Status)

	require.Equal(t, []string{"nativeTransfer", "transfer"}, h.chain.sentMethods())
	native, token := h.chain.sent[0], h.chain.sent[1]

	assert.Equal(t, h.faucet.address, native.from)
	assert.Equal(t, uint64(3), *native.nonce)
	assert.Equal(t, big.NewInt(50_000_000_000_000_000), native.args[1])

	assert.Equal(t, h.faucet.address, token.from)
	assert.Equal(t, uint64(4), *token.nonce)
	assert.Equal(t, stablecoinAddress, token.address)
	assert.Equal(t, []any{recipient, big.NewInt(100_000_000)}, token.args)

	assert.Equal(t, []string{"nonce", "send:nativeTransfer", "mined:nativeTransfer", "send:transfer", "mined:transfer"}, h.chain.steps)

	event := h.lastEvent(t)
	assert.Equal(t, token.tx.Hash().Hex(), event.TxHash)
	assert.Equal(t, native.tx.Hash().Hex(), event.EventOutput[OutputNativeTxHash])
}

func TestProcess_WithdrawOrgEarnings(t *testing.T) {
	orgContract := common.HexToAddress("0x00000000000000000000000000000000000000c9")

	t.Run("withdraws as principal", func(t *testing.T) {
		h := newHarness(t)
		h.chain.calls["getOrganizationContract"] = []any{orgContract}
		jobID := h.addJob(domain.EventWithdrawOrgEarnings, `{"txId":"tx-w","organizationId":"org-1","principalUserId":"principal-1"}`)

		require.NoError(t, h.processor.Process(context.Background(), jobID))
		assert.Equal(t, domain.StatusSuccess, h.store.job(jobID).Status)

		withdraw, ok := h.chain.lastSent("withdrawAll")
		require.True(t, ok)
		assert.Equal(t, h.principal.address, withdraw.from)
		assert.Equal(t, distributorAddress, withdraw.address)
		assert.Equal(t, []any{orgContract}, withdraw.args)
		assert.Equal(t, orgContract.Hex(), h.lastEvent(t).EventOutput[OutputOrganizationContract])
	})

	t.Run("unknown organization", func(t *testing.T) {
		h := newHarness(t)
		h.chain.calls["getOrganizationContract"] = []any{common.Address{}}
		jobID := h.addJob(domain.EventWithdrawOrgEarnings, `{"txId":"tx-w","organizationId":"org-9","principalUserId":"principal-1"}`)

		require.NoError(t, h.processor.Process(context.Background(), jobID))
		job := h.store.job(jobID)
		assert.Equal(t, domain.StatusError, job.Status)
		assert.Contains(t, *job.ErrorMessage, "org-9")
		assert.Empty(t, h.chain.sent)
	})
}

func TestProcess_CreatorRole(t *testing.T) {
	tests := []struct {
		eventType domain.EventType
		method    string
	}{
		{eventType: domain.EventGrantCreatorRole, method: "grantCreatorRole"},
		{eventType: domain.EventRevokeCreatorRole, method: "revokeCreatorRole"},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			h := newHarness(t)
			jobID := h.addJob(tt.eventType, `{"txId":"tx-role","organizationId":"org-1","userWalletAddress":"0x00000000000000000000000000000000000000e1"}`)

			require.NoError(t, h.processor.Process(context.Background(), jobID))
			assert.Equal(t, domain.StatusSuccess, h.store.job(jobID).Status)

			require.Equal(t, []string{tt.method}, h.chain.sentMethods())
			sent := h.chain.sent[0]
			assert.Equal(t, h.admin.address, sent.from)
			assert.Equal(t, factoryAddress, sent.address)
			assert.Equal(t, []any{"org-1", common.HexToAddress("0x00000000000000000000000000000000000000e1")}, sent.args)
			assert.Empty(t, h.lastEvent(t).EventOutput)
		})
	}
}

func TestProcess_VerifyAsset(t *testing.T) {
	h := newHarness(t)
	jobID := h.addJob(domain.EventVerifyAsset, `{"txId":"tx-v","siteAddress":"0x00000000000000000000000000000000000000c1","onChainAssetId":"42"}`)

	require.NoError(t, h.processor.Process(context.Background(), jobID))
	assert.Equal(t, domain.StatusSuccess, h.store.job(jobID).Status)

	sent, ok := h.chain.lastSent("verifyAsset")
	require.True(t, ok)
	assert.Equal(t, h.verifier.address, sent.from)
	assert.Equal(t, siteAddress, sent.address)
	assert.Equal(t, []any{big.NewInt(42)}, sent.args)
}

func TestProcess_Failures(t *testing.T) {
	t.Run("invalid payload never reaches the chain", func(t *testing.T) {
		h := newHarness(t)
		jobID := h.addJob(domain.EventVerifyAsset, `{"txId":"tx-v","siteAddress":"not-an-address","onChainAssetId":1}`)

		require.NoError(t, h.processor.Process(context.Background(), jobID))

		job := h.store.job(jobID)
		assert.Equal(t, domain.StatusError, job.Status)
		assert.Contains(t, *job.ErrorMessage, "siteAddress")
		assert.Empty(t, h.chain.sent)
		assert.Equal(t, domain.FinalStatusFailed, h.lastEvent(t).FinalStatus)
	})

	t.Run("unsupported event type", func(t *testing.T) {
		h := newHarness(t)
		jobID := h.addJob("MINT_EVERYTHING", `{"txId":"tx-x"}`)

		require.NoError(t, h.processor.Process(context.Background(), jobID))

		job := h.store.job(jobID)
		assert.Equal(t, domain.StatusError, job.Status)
		assert.Contains(t, *job.ErrorMessage, domain.ErrUnsupportedEventType.Error())
	})

	t.Run("kms failure", func(t *testing.T) {
		h := newHarness(t)
		h.keys.err = kms.ErrKeyUnavailable
		jobID := h.addJob(domain.EventVerifyAsset, `{"txId":"tx-v","siteAddress":"0x00000000000000000000000000000000000000c1","onChainAssetId":1}`)

		require.NoError(t, h.processor.Process(context.Background(), jobID))
		assert.Equal(t, domain.StatusError, h.store.job(jobID).Status)
		assert.Empty(t, h.chain.sent)
	})

	t.Run("submission error", func(t *testing.T) {
		h := newHarness(t)
		h.chain.transactErr["grantCreatorRole"] = errors.New("insufficient funds for gas")
		jobID := h.addJob(domain.EventGrantCreatorRole, `{"txId":"tx-role","organizationId":"org-1","userWalletAddress":"0x00000000000000000000000000000000000000e1"}`)

		require.NoError(t, h.processor.Process(context.Background(), jobID))

		job := h.store.job(jobID)
		assert.Equal(t, domain.StatusError, job.Status)
		assert.Contains(t, *job.ErrorMessage, "insufficient funds")
	})
}

func TestProcess_QueueSemantics(t *testing.T) {
	t.Run("missing job is dropped", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.processor.Process(context.Background(), "00000000-0000-4000-8000-999999999999"))
		assert.Empty(t, h.publisher.events)
		assert.Zero(t, h.store.finalizes)
	})

	t.Run("terminal job is never reprocessed", func(t *testing.T) {
		h := newHarness(t)
		jobID := h.addJob(domain.EventGrantCreatorRole, `{"txId":"tx-role","organizationId":"org-1","userWalletAddress":"0x00000000000000000000000000000000000000e1"}`)

		require.NoError(t, h.processor.Process(context.Background(), jobID))
		require.NoError(t, h.processor.Process(context.Background(), jobID))

		assert.Len(t, h.chain.sent, 1)
		assert.Len(t, h.publisher.events, 1)
		assert.Equal(t, 1, h.store.finalizes)
	})

	t.Run("publish failure keeps the terminal status", func(t *testing.T) {
		h := newHarness(t)
		h.publisher.err = errors.New("broker down")
		jobID := h.addJob(domain.EventGrantCreatorRole, `{"txId":"tx-role","organizationId":"org-1","userWalletAddress":"0x00000000000000000000000000000000000000e1"}`)

		require.NoError(t, h.processor.Process(context.Background(), jobID))
		assert.Equal(t, domain.StatusSuccess, h.store.job(jobID).Status)
		assert.Len(t, h.publisher.events, 1)
	})

	t.Run("load failure is retryable", func(t *testing.T) {
		h := newHarness(t)
		h.store.getErr = errors.New("connection refused")

		err := h.processor.Process(context.Background(), "00000000-0000-4000-8000-000000000001")
		var retryable *domain.RetryableError
		require.ErrorAs(t, err, &retryable)
	})

	t.Run("claim failure is retryable", func(t *testing.T) {
		h := newHarness(t)
		h.store.claimErr = errors.New("connection refused")
		jobID := h.addJob(domain.EventGrantCreatorRole, `{"txId":"tx-role","organizationId":"org-1","userWalletAddress":"0x00000000000000000000000000000000000000e1"}`)

		err := h.processor.Process(context.Background(), jobID)
		var retryable *domain.RetryableError
		require.ErrorAs(t, err, &retryable)
		assert.Empty(t, h.chain.sent)
	})

	t.Run("finalize failure is retryable and publishes nothing", func(t *testing.T) {
		h := newHarness(t)
		h.store.finalizeErr = errors.New("connection refused")
		jobID := h.addJob(domain.EventGrantCreatorRole, `{"txId":"tx-role","organizationId":"org-1","userWalletAddress":"0x00000000000000000000000000000000000000e1"}`)

		err := h.processor.Process(context.Background(), jobID)
		var retryable *domain.RetryableError
		require.ErrorAs(t, err, &retryable)
		assert.Empty(t, h.publisher.events)
		assert.Equal(t, domain.StatusSubmitted, h.store.job(jobID).Status)
		assert.Empty(t, h.store.holder(jobID))
		assert.Equal(t, 1, h.store.releases)
	})

	t.Run("job held by another execution is not run twice", func(t *testing.T) {
		h := newHarness(t)
		jobID := h.addJob(domain.EventGrantCreatorRole, `{"txId":"tx-role","organizationId":"org-1","userWalletAddress":"0x00000000000000000000000000000000000000e1"}`)
		h.store.hold(jobID, "worker-a-token")

		err := h.processor.Process(context.Background(), jobID)
		var retryable *domain.RetryableError
		require.ErrorAs(t, err, &retryable)
		assert.ErrorIs(t, err, domain.ErrJobClaimed)
		assert.Empty(t, h.chain.sent)
		assert.Zero(t, h.store.finalizes)
		assert.Equal(t, "worker-a-token", h.store.holder(jobID))
	})

	t.Run("concurrent finalize keeps the first outcome", func(t *testing.T) {
		h := newHarness(t)
		h.store.finalizeErr = domain.ErrJobFinalized
		jobID := h.addJob(domain.EventGrantCreatorRole, `{"txId":"tx-role","organizationId":"org-1","userWalletAddress":"0x00000000000000000000000000000000000000e1"}`)

		require.NoError(t, h.processor.Process(context.Background(), jobID))
		assert.Empty(t, h.publisher.events)
	})

	t.Run("shutdown mid-sequence leaves the job for redelivery", func(t *testing.T) {
		h := newHarness(t)
		ctx, cancel := context.WithCancel(context.Background())
		h.chain.transactErr["grantCreatorRole"] = context.Canceled
		cancel()
		jobID := h.addJob(domain.EventGrantCreatorRole, `{"txId":"tx-role","organizationId":"org-1","userWalletAddress":"0x00000000000000000000000000000000000000e1"}`)

		err := h.processor.Process(ctx, jobID)
		var retryable *domain.RetryableError
		require.ErrorAs(t, err, &retryable)
		assert.Equal(t, domain.StatusSubmitted, h.store.job(jobID).Status)
		assert.Empty(t, h.publisher.events)
		assert.Empty(t, h.store.holder(jobID))

		// the released job is claimable by the next delivery
		delete(h.chain.transactErr, "grantCreatorRole")
		require.NoError(t, h.processor.Process(context.Background(), jobID))
		assert.Equal(t, domain.StatusSuccess, h.store.job(jobID).Status)
	})
}

func TestClaimLease(t *testing.T) {
	tests := []struct {
		name       string
		lease      time.Duration
		jobTimeout time.Duration
		want       time.Duration
	}{
		{name: "explicit lease", lease: 2 * time.Minute, jobTimeout: 10 * time.Minute, want: 2 * time.Minute},
		{name: "derived from job timeout", jobTimeout: 10 * time.Minute, want: 11 * time.Minute},
		{name: "no job timeout", want: 30 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, claimLease(tt.lease, tt.jobTimeout))
		})
	}
}
