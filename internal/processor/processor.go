// Package processor runs chain jobs: it claims a job, executes the
// transaction sequence of its event type, records the terminal status and
// publishes the finalized event.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cuongbtq/chain-job-service/internal/chain"
	"github.com/cuongbtq/chain-job-service/internal/domain"
	"github.com/cuongbtq/chain-job-service/internal/kms"
	"github.com/cuongbtq/chain-job-service/internal/metrics"
)

// Store is the job repository used by the processor
type Store interface {
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	ClaimJob(ctx context.Context, jobID, claimToken string, lease time.Duration) (*domain.Job, error)
	ReleaseJob(ctx context.Context, jobID, claimToken string) error
	FinalizeJob(ctx context.Context, jobID string, status domain.Status, errorMsg *string) (time.Time, error)
}

// ChainClient submits transactions and waits for receipts
type ChainClient interface {
	AdminSigner() chain.Signer
	FaucetSigner() chain.Signer
	GetContract(name chain.ContractName, address common.Address, signer chain.Signer) (chain.Contract, error)
	PendingNonceAt(ctx context.Context, address common.Address) (uint64, error)
	Transfer(ctx context.Context, from chain.Signer, to common.Address, amount *big.Int, nonce uint64) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// KeyProvider hands out wallet keys on demand
type KeyProvider interface {
	UserPrivateKey(ctx context.Context, userID string) (kms.PrivateKey, error)
	VerifierPrivateKey(ctx context.Context) (kms.PrivateKey, error)
}

// Registry resolves configured contract addresses
type Registry interface {
	Address(name chain.ContractName) (common.Address, error)
}

// Publisher emits finalized events
type Publisher interface {
	PublishTransactionFinalized(ctx context.Context, event *domain.TransactionFinalizedEvent) error
}

// Config holds processor dependencies and tuning
type Config struct {
	Logger    *slog.Logger
	Store     Store
	Chain     ChainClient
	Keys      KeyProvider
	Registry  Registry
	Publisher Publisher

	StablecoinDecimals   int32
	FundNativeAmount     decimal.Decimal
	FundStablecoinAmount decimal.Decimal
	// JobTimeout bounds one handler run; zero means no limit
	JobTimeout time.Duration
	// ClaimLease is how long a claim keeps other deliveries off the job.
	// Zero derives it from JobTimeout.
	ClaimLease time.Duration
}

const (
	leaseMargin       = time.Minute
	defaultClaimLease = 30 * time.Minute
	releaseTimeout    = 5 * time.Second
)

// Processor executes one job at a time per call; it holds no per-job state
// and is safe for concurrent use.
type Processor struct {
	logger    *slog.Logger
	store     Store
	chain     ChainClient
	keys      KeyProvider
	registry  Registry
	publisher Publisher

	stablecoinDecimals   int32
	fundNativeAmount     decimal.Decimal
	fundStablecoinAmount decimal.Decimal
	jobTimeout           time.Duration
	claimLease           time.Duration
	now                  func() time.Time
	newClaimToken        func() string
}

// New creates a processor
func New(cfg *Config) *Processor {
	return &Processor{
		logger:               cfg.Logger,
		store:                cfg.Store,
		chain:                cfg.Chain,
		keys:                 cfg.Keys,
		registry:             cfg.Registry,
		publisher:            cfg.Publisher,
		stablecoinDecimals:   cfg.StablecoinDecimals,
		fundNativeAmount:     cfg.FundNativeAmount,
		fundStablecoinAmount: cfg.FundStablecoinAmount,
		jobTimeout:           cfg.JobTimeout,
		claimLease:           claimLease(cfg.ClaimLease, cfg.JobTimeout),
		now:                  time.Now,
		newClaimToken:        uuid.NewString,
	}
}

// claimLease must outlive a full handler run so a live holder keeps the job
func claimLease(lease, jobTimeout time.Duration) time.Duration {
	if lease > 0 {
		return lease
	}
	if jobTimeout > 0 {
		return jobTimeout + leaseMargin
	}
	return defaultClaimLease
}

// Process runs job jobID to a terminal state. A nil return means the
// message can be acknowledged: the job finished, was already finished or
// does not exist. A *domain.RetryableError means nothing terminal was
// recorded and the job should be delivered again.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	job, err := p.store.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			p.logger.Warn("Job not found, dropping message",
				slog.String("job_id", jobID),
			)
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("failed to load job %s: %w", jobID, err))
	}

	if job.Status.IsTerminal() {
		p.logger.Info("Job already finalized, skipping",
			slog.String("job_id", jobID),
			slog.String("status", string(job.Status)),
		)
		return nil
	}

	claimToken := p.newClaimToken()
	job, err = p.store.ClaimJob(ctx, jobID, claimToken, p.claimLease)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobFinalized), errors.Is(err, domain.ErrJobNotFound):
			return nil
		case errors.Is(err, domain.ErrJobClaimed):
			// another execution is running it; come back after backoff
			return domain.NewRetryableError(fmt.Errorf("job %s is held by another execution: %w", jobID, err))
		}
		return domain.NewRetryableError(fmt.Errorf("failed to claim job %s: %w", jobID, err))
	}

	defer metrics.JobStarted()()
	started := p.now()

	logger := p.logger.With(
		slog.String("job_id", job.ID),
		slog.String("event_type", string(job.EventType)),
	)
	logger.Info("Processing job")

	output := domain.EventOutput{}
	receipt, runErr := p.run(ctx, job, output)

	// shutting down mid-sequence: leave the job SUBMITTED for redelivery
	if runErr != nil && ctx.Err() != nil {
		p.release(logger, job.ID, claimToken)
		return domain.NewRetryableError(fmt.Errorf("job %s interrupted: %w", job.ID, ctx.Err()))
	}

	err = p.finalize(ctx, logger, job, receipt, output, runErr, started)
	var retryable *domain.RetryableError
	if errors.As(err, &retryable) {
		p.release(logger, job.ID, claimToken)
	}
	return err
}

// release hands the job back for the next delivery. The caller's context may
// already be cancelled, so it runs on its own short deadline.
func (p *Processor) release(logger *slog.Logger, jobID, claimToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := p.store.ReleaseJob(ctx, jobID, claimToken); err != nil {
		logger.Warn("Failed to release job lease",
			slog.String("error", err.Error()),
		)
	}
}

func (p *Processor) run(ctx context.Context, job *domain.Job, output domain.EventOutput) (*types.Receipt, error) {
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	payload, err := domain.DecodePayload(job.EventType, job.Payload)
	if err != nil {
		return nil, err
	}

	receipt, err := p.dispatch(ctx, payload, output)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, fmt.Errorf("%s handler finished without a primary receipt", job.EventType)
	}
	return receipt, nil
}

// dispatch selects the transaction sequence for the payload variant
func (p *Processor) dispatch(ctx context.Context, payload domain.Payload, output domain.EventOutput) (*types.Receipt, error) {
	switch pl := payload.(type) {
	case *domain.CreateOrgContractPayload:
		return p.createOrgContract(ctx, pl, output)
	case *domain.CreateAssetPayload:
		return p.createAsset(ctx, pl, output)
	case *domain.LicenseAssetPayload:
		return p.licenseAsset(ctx, pl, output)
	case *domain.FundUserWalletPayload:
		return p.fundUserWallet(ctx, pl, output)
	case *domain.WithdrawOrgEarningsPayload:
		return p.withdrawOrgEarnings(ctx, pl, output)
	case *domain.GrantCreatorRolePayload:
		return p.setCreatorRole(ctx, "grantCreatorRole", pl.CreatorRole)
	case *domain.RevokeCreatorRolePayload:
		return p.setCreatorRole(ctx, "revokeCreatorRole", pl.CreatorRole)
	case *domain.VerifyAssetPayload:
		return p.verifyAsset(ctx, pl)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedEventType, payload.EventType())
	}
}

// finalize records the terminal status once and publishes the matching event
func (p *Processor) finalize(
	ctx context.Context,
	logger *slog.Logger,
	job *domain.Job,
	receipt *types.Receipt,
	output domain.EventOutput,
	runErr error,
	started time.Time,
) error {
	status := domain.StatusSuccess
	var errMsg *string
	if runErr != nil {
		status = domain.StatusError
		msg := runErr.Error()
		errMsg = &msg

		attrs := []any{slog.String("error", msg)}
		var reverted *chain.RevertedError
		if errors.As(runErr, &reverted) {
			attrs = append(attrs, slog.String("tx_hash", reverted.TxHash.Hex()))
		}
		logger.Error("Job failed", attrs...)
	}

	finalizedAt, err := p.store.FinalizeJob(ctx, job.ID, status, errMsg)
	if err != nil {
		if errors.Is(err, domain.ErrJobFinalized) {
			logger.Warn("Job was finalized concurrently, keeping the first outcome")
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("failed to finalize job %s: %w", job.ID, err))
	}

	metrics.JobFinalized(string(job.EventType), string(status), p.now().Sub(started))

	var event *domain.TransactionFinalizedEvent
	if runErr == nil {
		event = domain.NewConfirmedEvent(job, finalizedAt, receipt.TxHash.Hex(), receipt.BlockNumber.Uint64(), output)
		logger.Info("Job succeeded",
			slog.String("tx_hash", receipt.TxHash.Hex()),
			slog.Uint64("block_number", receipt.BlockNumber.Uint64()),
		)
	} else {
		event = domain.NewFailedEvent(job, finalizedAt, *errMsg)
	}

	// the terminal status stands even if the event never leaves
	if err := p.publisher.PublishTransactionFinalized(ctx, event); err != nil {
		logger.Error("Failed to publish finalized event",
			slog.String("final_status", string(event.FinalStatus)),
			slog.String("error", err.Error()),
		)
	}

	return nil
}
