package processor

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/chain-job-service/internal/chain"
	"github.com/cuongbtq/chain-job-service/internal/domain"
	"github.com/cuongbtq/chain-job-service/internal/kms"
	"github.com/cuongbtq/chain-job-service/shared/logger"
)

var (
	factoryAddress     = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	assetRegistryAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	distributorAddress = common.HexToAddress("0x00000000000000000000000000000000000000f3")
	stablecoinAddress  = common.HexToAddress("0x00000000000000000000000000000000000000f4")
	siteAddress        = common.HexToAddress("0x00000000000000000000000000000000000000c1")

	finalizedAt = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
)

// fakeStore is an in-memory job store honoring the terminal-state guard
// and the claim lease. Leases never expire here.
type fakeStore struct {
	mu          sync.Mutex
	jobs        map[string]*domain.Job
	holders     map[string]string
	getErr      error
	claimErr    error
	finalizeErr error
	finalizes   int
	releases    int
}

func (s *fakeStore) GetJobByID(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return nil, s.getErr
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *fakeStore) ClaimJob(_ context.Context, jobID, claimToken string, _ time.Duration) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claimErr != nil {
		return nil, s.claimErr
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return nil, domain.ErrJobFinalized
	}
	if job.Status == domain.StatusSubmitted && s.holders[jobID] != "" {
		return nil, domain.ErrJobClaimed
	}
	job.Status = domain.StatusSubmitted
	if s.holders == nil {
		s.holders = map[string]string{}
	}
	s.holders[jobID] = claimToken
	cp := *job
	return &cp, nil
}

func (s *fakeStore) ReleaseJob(_ context.Context, jobID, claimToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holders[jobID] == claimToken && s.jobs[jobID].Status == domain.StatusSubmitted {
		delete(s.holders, jobID)
		s.releases++
	}
	return nil
}

// hold marks jobID as claimed by a live execution other than the test's
func (s *fakeStore) hold(jobID, claimToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holders == nil {
		s.holders = map[string]string{}
	}
	s.jobs[jobID].Status = domain.StatusSubmitted
	s.holders[jobID] = claimToken
}

func (s *fakeStore) holder(jobID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holders[jobID]
}

func (s *fakeStore) FinalizeJob(_ context.Context, jobID string, status domain.Status, errorMsg *string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalizeErr != nil {
		return time.Time{}, s.finalizeErr
	}
	job, ok := s.jobs[jobID]
	if !ok || job.Status.IsTerminal() {
		return time.Time{}, domain.ErrJobFinalized
	}
	s.finalizes++
	job.Status = status
	job.ErrorMessage = errorMsg
	at := finalizedAt
	job.FinalizedAt = &at
	return finalizedAt, nil
}

func (s *fakeStore) job(jobID string) domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[jobID]
}

// sentTx is one submitted transaction as seen by the fake chain
type sentTx struct {
	contract chain.ContractName
	address  common.Address
	method   string
	from     common.Address
	nonce    *uint64
	args     []any
	tx       *types.Transaction
}

// fakeChain records submissions in order and mines them instantly
type fakeChain struct {
	admin  chain.Signer
	faucet chain.Signer

	nonces      map[common.Address]uint64
	calls       map[string][]any
	logs        map[string][]*types.Log
	reverts     map[string]bool
	transactErr map[string]error

	sent  []sentTx
	steps []string
	block uint64
}

func newFakeChain(admin, faucet chain.Signer) *fakeChain {
	return &fakeChain{
		admin:       admin,
		faucet:      faucet,
		nonces:      map[common.Address]uint64{},
		calls:       map[string][]any{},
		logs:        map[string][]*types.Log{},
		reverts:     map[string]bool{},
		transactErr: map[string]error{},
		block:       100,
	}
}

func (f *fakeChain) AdminSigner() chain.Signer  { return f.admin }
func (f *fakeChain) FaucetSigner() chain.Signer { return f.faucet }

func (f *fakeChain) GetContract(name chain.ContractName, address common.Address, signer chain.Signer) (chain.Contract, error) {
	return &fakeContract{chain: f, name: name, address: address, signer: signer}, nil
}

func (f *fakeChain) PendingNonceAt(_ context.Context, address common.Address) (uint64, error) {
	f.steps = append(f.steps, "nonce")
	return f.nonces[address], nil
}

func (f *fakeChain) Transfer(_ context.Context, from chain.Signer, to common.Address, amount *big.Int, nonce uint64) (*types.Transaction, error) {
	n := nonce
	return f.submit("native", to, "nativeTransfer", from, &n, []any{to, amount})
}

func (f *fakeChain) submit(name chain.ContractName, address common.Address, method string, from chain.Signer, nonce *uint64, args []any) (*types.Transaction, error) {
	if err := f.transactErr[method]; err != nil {
		return nil, err
	}

	var n uint64
	if nonce != nil {
		n = *nonce
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce: n,
		To:    &address,
		Value: big.NewInt(int64(len(f.sent) + 1)),
		Data:  []byte(method),
	})

	f.sent = append(f.sent, sentTx{
		contract: name,
		address:  address,
		method:   method,
		from:     from.Address(),
		nonce:    nonce,
		args:     args,
		tx:       tx,
	})
	f.steps = append(f.steps, "send:"+method)
	return tx, nil
}

func (f *fakeChain) WaitMined(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
	for _, s := range f.sent {
		if s.tx.Hash() != tx.Hash() {
			continue
		}

		f.steps = append(f.steps, "mined:"+s.method)
		f.block++
		receipt := &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			TxHash:      tx.Hash(),
			BlockNumber: new(big.Int).SetUint64(f.block),
			Logs:        f.logs[s.method],
		}
		if f.reverts[s.method] {
			receipt.Status = types.ReceiptStatusFailed
			return receipt, &chain.RevertedError{TxHash: tx.Hash(), BlockNumber: f.block}
		}
		return receipt, nil
	}
	return nil, fmt.Errorf("unknown transaction %s", tx.Hash().Hex())
}

// sentMethods lists submitted methods in order
func (f *fakeChain) sentMethods() []string {
	methods := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		methods = append(methods, s.method)
	}
	return methods
}

func (f *fakeChain) lastSent(method string) (sentTx, bool) {
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].method == method {
			return f.sent[i], true
		}
	}
	return sentTx{}, false
}

type fakeContract struct {
	chain   *fakeChain
	name    chain.ContractName
	address common.Address
	signer  chain.Signer
}

func (c *fakeContract) Name() chain.ContractName { return c.name }
func (c *fakeContract) Address() common.Address  { return c.address }

func (c *fakeContract) Call(_ context.Context, method string, _ ...any) ([]any, error) {
	result, ok := c.chain.calls[method]
	if !ok {
		return nil, fmt.Errorf("execution reverted: %s", method)
	}
	return result, nil
}

func (c *fakeContract) Transact(_ context.Context, nonce *uint64, method string, args ...any) (*types.Transaction, error) {
	if c.signer.IsZero() {
		return nil, chain.ErrReadOnlyContract
	}
	return c.chain.submit(c.name, c.address, method, c.signer, nonce, args)
}

func (c *fakeContract) ParseEvent(receipt *types.Receipt, event string) (map[string]any, error) {
	parsed, err := chain.ABI(c.name)
	if err != nil {
		return nil, err
	}
	return chain.DecodeEvent(parsed, event, &c.address, receipt.Logs)
}

type fakeKeys struct {
	users    map[string]string
	verifier string
	err      error
}

func (k *fakeKeys) UserPrivateKey(_ context.Context, userID string) (kms.PrivateKey, error) {
	if k.err != nil {
		return kms.PrivateKey{}, k.err
	}
	key, ok := k.users[userID]
	if !ok {
		return kms.PrivateKey{}, fmt.Errorf("%w: kms returned status 404", kms.ErrKeyUnavailable)
	}
	return kms.NewPrivateKey(key), nil
}

func (k *fakeKeys) VerifierPrivateKey(_ context.Context) (kms.PrivateKey, error) {
	if k.err != nil {
		return kms.PrivateKey{}, k.err
	}
	return kms.NewPrivateKey(k.verifier), nil
}

type fakePublisher struct {
	events []*domain.TransactionFinalizedEvent
	err    error
}

func (p *fakePublisher) PublishTransactionFinalized(_ context.Context, event *domain.TransactionFinalizedEvent) error {
	p.events = append(p.events, event)
	return p.err
}

// wallet is a generated key pair; key is hex without 0x
type wallet struct {
	key     string
	address common.Address
	signer  chain.Signer
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{
		key:     hex.EncodeToString(crypto.FromECDSA(key)),
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  chain.NewSigner(key),
	}
}

type harness struct {
	processor *Processor
	store     *fakeStore
	chain     *fakeChain
	keys      *fakeKeys
	publisher *fakePublisher

	admin, faucet, user, principal, verifier wallet
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		admin:     newWallet(t),
		faucet:    newWallet(t),
		user:      newWallet(t),
		principal: newWallet(t),
		verifier:  newWallet(t),
		store:     &fakeStore{jobs: map[string]*domain.Job{}},
		publisher: &fakePublisher{},
	}
	h.chain = newFakeChain(h.admin.signer, h.faucet.signer)
	h.keys = &fakeKeys{
		users: map[string]string{
			"user-1":      h.user.key,
			"principal-1": "0x" + h.principal.key,
		},
		verifier: h.verifier.key,
	}

	registry := chain.NewRegistry(chain.RegistryConfig{
		OrganizationFactory: factoryAddress.Hex(),
		AssetRegistry:       assetRegistryAddr.Hex(),
		RevenueDistributor:  distributorAddress.Hex(),
		Stablecoin:          stablecoinAddress.Hex(),
	})

	h.processor = New(&Config{
		Logger:               logger.NewNop(),
		Store:                h.store,
		Chain:                h.chain,
		Keys:                 h.keys,
		Registry:             registry,
		Publisher:            h.publisher,
		StablecoinDecimals:   6,
		FundNativeAmount:     decimal.RequireFromString("0.05"),
		FundStablecoinAmount: decimal.RequireFromString("100"),
	})

	return h
}

func (h *harness) addJob(eventType domain.EventType, payload string) string {
	id := fmt.Sprintf("00000000-0000-4000-8000-%012d", len(h.store.jobs)+1)
	h.store.jobs[id] = &domain.Job{
		ID:             id,
		IdempotencyKey: "key-" + id,
		EventType:      eventType,
		Payload:        []byte(payload),
		Status:         domain.StatusQueued,
		CreatedAt:      time.Date(2025, 3, 4, 5, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2025, 3, 4, 5, 0, 0, 0, time.UTC),
	}
	return id
}

func (h *harness) lastEvent(t *testing.T) *domain.TransactionFinalizedEvent {
	t.Helper()
	require.NotEmpty(t, h.publisher.events)
	return h.publisher.events[len(h.publisher.events)-1]
}
