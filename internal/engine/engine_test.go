package engine

import (
	"context"
	"testing"
	"time"

	"wallet-engine/internal/bucketing"
	"wallet-engine/internal/config"
	"wallet-engine/internal/hashing"
	"wallet-engine/internal/identity"
	"wallet-engine/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	alicePhone = "+14155550100"
	alicePIN   = "1234"
	bobPhone   = "+14155550200"
	bobPIN     = "4321"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Identity:    config.IdentityConfig{Salt: "test-salt"},
		Auth: config.AuthConfig{
			MaxFailedAttempts: 5,
			LockoutDuration:   time.Hour,
		},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
			Pepper:            "test-pepper",
		},
		Ledger: config.LedgerConfig{
			MaxHistoryPerAccount: 1000,
			TimeBucketSeconds:    3600,
		},
		Bucketing: config.BucketingConfig{UserBuckets: 64, EventBuckets: 16},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := testConfig()
	e := New(cfg, identity.NewDeriver(cfg), hashing.NewHasher(cfg), bucketing.NewManager(cfg), zap.NewNop())
	e.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0).UTC() })
	return e
}

func TestRegisterAndAuthenticate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id, err := e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)
	assert.False(t, id.IsZero())

	acct, err := e.Authenticate(ctx, alicePhone, alicePIN)
	require.NoError(t, err)
	assert.Equal(t, id.String(), acct.Identity)
	assert.False(t, acct.Locked)
	assert.Zero(t, acct.FailedAttempts)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)

	_, err = e.Register(ctx, alicePhone, alicePIN)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Same phone with a different PIN is still one phone, one wallet.
	_, err = e.Register(ctx, alicePhone, "9999")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRegisterRejectsMalformedInput(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Register(ctx, "bad", alicePIN)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.Register(ctx, alicePhone, "bad")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAuthenticateUnknownAccount(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Authenticate(context.Background(), alicePhone, alicePIN)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLockoutStateMachine(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0).UTC()
	e.SetClock(func() time.Time { return now })

	_, err := e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)

	// Five wrong PINs against the registered phone advance the counter.
	for i := 1; i <= 5; i++ {
		_, err := e.Authenticate(ctx, alicePhone, "9999")
		assert.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i)
	}

	// The correct PIN is rejected while the lockout holds.
	_, err = e.Authenticate(ctx, alicePhone, alicePIN)
	assert.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, 1, e.Stats(ctx).LockedAccounts)

	// So is every further wrong PIN, without a credential comparison.
	_, err = e.Authenticate(ctx, alicePhone, "9999")
	assert.ErrorIs(t, err, ErrLocked)

	// Lockout expires after the configured window.
	now = now.Add(time.Hour + time.Minute)
	snap, err := e.Authenticate(ctx, alicePhone, alicePIN)
	require.NoError(t, err)
	assert.Zero(t, snap.FailedAttempts)
	assert.False(t, snap.Locked)
	assert.Nil(t, snap.LockoutUntil)
}

func TestWrongPINReturnsInvalidCredentials(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id, err := e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)

	_, err = e.Authenticate(ctx, alicePhone, "9999")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	acct, ok := e.accounts.Get(id)
	require.True(t, ok)
	assert.Equal(t, 1, acct.FailedAttempts)

	// An unregistered phone is NotFound and touches no counter.
	_, err = e.Authenticate(ctx, bobPhone, alicePIN)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, acct.FailedAttempts)
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id, err := e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)

	acct, ok := e.accounts.Get(id)
	require.True(t, ok)
	acct.FailedAttempts = 3

	snap, err := e.Authenticate(ctx, alicePhone, alicePIN)
	require.NoError(t, err)
	assert.Zero(t, snap.FailedAttempts)
}

func TestExistsSemantics(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	exists, err := e.Exists(ctx, alicePhone, alicePIN)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)

	exists, err = e.Exists(ctx, alicePhone, alicePIN)
	require.NoError(t, err)
	assert.True(t, exists)

	// A wrong PIN still reports plain false.
	exists, err = e.Exists(ctx, alicePhone, "9999")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDepositAndWithdraw(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)

	receipt, err := e.Deposit(ctx, alicePhone, alicePIN, store.AssetPrimary, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.SequenceID)
	assert.Equal(t, store.KindDeposit, receipt.Kind)
	assert.Equal(t, int64(100), receipt.BalanceAfter)

	receipt, err = e.Withdraw(ctx, alicePhone, alicePIN, store.AssetPrimary, 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), receipt.SequenceID)
	assert.Equal(t, int64(60), receipt.BalanceAfter)

	balance, err := e.GetBalance(ctx, alicePhone, alicePIN, store.AssetPrimary)
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance)

	// The secondary asset is tracked independently.
	balance, err = e.GetBalance(ctx, alicePhone, alicePIN, store.AssetSecondary)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)

	_, err = e.Deposit(ctx, alicePhone, alicePIN, store.AssetPrimary, 50)
	require.NoError(t, err)

	_, err = e.Withdraw(ctx, alicePhone, alicePIN, store.AssetPrimary, 51)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// A failed withdrawal must leave the balance and ledger untouched.
	balance, err := e.GetBalance(ctx, alicePhone, alicePIN, store.AssetPrimary)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)
	assert.Equal(t, 1, e.Stats(ctx).Transactions)
}

func TestAmountValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)

	_, err = e.Deposit(ctx, alicePhone, alicePIN, store.AssetPrimary, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = e.Deposit(ctx, alicePhone, alicePIN, store.AssetPrimary, -5)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = e.Deposit(ctx, alicePhone, alicePIN, store.Asset(99), 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTransfer(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)
	_, err = e.Register(ctx, bobPhone, bobPIN)
	require.NoError(t, err)

	_, err = e.Deposit(ctx, alicePhone, alicePIN, store.AssetPrimary, 100)
	require.NoError(t, err)

	receipt, err := e.Transfer(ctx, alicePhone, alicePIN, store.AssetPrimary, 30, bobPhone)
	require.NoError(t, err)
	assert.Equal(t, store.KindTransferOut, receipt.Kind)
	assert.NotEmpty(t, receipt.TransferID)
	assert.Equal(t, int64(70), receipt.BalanceAfter)

	senderBalance, err := e.GetBalance(ctx, alicePhone, alicePIN, store.AssetPrimary)
	require.NoError(t, err)
	assert.Equal(t, int64(70), senderBalance)

	recipientBalance, err := e.GetBalance(ctx, bobPhone, bobPIN, store.AssetPrimary)
	require.NoError(t, err)
	assert.Equal(t, int64(30), recipientBalance)

	// One transfer, two linked ledger entries.
	page, err := e.ListTransactions(ctx, bobPhone, bobPIN, 1, 10, store.SortByTimestamp, store.OrderAsc)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, store.KindTransferIn, page.Items[0].Kind)
	assert.Equal(t, receipt.TransferID, page.Items[0].TransferID)
	assert.Equal(t, receipt.SequenceID+1, page.Items[0].SequenceID)
}

func TestTransferErrors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)
	_, err = e.Deposit(ctx, alicePhone, alicePIN, store.AssetPrimary, 100)
	require.NoError(t, err)

	// Unregistered recipients are rejected, never auto-created.
	_, err = e.Transfer(ctx, alicePhone, alicePIN, store.AssetPrimary, 10, bobPhone)
	assert.ErrorIs(t, err, ErrRecipientNotFound)

	_, err = e.Transfer(ctx, alicePhone, alicePIN, store.AssetPrimary, 10, alicePhone)
	assert.ErrorIs(t, err, ErrSelfTransfer)

	_, err = e.Register(ctx, bobPhone, bobPIN)
	require.NoError(t, err)
	_, err = e.Transfer(ctx, alicePhone, alicePIN, store.AssetPrimary, 101, bobPhone)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Failed transfers leave both sides untouched.
	balance, err := e.GetBalance(ctx, alicePhone, alicePIN, store.AssetPrimary)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
	balance, err = e.GetBalance(ctx, bobPhone, bobPIN, store.AssetPrimary)
	require.NoError(t, err)
	assert.Zero(t, balance)
	assert.Equal(t, 1, e.Stats(ctx).Transactions)
}

func TestListTransactionsPagination(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0).UTC()
	e.SetClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})

	_, err := e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)

	for i := 0; i < 105; i++ {
		_, err := e.Deposit(ctx, alicePhone, alicePIN, store.AssetPrimary, int64(i+1))
		require.NoError(t, err)
	}

	page, err := e.ListTransactions(ctx, alicePhone, alicePIN, 2, 50, store.SortByTimestamp, store.OrderAsc)
	require.NoError(t, err)
	assert.Len(t, page.Items, 50)
	assert.Equal(t, 105, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)

	empty, err := e.ListTransactions(ctx, alicePhone, alicePIN, 10, 50, store.SortByTimestamp, store.OrderAsc)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Equal(t, 105, empty.TotalCount)
}

func TestStatsAndHealth(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)
	_, err = e.Register(ctx, bobPhone, bobPIN)
	require.NoError(t, err)
	_, err = e.Deposit(ctx, alicePhone, alicePIN, store.AssetPrimary, 10)
	require.NoError(t, err)

	stats := e.Stats(ctx)
	assert.Equal(t, 2, stats.Accounts)
	assert.Equal(t, 2, stats.Wallets)
	assert.Equal(t, 1, stats.Transactions)
	assert.Zero(t, stats.LockedAccounts)
	assert.Equal(t, uint64(1), stats.SequenceHead)

	health := e.HealthCheck(ctx)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 2, health.StoreSizes["accounts"])
	assert.Equal(t, 2, health.StoreSizes["directory"])
	assert.Equal(t, 1, health.StoreSizes["ledger"])
}

type recordingSink struct {
	txs []*store.Transaction
}

func (r *recordingSink) RecordTransaction(ctx context.Context, tx *store.Transaction) {
	r.txs = append(r.txs, tx)
}

func TestRecorderReceivesCompletedTransactions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	sink := &recordingSink{}
	e.SetRecorder(sink)

	_, err := e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)
	_, err = e.Register(ctx, bobPhone, bobPIN)
	require.NoError(t, err)

	_, err = e.Deposit(ctx, alicePhone, alicePIN, store.AssetPrimary, 100)
	require.NoError(t, err)
	_, err = e.Transfer(ctx, alicePhone, alicePIN, store.AssetPrimary, 25, bobPhone)
	require.NoError(t, err)

	// One record for the deposit, two for the transfer sides.
	require.Len(t, sink.txs, 3)
	assert.Equal(t, store.KindDeposit, sink.txs[0].Kind)
	assert.Equal(t, store.KindTransferOut, sink.txs[1].Kind)
	assert.Equal(t, store.KindTransferIn, sink.txs[2].Kind)

	// Failed operations never reach the recorder.
	_, err = e.Withdraw(ctx, alicePhone, alicePIN, store.AssetPrimary, 1_000_000)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Len(t, sink.txs, 3)
}
