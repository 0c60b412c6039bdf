package engine

import (
	"context"
	"testing"
	"time"

	"wallet-engine/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populatedEngine(t *testing.T) *Engine {
	t.Helper()
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)
	_, err = e.Register(ctx, bobPhone, bobPIN)
	require.NoError(t, err)

	_, err = e.Deposit(ctx, alicePhone, alicePIN, store.AssetPrimary, 500)
	require.NoError(t, err)
	_, err = e.Deposit(ctx, alicePhone, alicePIN, store.AssetSecondary, 70)
	require.NoError(t, err)
	_, err = e.Withdraw(ctx, alicePhone, alicePIN, store.AssetPrimary, 120)
	require.NoError(t, err)
	_, err = e.Transfer(ctx, alicePhone, alicePIN, store.AssetPrimary, 80, bobPhone)
	require.NoError(t, err)

	return e
}

func TestFlattenRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := populatedEngine(t)

	snap, err := e.Flatten()
	require.NoError(t, err)
	assert.Equal(t, store.SnapshotVersion, snap.Version)
	assert.NotEmpty(t, snap.SnapshotID)
	assert.Len(t, snap.Accounts, 2)
	assert.Len(t, snap.Wallets, 2)
	assert.Len(t, snap.Ledger, 5)
	assert.Len(t, snap.Directory, 2)

	restored := newTestEngine(t)
	require.NoError(t, restored.Restore(snap))

	// Aggregate state matches exactly.
	assert.Equal(t, e.Stats(ctx), restored.Stats(ctx))

	// Credentials survive: authentication works against restored state.
	balance, err := restored.GetBalance(ctx, alicePhone, alicePIN, store.AssetPrimary)
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance)
	balance, err = restored.GetBalance(ctx, alicePhone, alicePIN, store.AssetSecondary)
	require.NoError(t, err)
	assert.Equal(t, int64(70), balance)
	balance, err = restored.GetBalance(ctx, bobPhone, bobPIN, store.AssetPrimary)
	require.NoError(t, err)
	assert.Equal(t, int64(80), balance)

	// History order and pagination survive the round trip.
	page, err := restored.ListTransactions(ctx, alicePhone, alicePIN, 1, 10, store.SortByTimestamp, store.OrderAsc)
	require.NoError(t, err)
	original, err := e.ListTransactions(ctx, alicePhone, alicePIN, 1, 10, store.SortByTimestamp, store.OrderAsc)
	require.NoError(t, err)
	require.Equal(t, len(original.Items), len(page.Items))
	for i := range original.Items {
		assert.Equal(t, original.Items[i].SequenceID, page.Items[i].SequenceID)
		assert.Equal(t, original.Items[i].Kind, page.Items[i].Kind)
	}

	// The directory survives: transfers to known phones still resolve.
	_, err = restored.Transfer(ctx, alicePhone, alicePIN, store.AssetPrimary, 10, bobPhone)
	require.NoError(t, err)
}

func TestRestoreContinuesSequenceNumbering(t *testing.T) {
	ctx := context.Background()
	e := populatedEngine(t)
	head := e.Stats(ctx).SequenceHead

	snap, err := e.Flatten()
	require.NoError(t, err)

	restored := newTestEngine(t)
	require.NoError(t, restored.Restore(snap))

	receipt, err := restored.Deposit(ctx, alicePhone, alicePIN, store.AssetPrimary, 1)
	require.NoError(t, err)
	assert.Equal(t, head+1, receipt.SequenceID)
}

func TestRestoreGuards(t *testing.T) {
	e := populatedEngine(t)

	snap, err := e.Flatten()
	require.NoError(t, err)

	// Restore refuses to overwrite live state.
	err = e.Restore(snap)
	assert.ErrorContains(t, err, "non-empty engine")

	// Version mismatches are rejected outright.
	bad := *snap
	bad.Version = store.SnapshotVersion + 1
	err = newTestEngine(t).Restore(&bad)
	assert.ErrorContains(t, err, "unsupported snapshot version")
}

func TestFlattenIsDeepCopy(t *testing.T) {
	ctx := context.Background()
	e := populatedEngine(t)

	snap, err := e.Flatten()
	require.NoError(t, err)
	ledgerLen := len(snap.Ledger)

	// Mutating the engine after Flatten must not change the snapshot.
	_, err = e.Deposit(ctx, alicePhone, alicePIN, store.AssetPrimary, 5)
	require.NoError(t, err)
	assert.Len(t, snap.Ledger, ledgerLen)

	restored := newTestEngine(t)
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, ledgerLen, restored.Stats(ctx).Transactions)
}

func TestSnapshotTablesPreserveInsertionOrder(t *testing.T) {
	e := populatedEngine(t)

	snap, err := e.Flatten()
	require.NoError(t, err)

	// Ledger keys are sequence ids in append order.
	expected := []string{"1", "2", "3", "4", "5"}
	keys := make([]string, 0, len(snap.Ledger))
	for _, kv := range snap.Ledger {
		keys = append(keys, kv.Key)
	}
	assert.Equal(t, expected, keys)

	// Account order matches registration order.
	accounts := e.accounts.All()
	require.Len(t, snap.Accounts, len(accounts))
	for i, kv := range snap.Accounts {
		assert.Equal(t, accounts[i].Identity.String(), kv.Key)
	}
}

func TestRestoredLockoutStillHolds(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	now := time.Unix(1_700_000_000, 0).UTC()
	e.SetClock(func() time.Time { return now })

	id, err := e.Register(ctx, alicePhone, alicePIN)
	require.NoError(t, err)

	acct, ok := e.accounts.Get(id)
	require.True(t, ok)
	until := now.Add(30 * time.Minute)
	acct.FailedAttempts = 5
	acct.LockoutUntil = &until

	snap, err := e.Flatten()
	require.NoError(t, err)

	restored := newTestEngine(t)
	restored.SetClock(func() time.Time { return now })
	require.NoError(t, restored.Restore(snap))

	_, err = restored.Authenticate(ctx, alicePhone, alicePIN)
	assert.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, 1, restored.Stats(ctx).LockedAccounts)
}
