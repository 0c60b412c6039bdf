package store

import (
	"testing"
	"time"

	"wallet-engine/internal/bucketing"
	"wallet-engine/internal/config"
	"wallet-engine/internal/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLedger(t *testing.T, historyCap int) *LedgerStore {
	t.Helper()
	cfg := &config.Config{
		Ledger: config.LedgerConfig{
			MaxHistoryPerAccount: historyCap,
			TimeBucketSeconds:    3600,
		},
		Bucketing: config.BucketingConfig{UserBuckets: 64, EventBuckets: 16},
	}
	return NewLedgerStore(cfg, bucketing.NewManager(cfg))
}

func testIdentity(b byte) identity.Identity {
	var id identity.Identity
	id[0] = b
	return id
}

func depositAt(seq uint64, owner identity.Identity, amount int64, ts time.Time) *Transaction {
	return &Transaction{
		SequenceID: seq,
		Kind:       KindDeposit,
		Asset:      AssetPrimary,
		Amount:     amount,
		Status:     StatusCompleted,
		Timestamp:  ts,
		To:         owner,
	}
}

func TestLedgerAppendValidation(t *testing.T) {
	l := testLedger(t, 1000)
	owner := testIdentity(1)
	now := time.Unix(1_700_000_000, 0).UTC()

	require.NoError(t, l.Append(depositAt(1, owner, 100, now)))

	err := l.Append(depositAt(1, owner, 100, now))
	assert.ErrorContains(t, err, "duplicate sequence id")

	err = l.Append(&Transaction{SequenceID: 2, Asset: AssetPrimary, Amount: 1, Timestamp: now})
	assert.ErrorContains(t, err, "invalid transaction kind")

	err = l.Append(&Transaction{SequenceID: 2, Kind: KindDeposit, Amount: 1, Timestamp: now})
	assert.ErrorContains(t, err, "invalid transaction asset")

	assert.Equal(t, 1, l.Len())
}

func TestLedgerAllPreservesAppendOrder(t *testing.T) {
	l := testLedger(t, 1000)
	owner := testIdentity(1)
	now := time.Unix(1_700_000_000, 0).UTC()

	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, l.Append(depositAt(seq, owner, int64(seq), now)))
	}

	all := l.All()
	require.Len(t, all, 5)
	for i, tx := range all {
		assert.Equal(t, uint64(i+1), tx.SequenceID)
	}
}

func TestListByAccountPagination(t *testing.T) {
	l := testLedger(t, 1000)
	owner := testIdentity(1)
	base := time.Unix(1_700_000_000, 0).UTC()

	for seq := uint64(1); seq <= 105; seq++ {
		require.NoError(t, l.Append(depositAt(seq, owner, int64(seq), base.Add(time.Duration(seq)*time.Second))))
	}

	page, err := l.ListByAccount(owner, 2, 50, SortByTimestamp, OrderAsc)
	require.NoError(t, err)
	assert.Len(t, page.Items, 50)
	assert.Equal(t, 105, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, uint64(51), page.Items[0].SequenceID)
	assert.Equal(t, uint64(100), page.Items[49].SequenceID)

	last, err := l.ListByAccount(owner, 3, 50, SortByTimestamp, OrderAsc)
	require.NoError(t, err)
	assert.Len(t, last.Items, 5)

	// A page past the end keeps the totals but carries no items.
	empty, err := l.ListByAccount(owner, 10, 50, SortByTimestamp, OrderAsc)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Equal(t, 105, empty.TotalCount)
	assert.Equal(t, 3, empty.TotalPages)

	_, err = l.ListByAccount(owner, 0, 50, SortByTimestamp, OrderAsc)
	assert.Error(t, err)
	_, err = l.ListByAccount(owner, 1, 0, SortByTimestamp, OrderAsc)
	assert.Error(t, err)
}

func TestListByAccountSorting(t *testing.T) {
	l := testLedger(t, 1000)
	owner := testIdentity(1)
	base := time.Unix(1_700_000_000, 0).UTC()

	// Same amount for seq 1 and 3 to exercise tie-breaking.
	require.NoError(t, l.Append(depositAt(1, owner, 50, base.Add(3*time.Second))))
	require.NoError(t, l.Append(depositAt(2, owner, 10, base.Add(1*time.Second))))
	require.NoError(t, l.Append(depositAt(3, owner, 50, base.Add(2*time.Second))))

	byAmountDesc, err := l.ListByAccount(owner, 1, 10, SortByAmount, OrderDesc)
	require.NoError(t, err)
	// Ties break by sequence id ascending even in descending order.
	assert.Equal(t, []uint64{1, 3, 2}, sequenceIDs(byAmountDesc.Items))

	byAmountAsc, err := l.ListByAccount(owner, 1, 10, SortByAmount, OrderAsc)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1, 3}, sequenceIDs(byAmountAsc.Items))

	byTimeDesc, err := l.ListByAccount(owner, 1, 10, SortByTimestamp, OrderDesc)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3, 2}, sequenceIDs(byTimeDesc.Items))
}

func sequenceIDs(items []*Transaction) []uint64 {
	out := make([]uint64, len(items))
	for i, tx := range items {
		out[i] = tx.SequenceID
	}
	return out
}

func TestByAccountIndexCapKeepsLedgerIntact(t *testing.T) {
	l := testLedger(t, 10)
	owner := testIdentity(1)
	base := time.Unix(1_700_000_000, 0).UTC()

	for seq := uint64(1); seq <= 25; seq++ {
		require.NoError(t, l.Append(depositAt(seq, owner, int64(seq), base)))
	}

	// The index is trimmed to the newest entries...
	assert.Equal(t, 10, l.CountByAccount(owner))
	page, err := l.ListByAccount(owner, 1, 100, SortByTimestamp, OrderAsc)
	require.NoError(t, err)
	assert.Equal(t, []uint64{16, 17, 18, 19, 20, 21, 22, 23, 24, 25}, sequenceIDs(page.Items))

	// ...but the ledger itself never loses records.
	assert.Equal(t, 25, l.Len())
	_, ok := l.Get(1)
	assert.True(t, ok)
}

func TestListByTimeBucketAndKind(t *testing.T) {
	l := testLedger(t, 1000)
	owner := testIdentity(1)
	base := time.Unix(1_700_000_000, 0).UTC().Truncate(time.Hour)

	require.NoError(t, l.Append(depositAt(1, owner, 10, base.Add(5*time.Minute))))
	require.NoError(t, l.Append(depositAt(2, owner, 20, base.Add(30*time.Minute))))
	require.NoError(t, l.Append(depositAt(3, owner, 30, base.Add(90*time.Minute))))
	require.NoError(t, l.Append(&Transaction{
		SequenceID: 4,
		Kind:       KindWithdrawal,
		Asset:      AssetPrimary,
		Amount:     5,
		Status:     StatusCompleted,
		Timestamp:  base.Add(10 * time.Minute),
		From:       owner,
	}))

	firstBucket := l.ListByTimeBucket(base.Unix())
	assert.Equal(t, []uint64{1, 2, 4}, sequenceIDs(firstBucket))

	secondBucket := l.ListByTimeBucket(base.Add(time.Hour).Unix())
	assert.Equal(t, []uint64{3}, sequenceIDs(secondBucket))

	deposits := l.ListByKind(KindDeposit)
	assert.Equal(t, []uint64{1, 2, 3}, sequenceIDs(deposits))
	withdrawals := l.ListByKind(KindWithdrawal)
	assert.Equal(t, []uint64{4}, sequenceIDs(withdrawals))
	assert.Empty(t, l.ListByKind(KindTransferOut))
}

func TestLedgerIndexRoundTrip(t *testing.T) {
	l := testLedger(t, 1000)
	owner := testIdentity(1)
	base := time.Unix(1_700_000_000, 0).UTC()

	for seq := uint64(1); seq <= 4; seq++ {
		require.NoError(t, l.Append(depositAt(seq, owner, int64(seq), base)))
	}

	byAccount, byTime, byKind := l.IndexEntries()

	restored := testLedger(t, 1000)
	for _, tx := range l.All() {
		require.NoError(t, restored.RestoreRecord(tx))
	}
	restored.RestoreIndexes(byAccount, byTime, byKind)

	page, err := restored.ListByAccount(owner, 1, 10, SortByTimestamp, OrderAsc)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4}, sequenceIDs(page.Items))
	assert.Equal(t, 4, restored.Len())
}
