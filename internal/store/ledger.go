package store

import (
	"fmt"
	"sort"
	"strconv"

	"wallet-engine/internal/bucketing"
	"wallet-engine/internal/config"
	"wallet-engine/internal/identity"
)

// SortBy selects the pagination sort key.
type SortBy uint8

const (
	SortByTimestamp SortBy = iota + 1
	SortByAmount
)

func ParseSortBy(s string) (SortBy, error) {
	switch s {
	case "", "timestamp":
		return SortByTimestamp, nil
	case "amount":
		return SortByAmount, nil
	default:
		return 0, fmt.Errorf("unknown sort key: %q", s)
	}
}

type SortOrder uint8

const (
	OrderAsc SortOrder = iota + 1
	OrderDesc
)

func ParseSortOrder(s string) (SortOrder, error) {
	switch s {
	case "", "asc":
		return OrderAsc, nil
	case "desc":
		return OrderDesc, nil
	default:
		return 0, fmt.Errorf("unknown sort order: %q", s)
	}
}

// Page is one slice of an account's transaction history.
type Page struct {
	Items      []*Transaction `json:"items"`
	TotalCount int            `json:"total_count"`
	TotalPages int            `json:"total_pages"`
}

// LedgerStore is the append-only transaction log plus its three
// secondary indices. Records are never mutated or deleted once
// appended; sequence id order is the canonical event order. Not safe
// for concurrent use; the engine serializes access.
type LedgerStore struct {
	buckets *bucketing.Manager

	records map[uint64]*Transaction
	order   []uint64

	byAccount *Index
	byTime    *Index
	byKind    *Index
}

func NewLedgerStore(cfg *config.Config, buckets *bucketing.Manager) *LedgerStore {
	return &LedgerStore{
		buckets:   buckets,
		records:   make(map[uint64]*Transaction),
		byAccount: NewIndex(cfg.Ledger.MaxHistoryPerAccount),
		byTime:    NewIndex(0),
		byKind:    NewIndex(0),
	}
}

// Append writes one transaction and updates all three indices in the
// same step. There is no deferred indexing.
func (l *LedgerStore) Append(tx *Transaction) error {
	if !tx.Kind.Valid() {
		return fmt.Errorf("invalid transaction kind: %d", tx.Kind)
	}
	if !tx.Asset.Valid() {
		return fmt.Errorf("invalid transaction asset: %d", tx.Asset)
	}
	if _, exists := l.records[tx.SequenceID]; exists {
		return fmt.Errorf("duplicate sequence id: %d", tx.SequenceID)
	}

	l.records[tx.SequenceID] = tx
	l.order = append(l.order, tx.SequenceID)

	l.byAccount.Insert(tx.Owner().String(), tx.SequenceID)
	l.byTime.Insert(strconv.FormatInt(l.buckets.TimeBucket(tx.Timestamp), 10), tx.SequenceID)
	l.byKind.Insert(tx.Kind.String(), tx.SequenceID)

	return nil
}

func (l *LedgerStore) Get(seq uint64) (*Transaction, bool) {
	tx, ok := l.records[seq]
	return tx, ok
}

func (l *LedgerStore) Len() int {
	return len(l.records)
}

// All returns every transaction in append order.
func (l *LedgerStore) All() []*Transaction {
	out := make([]*Transaction, 0, len(l.order))
	for _, seq := range l.order {
		out = append(out, l.records[seq])
	}
	return out
}

// ListByAccount resolves the by-account index, sorts the full result
// set in memory and slices out the requested page. Pages are 1-based;
// a page past the end yields an empty item list with correct totals.
func (l *LedgerStore) ListByAccount(id identity.Identity, page, pageSize int, sortBy SortBy, order SortOrder) (*Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1, got %d", page)
	}
	if pageSize < 1 {
		return nil, fmt.Errorf("page size must be >= 1, got %d", pageSize)
	}

	seqs := l.byAccount.Lookup(id.String())
	items := make([]*Transaction, 0, len(seqs))
	for _, seq := range seqs {
		if tx, ok := l.records[seq]; ok {
			items = append(items, tx)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return lessTransaction(items[i], items[j], sortBy, order)
	})

	total := len(items)
	totalPages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	if start >= total {
		return &Page{Items: []*Transaction{}, TotalCount: total, TotalPages: totalPages}, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	pageItems := make([]*Transaction, end-start)
	copy(pageItems, items[start:end])

	return &Page{Items: pageItems, TotalCount: total, TotalPages: totalPages}, nil
}

// lessTransaction orders by the selected key; ties always break by
// sequence id ascending, regardless of direction.
func lessTransaction(a, b *Transaction, sortBy SortBy, order SortOrder) bool {
	var cmp int
	switch sortBy {
	case SortByAmount:
		switch {
		case a.Amount < b.Amount:
			cmp = -1
		case a.Amount > b.Amount:
			cmp = 1
		}
	case SortByTimestamp:
		switch {
		case a.Timestamp.Before(b.Timestamp):
			cmp = -1
		case a.Timestamp.After(b.Timestamp):
			cmp = 1
		}
	}

	if cmp == 0 {
		return a.SequenceID < b.SequenceID
	}
	if order == OrderDesc {
		return cmp > 0
	}
	return cmp < 0
}

// CountByAccount reports how many entries the by-account index holds
// for id. With a configured cap this may be less than the account's
// lifetime transaction count.
func (l *LedgerStore) CountByAccount(id identity.Identity) int {
	return l.byAccount.Count(id.String())
}

// ListByTimeBucket returns the transactions recorded in the bucket
// containing the given unix timestamp, in append order.
func (l *LedgerStore) ListByTimeBucket(bucket int64) []*Transaction {
	return l.resolve(l.byTime.Lookup(strconv.FormatInt(bucket, 10)))
}

// ListByKind returns all transactions of one kind, in append order.
func (l *LedgerStore) ListByKind(kind Kind) []*Transaction {
	return l.resolve(l.byKind.Lookup(kind.String()))
}

func (l *LedgerStore) resolve(seqs []uint64) []*Transaction {
	out := make([]*Transaction, 0, len(seqs))
	for _, seq := range seqs {
		if tx, ok := l.records[seq]; ok {
			out = append(out, tx)
		}
	}
	return out
}

// IndexEntries exports all three indices as ordered entry lists.
func (l *LedgerStore) IndexEntries() (byAccount, byTime, byKind []IndexEntry) {
	return l.byAccount.Entries(), l.byTime.Entries(), l.byKind.Entries()
}

// RestoreIndexes replaces index state from serialized entries.
func (l *LedgerStore) RestoreIndexes(byAccount, byTime, byKind []IndexEntry) {
	l.byAccount.Restore(byAccount)
	l.byTime.Restore(byTime)
	l.byKind.Restore(byKind)
}

// RestoreRecord reinserts a transaction during snapshot restore without
// touching the indices, which are restored separately.
func (l *LedgerStore) RestoreRecord(tx *Transaction) error {
	if _, exists := l.records[tx.SequenceID]; exists {
		return fmt.Errorf("duplicate sequence id in snapshot: %d", tx.SequenceID)
	}
	l.records[tx.SequenceID] = tx
	l.order = append(l.order, tx.SequenceID)
	return nil
}
