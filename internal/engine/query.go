package engine

import (
	"context"

	"wallet-engine/internal/store"
)

// ListTransactions pages through the authenticated account's history.
func (e *Engine) ListTransactions(ctx context.Context, phone, pin string, page, pageSize int, sortBy store.SortBy, order store.SortOrder) (*store.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := e.authenticateLocked(phone, pin)
	if err != nil {
		return nil, err
	}

	return e.ledger.ListByAccount(acct.Identity, page, pageSize, sortBy, order)
}

// Stats are aggregate, non-sensitive counts. No authentication is
// required: nothing here is keyed to any identity.
type Stats struct {
	Accounts       int    `json:"accounts"`
	Wallets        int    `json:"wallets"`
	Transactions   int    `json:"transactions"`
	LockedAccounts int    `json:"locked_accounts"`
	SequenceHead   uint64 `json:"sequence_head"`
}

func (e *Engine) Stats(ctx context.Context) *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.clock().UTC()
	locked := 0
	for _, acct := range e.accounts.All() {
		if acct.Locked(now) {
			locked++
		}
	}

	return &Stats{
		Accounts:       e.accounts.Len(),
		Wallets:        e.wallets.Len(),
		Transactions:   e.ledger.Len(),
		LockedAccounts: locked,
		SequenceHead:   e.sequenceCounter,
	}
}

// Health reports liveness and store sizes.
type Health struct {
	Status     string         `json:"status"`
	StoreSizes map[string]int `json:"store_sizes"`
}

func (e *Engine) HealthCheck(ctx context.Context) *Health {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return &Health{
		Status: "healthy",
		StoreSizes: map[string]int{
			"accounts":  e.accounts.Len(),
			"wallets":   e.wallets.Len(),
			"ledger":    e.ledger.Len(),
			"directory": e.directory.Len(),
		},
	}
}
