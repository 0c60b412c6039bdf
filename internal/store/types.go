package store

import (
	"fmt"
	"time"

	"wallet-engine/internal/hashing"
	"wallet-engine/internal/identity"
)

// Asset identifies one of the two balances a wallet carries.
type Asset uint8

const (
	AssetPrimary Asset = iota + 1
	AssetSecondary
)

func (a Asset) String() string {
	switch a {
	case AssetPrimary:
		return "primary"
	case AssetSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

func (a Asset) Valid() bool {
	return a == AssetPrimary || a == AssetSecondary
}

// Assets lists every supported asset in canonical order.
func Assets() []Asset {
	return []Asset{AssetPrimary, AssetSecondary}
}

func ParseAsset(s string) (Asset, error) {
	switch s {
	case "primary":
		return AssetPrimary, nil
	case "secondary":
		return AssetSecondary, nil
	default:
		return 0, fmt.Errorf("unknown asset: %q", s)
	}
}

func (a Asset) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("unknown asset: %d", a)
	}
	return []byte(a.String()), nil
}

func (a *Asset) UnmarshalText(text []byte) error {
	parsed, err := ParseAsset(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Kind is the closed set of transaction kinds. Every consumption site
// (index updates, mirror mapping, owner resolution) switches over it
// exhaustively.
type Kind uint8

const (
	KindDeposit Kind = iota + 1
	KindWithdrawal
	KindTransferOut
	KindTransferIn
)

func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "deposit"
	case KindWithdrawal:
		return "withdrawal"
	case KindTransferOut:
		return "transfer_out"
	case KindTransferIn:
		return "transfer_in"
	default:
		return "unknown"
	}
}

func (k Kind) Valid() bool {
	return k >= KindDeposit && k <= KindTransferIn
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "deposit":
		return KindDeposit, nil
	case "withdrawal":
		return KindWithdrawal, nil
	case "transfer_out":
		return KindTransferOut, nil
	case "transfer_in":
		return KindTransferIn, nil
	default:
		return 0, fmt.Errorf("unknown transaction kind: %q", s)
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown transaction kind: %d", k)
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Status is terminal at creation: synchronous operations never expose a
// pending state.
type Status uint8

const (
	StatusCompleted Status = iota + 1
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if s != StatusCompleted && s != StatusFailed {
		return nil, fmt.Errorf("unknown transaction status: %d", s)
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "completed":
		*s = StatusCompleted
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown transaction status: %q", text)
	}
	return nil
}

// Account is the authentication record for one identity.
type Account struct {
	Identity         identity.Identity  `json:"identity"`
	Credential       hashing.Credential `json:"credential"`
	CreatedAt        time.Time          `json:"created_at"`
	LastActivity     time.Time          `json:"last_activity"`
	FailedAttempts   int                `json:"failed_attempts"`
	LockoutUntil     *time.Time         `json:"lockout_until,omitempty"`
	TransactionCount int                `json:"transaction_count"`
}

// Locked reports whether the account is inside a lockout window.
func (a *Account) Locked(now time.Time) bool {
	return a.LockoutUntil != nil && now.Before(*a.LockoutUntil)
}

// Balance tracks one asset inside a wallet. Available never goes
// negative; the protocol checks sufficiency before every debit.
type Balance struct {
	Available       int64 `json:"available"`
	Reserved        int64 `json:"reserved"`
	LifetimeInflow  int64 `json:"lifetime_inflow"`
	LifetimeOutflow int64 `json:"lifetime_outflow"`
}

// Wallet is the balance record for one identity, 1:1 with Account.
type Wallet struct {
	Identity          identity.Identity  `json:"identity"`
	Balances          map[Asset]*Balance `json:"balances"`
	LastBalanceUpdate time.Time          `json:"last_balance_update"`
}

// NewWallet creates a wallet with zero balances for every asset.
func NewWallet(id identity.Identity, now time.Time) *Wallet {
	balances := make(map[Asset]*Balance, len(Assets()))
	for _, asset := range Assets() {
		balances[asset] = &Balance{}
	}
	return &Wallet{
		Identity:          id,
		Balances:          balances,
		LastBalanceUpdate: now,
	}
}

func (w *Wallet) Balance(asset Asset) *Balance {
	if b, ok := w.Balances[asset]; ok {
		return b
	}
	// Defensive for wallets restored from older snapshots.
	b := &Balance{}
	w.Balances[asset] = b
	return b
}

// Transaction is one immutable ledger entry. Transfers produce two
// entries, one per side, linked by TransferID.
type Transaction struct {
	SequenceID uint64            `json:"sequence_id"`
	Kind       Kind              `json:"kind"`
	Asset      Asset             `json:"asset"`
	Amount     int64             `json:"amount"`
	Status     Status            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	From       identity.Identity `json:"from,omitempty"`
	To         identity.Identity `json:"to,omitempty"`
	TransferID string            `json:"transfer_id,omitempty"`
}

// Owner resolves the identity whose ledger view this entry belongs to.
func (t *Transaction) Owner() identity.Identity {
	switch t.Kind {
	case KindDeposit:
		return t.To
	case KindWithdrawal:
		return t.From
	case KindTransferOut:
		return t.From
	case KindTransferIn:
		return t.To
	default:
		return identity.Identity{}
	}
}
