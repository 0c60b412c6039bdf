package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wallet-engine/internal/bucketing"
	"wallet-engine/internal/config"
	"wallet-engine/internal/hashing"
	"wallet-engine/internal/identity"
	"wallet-engine/internal/store"
	"wallet-engine/internal/util"

	"go.uber.org/zap"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrNotFound           = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLocked             = errors.New("account is locked")
	ErrAlreadyExists      = errors.New("account already exists")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrSelfTransfer       = errors.New("cannot transfer to self")
	ErrRecipientNotFound  = errors.New("recipient not found")
)

// Recorder receives completed transactions for out-of-band consumers
// (analytics mirror, event stream). It is invoked outside the engine's
// critical section and must not block the caller unreasonably.
type Recorder interface {
	RecordTransaction(ctx context.Context, tx *store.Transaction)
}

// Engine is the storage and authentication core. All mutating
// operations run under one write lock, message-at-a-time: an operation
// completes fully before the next begins, and no partial state is ever
// observable. Reads that do not touch authentication state share a
// read lock.
type Engine struct {
	mu sync.RWMutex

	cfg     *config.Config
	logger  *zap.Logger
	deriver *identity.Deriver
	hasher  *hashing.Hasher
	buckets *bucketing.Manager

	accounts  *store.AccountStore
	wallets   *store.WalletStore
	ledger    *store.LedgerStore
	directory *store.Directory

	// Counters live here, not as package globals, and are advanced
	// under the same lock as the operation that consumes them.
	sequenceCounter uint64
	accountCounter  uint64

	recorder Recorder
	clock    func() time.Time
}

func New(cfg *config.Config, deriver *identity.Deriver, hasher *hashing.Hasher, buckets *bucketing.Manager, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		deriver:   deriver,
		hasher:    hasher,
		buckets:   buckets,
		accounts:  store.NewAccountStore(),
		wallets:   store.NewWalletStore(),
		ledger:    store.NewLedgerStore(cfg, buckets),
		directory: store.NewDirectory(),
		clock:     time.Now,
	}
}

// SetRecorder attaches the transaction recorder. Pass nil to detach.
func (e *Engine) SetRecorder(r Recorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorder = r
}

// SetClock overrides the time source; tests use it to drive lockout
// expiry.
func (e *Engine) SetClock(clock func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = clock
}

// AccountSnapshot is the caller-visible view of an account. It never
// carries the credential.
type AccountSnapshot struct {
	Identity         string     `json:"identity"`
	CreatedAt        time.Time  `json:"created_at"`
	LastActivity     time.Time  `json:"last_activity"`
	FailedAttempts   int        `json:"failed_attempts"`
	Locked           bool       `json:"locked"`
	LockoutUntil     *time.Time `json:"lockout_until,omitempty"`
	TransactionCount int        `json:"transaction_count"`
}

func snapshotAccount(acct *store.Account, now time.Time) *AccountSnapshot {
	snap := &AccountSnapshot{
		Identity:         acct.Identity.String(),
		CreatedAt:        acct.CreatedAt,
		LastActivity:     acct.LastActivity,
		FailedAttempts:   acct.FailedAttempts,
		Locked:           acct.Locked(now),
		TransactionCount: acct.TransactionCount,
	}
	if acct.LockoutUntil != nil {
		t := *acct.LockoutUntil
		snap.LockoutUntil = &t
	}
	return snap
}

// Register derives an identity from (phone, pin) and creates the
// account and wallet together. The same pair always re-derives the
// same identity, so a duplicate registration is rejected rather than
// ever regenerating an identity. A phone already present in the
// directory is rejected regardless of PIN: one phone, one wallet.
func (e *Engine) Register(ctx context.Context, phone, pin string) (identity.Identity, error) {
	id, err := e.deriver.Derive(phone, pin)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	digest, err := e.deriver.PhoneDigest(phone)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	cred, err := e.hasher.HashPIN(util.NormalizePhone(phone), pin)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("failed to hash pin: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.directory.Contains(digest) {
		return identity.Identity{}, ErrAlreadyExists
	}
	if _, exists := e.accounts.Get(id); exists {
		return identity.Identity{}, ErrAlreadyExists
	}

	now := e.clock().UTC()
	acct := &store.Account{
		Identity:     id,
		Credential:   *cred,
		CreatedAt:    now,
		LastActivity: now,
	}

	// Account and wallet are created in the same critical section, so
	// a reader can never observe one without the other.
	e.accounts.Put(acct)
	e.wallets.Put(store.NewWallet(id, now))
	e.directory.Bind(digest, id)
	e.accountCounter++

	e.logger.Info("account registered",
		util.String("identity", id.String()),
		util.Uint64("account_number", e.accountCounter),
	)

	return id, nil
}

// Authenticate resolves the account registered for the phone and
// validates the PIN against its stored credential, advancing the
// lockout state machine. Every call, success or failure, persists the
// updated account record.
//
// A locked account is rejected before the PIN is checked, so a probe
// during lockout gains no timing signal. Lockout is reported as a
// distinct error: friendlier for legitimate holders, at the cost of
// confirming lockout state to whoever already knows the phone and PIN
// shape.
func (e *Engine) Authenticate(ctx context.Context, phone, pin string) (*AccountSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := e.authenticateLocked(phone, pin)
	if err != nil {
		return nil, err
	}
	return snapshotAccount(acct, e.clock().UTC()), nil
}

// authenticateLocked is the guard shared by every authenticated
// operation. Callers must hold the write lock: failed attempts mutate
// the account.
//
// The account is resolved through the phone-digest directory, not by
// re-deriving an identity from (phone, pin): a wrong PIN must still
// reach the registered account's credential check so its failure
// counter advances and lockout can engage.
func (e *Engine) authenticateLocked(phone, pin string) (*store.Account, error) {
	if err := util.ValidatePIN(pin); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	digest, err := e.deriver.PhoneDigest(phone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	id, ok := e.directory.Resolve(digest)
	if !ok {
		return nil, ErrNotFound
	}
	acct, ok := e.accounts.Get(id)
	if !ok {
		return nil, fmt.Errorf("directory entry without account: %s", id)
	}

	now := e.clock().UTC()
	if acct.Locked(now) {
		return nil, ErrLocked
	}

	match, err := e.hasher.VerifyPIN(util.NormalizePhone(phone), pin, &acct.Credential)
	if err != nil {
		return nil, fmt.Errorf("credential verification failed: %w", err)
	}

	if !match {
		acct.FailedAttempts++
		if acct.FailedAttempts >= e.cfg.Auth.MaxFailedAttempts {
			until := now.Add(e.cfg.Auth.LockoutDuration)
			acct.LockoutUntil = &until
			e.logger.Warn("account locked after repeated failures",
				util.String("identity", id.String()),
				util.Int("failed_attempts", acct.FailedAttempts),
			)
		}
		e.accounts.Put(acct)
		return nil, ErrInvalidCredentials
	}

	acct.FailedAttempts = 0
	acct.LockoutUntil = nil
	acct.LastActivity = now
	e.accounts.Put(acct)

	return acct, nil
}

// Exists re-validates the PIN and reports whether the wallet exists.
// NotFound and a wrong PIN are both reported as plain false, so the
// call leaks nothing without the correct PIN.
func (e *Engine) Exists(ctx context.Context, phone, pin string) (bool, error) {
	_, err := e.Authenticate(ctx, phone, pin)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidCredentials):
		return false, nil
	default:
		return false, err
	}
}

// record hands completed transactions to the recorder outside the
// critical section.
func (e *Engine) record(ctx context.Context, txs ...*store.Transaction) {
	e.mu.RLock()
	recorder := e.recorder
	e.mu.RUnlock()

	if recorder == nil {
		return
	}
	for _, tx := range txs {
		recorder.RecordTransaction(ctx, tx)
	}
}
