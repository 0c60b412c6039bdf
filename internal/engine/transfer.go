package engine

import (
	"context"
	"fmt"
	"time"

	"wallet-engine/internal/store"
	"wallet-engine/internal/util"

	"github.com/google/uuid"
)

// Receipt acknowledges one completed balance-affecting operation.
type Receipt struct {
	SequenceID   uint64      `json:"sequence_id"`
	TransferID   string      `json:"transfer_id,omitempty"`
	Kind         store.Kind  `json:"kind"`
	Asset        store.Asset `json:"asset"`
	Amount       int64       `json:"amount"`
	BalanceAfter int64       `json:"balance_after"`
	Timestamp    time.Time   `json:"timestamp"`
}

// Deposit credits the authenticated wallet. Balance update, ledger
// append and index updates happen in one indivisible step.
//
// A retried deposit is NOT idempotent and will double-credit; callers
// that retry must de-duplicate first.
func (e *Engine) Deposit(ctx context.Context, phone, pin string, asset store.Asset, amount int64) (*Receipt, error) {
	if err := validateAmount(asset, amount); err != nil {
		return nil, err
	}

	e.mu.Lock()
	receipt, tx, err := e.depositLocked(phone, pin, asset, amount)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e.record(ctx, tx)
	return receipt, nil
}

func (e *Engine) depositLocked(phone, pin string, asset store.Asset, amount int64) (*Receipt, *store.Transaction, error) {
	acct, err := e.authenticateLocked(phone, pin)
	if err != nil {
		return nil, nil, err
	}

	wallet, ok := e.wallets.Get(acct.Identity)
	if !ok {
		return nil, nil, fmt.Errorf("wallet missing for existing account %s", acct.Identity)
	}

	now := e.clock().UTC()
	balance := wallet.Balance(asset)
	balance.Available += amount
	balance.LifetimeInflow += amount
	wallet.LastBalanceUpdate = now

	tx := e.appendTransaction(&store.Transaction{
		Kind:      store.KindDeposit,
		Asset:     asset,
		Amount:    amount,
		Status:    store.StatusCompleted,
		Timestamp: now,
		To:        acct.Identity,
	})
	acct.TransactionCount++

	e.logger.Info("deposit completed",
		util.String("identity", acct.Identity.String()),
		util.String("asset", asset.String()),
		util.Int64("amount", amount),
		util.Uint64("sequence_id", tx.SequenceID),
	)

	return receiptFor(tx, balance.Available), tx, nil
}

// Withdraw debits the authenticated wallet. The sufficiency check and
// the debit happen in the same step, so the balance can never be
// observed negative.
func (e *Engine) Withdraw(ctx context.Context, phone, pin string, asset store.Asset, amount int64) (*Receipt, error) {
	if err := validateAmount(asset, amount); err != nil {
		return nil, err
	}

	e.mu.Lock()
	receipt, tx, err := e.withdrawLocked(phone, pin, asset, amount)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e.record(ctx, tx)
	return receipt, nil
}

func (e *Engine) withdrawLocked(phone, pin string, asset store.Asset, amount int64) (*Receipt, *store.Transaction, error) {
	acct, err := e.authenticateLocked(phone, pin)
	if err != nil {
		return nil, nil, err
	}

	wallet, ok := e.wallets.Get(acct.Identity)
	if !ok {
		return nil, nil, fmt.Errorf("wallet missing for existing account %s", acct.Identity)
	}

	balance := wallet.Balance(asset)
	if balance.Available < amount {
		return nil, nil, ErrInsufficientFunds
	}

	now := e.clock().UTC()
	balance.Available -= amount
	balance.LifetimeOutflow += amount
	wallet.LastBalanceUpdate = now

	tx := e.appendTransaction(&store.Transaction{
		Kind:      store.KindWithdrawal,
		Asset:     asset,
		Amount:    amount,
		Status:    store.StatusCompleted,
		Timestamp: now,
		From:      acct.Identity,
	})
	acct.TransactionCount++

	e.logger.Info("withdrawal completed",
		util.String("identity", acct.Identity.String()),
		util.String("asset", asset.String()),
		util.Int64("amount", amount),
		util.Uint64("sequence_id", tx.SequenceID),
	)

	return receiptFor(tx, balance.Available), tx, nil
}

// Transfer moves funds from the authenticated sender to the wallet
// registered for recipientPhone. The recipient is resolved through the
// phone-digest directory, never by re-deriving an identity with a
// placeholder PIN; transferring to an unregistered phone fails with
// ErrRecipientNotFound. One logical transfer is recorded as two ledger
// entries sharing a transfer id, one per side.
func (e *Engine) Transfer(ctx context.Context, phone, pin string, asset store.Asset, amount int64, recipientPhone string) (*Receipt, error) {
	if err := validateAmount(asset, amount); err != nil {
		return nil, err
	}

	recipientDigest, err := e.deriver.PhoneDigest(recipientPhone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	e.mu.Lock()
	receipt, txOut, txIn, err := e.transferLocked(phone, pin, asset, amount, recipientDigest)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e.record(ctx, txOut, txIn)
	return receipt, nil
}

func (e *Engine) transferLocked(phone, pin string, asset store.Asset, amount int64, recipientDigest string) (*Receipt, *store.Transaction, *store.Transaction, error) {
	acct, err := e.authenticateLocked(phone, pin)
	if err != nil {
		return nil, nil, nil, err
	}

	toID, ok := e.directory.Resolve(recipientDigest)
	if !ok {
		return nil, nil, nil, ErrRecipientNotFound
	}
	if toID == acct.Identity {
		return nil, nil, nil, ErrSelfTransfer
	}

	recipientAcct, ok := e.accounts.Get(toID)
	if !ok {
		return nil, nil, nil, fmt.Errorf("directory entry without account: %s", toID)
	}
	recipientWallet, ok := e.wallets.Get(toID)
	if !ok {
		return nil, nil, nil, fmt.Errorf("wallet missing for recipient %s", toID)
	}
	senderWallet, ok := e.wallets.Get(acct.Identity)
	if !ok {
		return nil, nil, nil, fmt.Errorf("wallet missing for existing account %s", acct.Identity)
	}

	senderBalance := senderWallet.Balance(asset)
	if senderBalance.Available < amount {
		return nil, nil, nil, ErrInsufficientFunds
	}

	now := e.clock().UTC()
	transferID := uuid.New().String()

	senderBalance.Available -= amount
	senderBalance.LifetimeOutflow += amount
	senderWallet.LastBalanceUpdate = now

	recipientBalance := recipientWallet.Balance(asset)
	recipientBalance.Available += amount
	recipientBalance.LifetimeInflow += amount
	recipientWallet.LastBalanceUpdate = now

	txOut := e.appendTransaction(&store.Transaction{
		Kind:       store.KindTransferOut,
		Asset:      asset,
		Amount:     amount,
		Status:     store.StatusCompleted,
		Timestamp:  now,
		From:       acct.Identity,
		To:         toID,
		TransferID: transferID,
	})
	txIn := e.appendTransaction(&store.Transaction{
		Kind:       store.KindTransferIn,
		Asset:      asset,
		Amount:     amount,
		Status:     store.StatusCompleted,
		Timestamp:  now,
		From:       acct.Identity,
		To:         toID,
		TransferID: transferID,
	})

	acct.TransactionCount++
	recipientAcct.TransactionCount++

	e.logger.Info("transfer completed",
		util.String("from", acct.Identity.String()),
		util.String("to", toID.String()),
		util.String("asset", asset.String()),
		util.Int64("amount", amount),
		util.String("transfer_id", transferID),
	)

	receipt := receiptFor(txOut, senderBalance.Available)
	receipt.TransferID = transferID
	return receipt, txOut, txIn, nil
}

// GetBalance returns the available balance for one asset after
// re-validating the PIN.
func (e *Engine) GetBalance(ctx context.Context, phone, pin string, asset store.Asset) (int64, error) {
	if !asset.Valid() {
		return 0, fmt.Errorf("%w: unknown asset", ErrInvalidInput)
	}

	// Authentication mutates failure counters, so even this read takes
	// the write lock.
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := e.authenticateLocked(phone, pin)
	if err != nil {
		return 0, err
	}

	wallet, ok := e.wallets.Get(acct.Identity)
	if !ok {
		return 0, fmt.Errorf("wallet missing for existing account %s", acct.Identity)
	}
	return wallet.Balance(asset).Available, nil
}

// appendTransaction assigns the next sequence id and writes the entry
// plus all indices. Callers hold the write lock.
func (e *Engine) appendTransaction(tx *store.Transaction) *store.Transaction {
	e.sequenceCounter++
	tx.SequenceID = e.sequenceCounter
	if err := e.ledger.Append(tx); err != nil {
		// Sequence ids are assigned under the lock; a collision here
		// means the counter itself is corrupt.
		e.logger.Error("ledger append failed", util.ErrorField(err),
			util.Uint64("sequence_id", tx.SequenceID))
	}
	return tx
}

func validateAmount(asset store.Asset, amount int64) error {
	if !asset.Valid() {
		return fmt.Errorf("%w: unknown asset", ErrInvalidInput)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidAmount, amount)
	}
	return nil
}

func receiptFor(tx *store.Transaction, balanceAfter int64) *Receipt {
	return &Receipt{
		SequenceID:   tx.SequenceID,
		Kind:         tx.Kind,
		Asset:        tx.Asset,
		Amount:       tx.Amount,
		BalanceAfter: balanceAfter,
		Timestamp:    tx.Timestamp,
	}
}
