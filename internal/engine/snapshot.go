package engine

import (
	"encoding/json"
	"fmt"
	"strconv"

	"wallet-engine/internal/store"
	"wallet-engine/internal/util"

	"github.com/google/uuid"
)

// Flatten serializes every store into the flat snapshot layout: four
// ordered key-value tables plus the three index tables and both
// counters. The result is a deep copy; the engine can keep mutating
// after the call returns.
func (e *Engine) Flatten() (*store.Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := &store.Snapshot{
		Version:         store.SnapshotVersion,
		SnapshotID:      uuid.New().String(),
		CreatedAt:       e.clock().UTC(),
		SequenceCounter: e.sequenceCounter,
		AccountCounter:  e.accountCounter,
	}

	for _, acct := range e.accounts.All() {
		kv, err := marshalKV(acct.Identity.String(), acct)
		if err != nil {
			return nil, fmt.Errorf("failed to flatten account: %w", err)
		}
		snap.Accounts = append(snap.Accounts, kv)
	}

	for _, wallet := range e.wallets.All() {
		kv, err := marshalKV(wallet.Identity.String(), wallet)
		if err != nil {
			return nil, fmt.Errorf("failed to flatten wallet: %w", err)
		}
		snap.Wallets = append(snap.Wallets, kv)
	}

	for _, tx := range e.ledger.All() {
		kv, err := marshalKV(strconv.FormatUint(tx.SequenceID, 10), tx)
		if err != nil {
			return nil, fmt.Errorf("failed to flatten transaction: %w", err)
		}
		snap.Ledger = append(snap.Ledger, kv)
	}

	for _, entry := range e.directory.Entries() {
		kv, err := marshalKV(entry.Digest, entry)
		if err != nil {
			return nil, fmt.Errorf("failed to flatten directory entry: %w", err)
		}
		snap.Directory = append(snap.Directory, kv)
	}

	snap.ByAccountIndex, snap.ByTimeIndex, snap.ByKindIndex = e.ledger.IndexEntries()

	e.logger.Info("stores flattened",
		util.String("snapshot_id", snap.SnapshotID),
		util.Int("accounts", len(snap.Accounts)),
		util.Int("transactions", len(snap.Ledger)),
	)

	return snap, nil
}

// Restore rehydrates all stores from a snapshot, replaying each table
// in its serialized order so insertion order and sequence ordering are
// reproduced exactly. It must only be called on a fresh engine.
func (e *Engine) Restore(snap *store.Snapshot) error {
	if snap.Version != store.SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d", snap.Version)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.accounts.Len() != 0 || e.ledger.Len() != 0 {
		return fmt.Errorf("refusing to restore into a non-empty engine")
	}

	for _, kv := range snap.Accounts {
		var acct store.Account
		if err := json.Unmarshal(kv.Value, &acct); err != nil {
			return fmt.Errorf("corrupt account record %s: %w", kv.Key, err)
		}
		e.accounts.Put(&acct)
	}

	for _, kv := range snap.Wallets {
		var wallet store.Wallet
		if err := json.Unmarshal(kv.Value, &wallet); err != nil {
			return fmt.Errorf("corrupt wallet record %s: %w", kv.Key, err)
		}
		e.wallets.Put(&wallet)
	}

	for _, kv := range snap.Ledger {
		var tx store.Transaction
		if err := json.Unmarshal(kv.Value, &tx); err != nil {
			return fmt.Errorf("corrupt ledger record %s: %w", kv.Key, err)
		}
		if err := e.ledger.RestoreRecord(&tx); err != nil {
			return err
		}
	}

	for _, kv := range snap.Directory {
		var entry store.DirectoryEntry
		if err := json.Unmarshal(kv.Value, &entry); err != nil {
			return fmt.Errorf("corrupt directory record %s: %w", kv.Key, err)
		}
		e.directory.Bind(entry.Digest, entry.Identity)
	}

	e.ledger.RestoreIndexes(snap.ByAccountIndex, snap.ByTimeIndex, snap.ByKindIndex)

	e.sequenceCounter = snap.SequenceCounter
	e.accountCounter = snap.AccountCounter

	e.logger.Info("stores restored",
		util.String("snapshot_id", snap.SnapshotID),
		util.Int("accounts", e.accounts.Len()),
		util.Int("transactions", e.ledger.Len()),
		util.Uint64("sequence_head", e.sequenceCounter),
	)

	return nil
}

func marshalKV(key string, value interface{}) (store.KV, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return store.KV{}, err
	}
	return store.KV{Key: key, Value: raw}, nil
}
