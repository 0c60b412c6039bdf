package store

import (
	"encoding/json"
	"time"
)

// SnapshotVersion guards against restoring a layout this build cannot
// interpret.
const SnapshotVersion = 1

// KV is one serialized record. Tables are ordered lists of these pairs;
// restore replays each table in the exact order it was written so that
// insertion order, and with it sequence ordering, survives the round
// trip.
type KV struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Snapshot is the flat durable representation of every store. It is
// produced before a restart and rehydrated afterward; losing it between
// restarts is unrecoverable data loss.
type Snapshot struct {
	Version    int       `json:"version"`
	SnapshotID string    `json:"snapshot_id"`
	CreatedAt  time.Time `json:"created_at"`

	SequenceCounter uint64 `json:"sequence_counter"`
	AccountCounter  uint64 `json:"account_counter"`

	Accounts  []KV `json:"accounts"`
	Wallets   []KV `json:"wallets"`
	Ledger    []KV `json:"ledger"`
	Directory []KV `json:"directory"`

	ByAccountIndex []IndexEntry `json:"by_account_index"`
	ByTimeIndex    []IndexEntry `json:"by_time_index"`
	ByKindIndex    []IndexEntry `json:"by_kind_index"`
}
