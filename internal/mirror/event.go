package mirror

import (
	"strconv"
	"time"

	"wallet-engine/internal/store"
)

// LedgerEvent is the external representation of a completed
// transaction. It carries derived identities only, never a phone number
// or credential material.
type LedgerEvent struct {
	SequenceID uint64    `json:"sequence_id"`
	TransferID string    `json:"transfer_id,omitempty"`
	Kind       string    `json:"kind"`
	Asset      string    `json:"asset"`
	Amount     int64     `json:"amount"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Owner      string    `json:"owner"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
}

func eventFromTransaction(tx *store.Transaction) *LedgerEvent {
	ev := &LedgerEvent{
		SequenceID: tx.SequenceID,
		TransferID: tx.TransferID,
		Kind:       tx.Kind.String(),
		Asset:      tx.Asset.String(),
		Amount:     tx.Amount,
		Status:     tx.Status.String(),
		Timestamp:  tx.Timestamp,
		Owner:      tx.Owner().String(),
	}
	if !tx.From.IsZero() {
		ev.From = tx.From.String()
	}
	if !tx.To.IsZero() {
		ev.To = tx.To.String()
	}
	return ev
}

// SequenceKey is the event's unique id as a string.
func (e *LedgerEvent) SequenceKey() string {
	return strconv.FormatUint(e.SequenceID, 10)
}
