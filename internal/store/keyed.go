package store

import (
	"wallet-engine/internal/identity"
)

// AccountStore keeps one Account per identity in insertion order. It is
// not safe for concurrent use; the engine serializes access.
type AccountStore struct {
	records map[identity.Identity]*Account
	order   []identity.Identity
}

func NewAccountStore() *AccountStore {
	return &AccountStore{
		records: make(map[identity.Identity]*Account),
	}
}

func (s *AccountStore) Get(id identity.Identity) (*Account, bool) {
	acct, ok := s.records[id]
	return acct, ok
}

// Put inserts or replaces the account. First insertion fixes the
// serialization position.
func (s *AccountStore) Put(acct *Account) {
	if _, exists := s.records[acct.Identity]; !exists {
		s.order = append(s.order, acct.Identity)
	}
	s.records[acct.Identity] = acct
}

func (s *AccountStore) Len() int {
	return len(s.records)
}

// All returns accounts in insertion order.
func (s *AccountStore) All() []*Account {
	out := make([]*Account, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// WalletStore keeps one Wallet per identity in insertion order, keyed
// identically to AccountStore.
type WalletStore struct {
	records map[identity.Identity]*Wallet
	order   []identity.Identity
}

func NewWalletStore() *WalletStore {
	return &WalletStore{
		records: make(map[identity.Identity]*Wallet),
	}
}

func (s *WalletStore) Get(id identity.Identity) (*Wallet, bool) {
	w, ok := s.records[id]
	return w, ok
}

func (s *WalletStore) Put(w *Wallet) {
	if _, exists := s.records[w.Identity]; !exists {
		s.order = append(s.order, w.Identity)
	}
	s.records[w.Identity] = w
}

func (s *WalletStore) Len() int {
	return len(s.records)
}

func (s *WalletStore) All() []*Wallet {
	out := make([]*Wallet, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// Directory maps salted phone digests to identities so a transfer can
// resolve its recipient without the recipient's PIN. Digests are
// one-way; the raw phone number never enters the store.
type Directory struct {
	entries map[string]identity.Identity
	order   []string
}

func NewDirectory() *Directory {
	return &Directory{
		entries: make(map[string]identity.Identity),
	}
}

func (d *Directory) Resolve(digest string) (identity.Identity, bool) {
	id, ok := d.entries[digest]
	return id, ok
}

func (d *Directory) Contains(digest string) bool {
	_, ok := d.entries[digest]
	return ok
}

func (d *Directory) Bind(digest string, id identity.Identity) {
	if _, exists := d.entries[digest]; !exists {
		d.order = append(d.order, digest)
	}
	d.entries[digest] = id
}

func (d *Directory) Len() int {
	return len(d.entries)
}

// Entries returns (digest, identity) pairs in insertion order.
func (d *Directory) Entries() []DirectoryEntry {
	out := make([]DirectoryEntry, 0, len(d.order))
	for _, digest := range d.order {
		out = append(out, DirectoryEntry{Digest: digest, Identity: d.entries[digest]})
	}
	return out
}

type DirectoryEntry struct {
	Digest   string            `json:"digest"`
	Identity identity.Identity `json:"identity"`
}
