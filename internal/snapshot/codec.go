package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wallet-engine/internal/config"
	"wallet-engine/internal/encryption"
	"wallet-engine/internal/store"
)

// ErrNoSnapshot is returned by a Store when nothing has been saved yet.
// A fresh deployment starts empty; anything else treats a missing
// snapshot as data loss.
var ErrNoSnapshot = errors.New("no snapshot available")

// Store persists and retrieves the flattened engine state.
type Store interface {
	Save(ctx context.Context, snap *store.Snapshot) error
	Load(ctx context.Context) (*store.Snapshot, error)
	Close() error
}

// envelope wraps the encoded snapshot so the reader can tell an
// encrypted payload from a plain one.
type envelope struct {
	Encrypted bool                      `json:"encrypted"`
	Blob      *encryption.EncryptedBlob `json:"blob,omitempty"`
	Plain     json.RawMessage           `json:"plain,omitempty"`
}

// Codec turns a snapshot into a durable byte payload and back,
// encrypting at rest when configured.
type Codec struct {
	encryptor *encryption.Manager
	encrypt   bool
}

func NewCodec(cfg *config.Config, encryptor *encryption.Manager) *Codec {
	return &Codec{
		encryptor: encryptor,
		encrypt:   cfg.Snapshot.Encrypt && encryptor != nil,
	}
}

func (c *Codec) Encode(ctx context.Context, snap *store.Snapshot) ([]byte, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	env := envelope{}
	if c.encrypt {
		blob, err := c.encryptor.EncryptBlob(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt snapshot: %w", err)
		}
		env.Encrypted = true
		env.Blob = blob
	} else {
		env.Plain = raw
	}

	encoded, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot envelope: %w", err)
	}
	return encoded, nil
}

func (c *Codec) Decode(ctx context.Context, data []byte) (*store.Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("corrupt snapshot envelope: %w", err)
	}

	raw := []byte(env.Plain)
	if env.Encrypted {
		if env.Blob == nil {
			return nil, fmt.Errorf("corrupt snapshot envelope: encrypted without blob")
		}
		if c.encryptor == nil {
			return nil, fmt.Errorf("snapshot is encrypted but no encryption manager is configured")
		}
		var err error
		raw, err = c.encryptor.DecryptBlob(ctx, env.Blob)
		if err != nil {
			return nil, err
		}
	}

	var snap store.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("corrupt snapshot payload: %w", err)
	}
	return &snap, nil
}
