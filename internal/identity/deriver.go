package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"wallet-engine/internal/config"
	"wallet-engine/internal/util"
)

// Size is the width of a derived identity in bytes. 128 bits keeps the
// collision probability negligible while staying compact as a store key.
const Size = 16

// Identity is the fixed-width value derived from phone number, PIN and
// the engine salt. It is the sole key for account, wallet and ledger
// lookups; the inputs it was derived from are never stored.
type Identity [Size]byte

var zeroIdentity Identity

func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

func (id Identity) IsZero() bool {
	return id == zeroIdentity
}

// Less defines the global ordering used wherever two identities must be
// acquired or serialized in a fixed order.
func (id Identity) Less(other Identity) bool {
	for i := 0; i < Size; i++ {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Parse decodes the hex form produced by String.
func Parse(s string) (Identity, error) {
	var id Identity
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid identity encoding: %w", err)
	}
	if len(raw) != Size {
		return id, fmt.Errorf("invalid identity length: %d", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// Deriver computes identities and phone digests. It is pure and safe to
// call unauthenticated: both outputs are one-way.
type Deriver struct {
	salt []byte
}

func NewDeriver(cfg *config.Config) *Deriver {
	return &Deriver{salt: []byte(cfg.Identity.Salt)}
}

// Derive maps (phone, pin) to a stable identity. Malformed input is
// rejected before any hashing happens.
func (d *Deriver) Derive(phone, pin string) (Identity, error) {
	var id Identity

	if err := util.ValidatePhone(phone); err != nil {
		return id, err
	}
	if err := util.ValidatePIN(pin); err != nil {
		return id, err
	}

	h := sha256.New()
	h.Write(d.salt)
	h.Write([]byte{0})
	h.Write([]byte(util.NormalizePhone(phone)))
	h.Write([]byte{0})
	h.Write([]byte(pin))

	copy(id[:], h.Sum(nil)[:Size])
	return id, nil
}

// PhoneDigest produces the salted one-way digest used by the recipient
// directory. It deliberately uses a distinct domain separator so a
// directory entry can never be replayed as an identity.
func (d *Deriver) PhoneDigest(phone string) (string, error) {
	if err := util.ValidatePhone(phone); err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write(d.salt)
	h.Write([]byte("phone-directory"))
	h.Write([]byte{0})
	h.Write([]byte(util.NormalizePhone(phone)))

	return hex.EncodeToString(h.Sum(nil)), nil
}
