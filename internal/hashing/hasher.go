package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"wallet-engine/internal/config"

	"golang.org/x/crypto/argon2"
)

var ErrInvalidHash = errors.New("invalid hash format")

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher produces and verifies PIN credentials using Argon2id. The
// pepper is static configuration rather than rotated in memory: stored
// credentials must verify across restarts, and the snapshot never
// carries the pepper itself.
type Hasher struct {
	params Argon2Params
	pepper string
}

// Credential is the stored form of a hashed PIN.
type Credential struct {
	Hash      string `json:"hash"`
	Salt      string `json:"salt"`
	Algorithm string `json:"algorithm"`
}

func NewHasher(cfg *config.Config) *Hasher {
	return &Hasher{
		params: Argon2Params{
			Memory:      uint32(cfg.Hashing.Argon2MemoryCost),
			Iterations:  uint32(cfg.Hashing.Argon2TimeCost),
			Parallelism: uint8(cfg.Hashing.Argon2Parallelism),
			SaltLength:  32,
			KeyLength:   32,
		},
		pepper: cfg.Hashing.Pepper,
	}
}

// HashPIN hashes a PIN bound to the phone number so the same PIN on two
// phones never yields the same credential.
func (h *Hasher) HashPIN(phone, pin string) (*Credential, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey(
		h.material(phone, pin),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return &Credential{
		Hash:      base64.RawURLEncoding.EncodeToString(hash),
		Salt:      base64.RawURLEncoding.EncodeToString(salt),
		Algorithm: "argon2id-v1",
	}, nil
}

// VerifyPIN recomputes the credential and compares in constant time.
func (h *Hasher) VerifyPIN(phone, pin string, cred *Credential) (bool, error) {
	salt, err := base64.RawURLEncoding.DecodeString(cred.Salt)
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawURLEncoding.DecodeString(cred.Hash)
	if err != nil {
		return false, ErrInvalidHash
	}

	computed := argon2.IDKey(
		h.material(phone, pin),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		uint32(len(expected)),
	)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func (h *Hasher) material(phone, pin string) []byte {
	return []byte(phone + "\x00" + pin + "\x00" + h.pepper)
}
