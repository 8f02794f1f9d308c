package secret

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters. N is the CPU/memory cost, r the block size and
// p the parallelism factor. The derivation runs once at startup, so the
// interactive-login recommendation is sufficient.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	derivedLen   = 32
	minSaltBytes = 8
)

// DeriveKey stretches a passphrase into a 32-byte AES key using scrypt.
// The salt is fixed per deployment so every instance derives the same key.
func DeriveKey(passphrase, salt string) ([]byte, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, fmt.Errorf("passphrase is required")
	}
	if len(salt) < minSaltBytes {
		return nil, fmt.Errorf("salt must be at least %d bytes", minSaltBytes)
	}

	key, err := scrypt.Key([]byte(passphrase), []byte(salt), scryptN, scryptR, scryptP, derivedLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// NewSealerFromPassphrase derives a key from the passphrase and salt and
// returns a ready AES-GCM sealer.
func NewSealerFromPassphrase(passphrase, salt string) (*AESGCMSealer, error) {
	key, err := DeriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	return NewAESGCMSealer(key)
}
