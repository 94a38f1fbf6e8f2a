package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// KeyPairFromSeed derives an Ed25519 keypair from a 32-byte seed.
func KeyPairFromSeed(seed []byte) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, nil, ErrInvalidSeedSize
	}
	privateKey := ed25519.NewKeyFromSeed(seed)
	publicKey := privateKey.Public().(ed25519.PublicKey)
	return privateKey, publicKey, nil
}

// LoadOrGenerateSeed reads a hex-encoded seed from path, generating and
// persisting a fresh one when the file does not exist.
func LoadOrGenerateSeed(path string) ([]byte, error) {
	// #nosec G304 -- path is operator-provided key path.
	raw, err := os.ReadFile(path)
	if err == nil {
		seed, decodeErr := hex.DecodeString(strings.TrimSpace(string(raw)))
		if decodeErr != nil {
			return nil, fmt.Errorf("decode seed %s: %w", path, decodeErr)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, ErrInvalidSeedSize
		}
		return seed, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(seed)+"\n"), 0o600); err != nil {
		return nil, err
	}
	return seed, nil
}
