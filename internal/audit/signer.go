package audit

import (
	"crypto/ed25519"

	"github.com/fossclear/fossclear/internal/crypto"
)

// KeySigner signs with an in-process Ed25519 key.
type KeySigner struct {
	ID         string
	PrivateKey ed25519.PrivateKey
}

func (s *KeySigner) KeyID() string { return s.ID }

func (s *KeySigner) SignEd25519(digest []byte) ([]byte, error) {
	return crypto.SignEd25519(s.PrivateKey, digest)
}
