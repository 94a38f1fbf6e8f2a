package audit

import (
	"crypto/ed25519"
	"errors"

	"github.com/fossclear/fossclear/internal/crypto"
)

var (
	ErrExportDigestMismatch = errors.New("export digest mismatch")
	ErrExportSignature      = errors.New("export signature invalid")
)

// VerifyExport validates digest consistency and signature of an audit export.
func VerifyExport(export StoredExport, publicKey ed25519.PublicKey) error {
	digestBytes := crypto.DigestBytes(export.BodyJSON)
	digest := crypto.DigestWithPrefix(export.BodyJSON)
	if export.BodyDigest != digest || export.ExportID != digest {
		return ErrExportDigestMismatch
	}

	ok, err := crypto.VerifyEd25519(publicKey, digestBytes, export.Sig)
	if err != nil {
		return err
	}
	if !ok {
		return ErrExportSignature
	}
	return nil
}
