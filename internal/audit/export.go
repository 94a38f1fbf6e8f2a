package audit

import (
	"fmt"

	"github.com/fossclear/fossclear/internal/crypto"
)

const ExportSchema = "fossclear.audit-export.v1"

// Signer abstracts the gateway's signing key.
type Signer interface {
	KeyID() string
	SignEd25519(digest []byte) ([]byte, error)
}

// Entry mirrors one clearing history row inside an export body.
type Entry struct {
	EventID   string
	Kind      string
	Seq       int
	CreatedAt string
}

// ExportInput is everything an export body carries about one item.
type ExportInput struct {
	Schema      string
	ItemID      string
	Path        string
	GeneratedAt string
	Entries     []Entry
}

// StoredExport is a signed, content-addressed audit artifact: the export id
// is the digest of the canonical body, so two exports of identical history
// are the same artifact.
type StoredExport struct {
	ExportID   string
	ItemID     string
	BodyJSON   []byte
	BodyDigest string
	KeyID      string
	Sig        []byte
}

// MakeExport canonicalizes, hashes and signs an export body.
func MakeExport(in ExportInput, signer Signer) (StoredExport, error) {
	if in.Schema == "" {
		in.Schema = ExportSchema
	}
	if in.Schema != ExportSchema {
		return StoredExport{}, fmt.Errorf("unsupported export schema: %s", in.Schema)
	}
	if in.ItemID == "" {
		return StoredExport{}, fmt.Errorf("missing item_id")
	}
	if signer == nil {
		return StoredExport{}, fmt.Errorf("missing signer")
	}

	entries := make([]map[string]any, 0, len(in.Entries))
	for _, entry := range in.Entries {
		entries = append(entries, map[string]any{
			"event_id":   entry.EventID,
			"kind":       entry.Kind,
			"seq":        entry.Seq,
			"created_at": entry.CreatedAt,
		})
	}

	body := map[string]any{
		"schema":       in.Schema,
		"item_id":      in.ItemID,
		"path":         in.Path,
		"generated_at": in.GeneratedAt,
		"entries":      entries,
	}

	canonical, err := crypto.Canonicalize(body)
	if err != nil {
		return StoredExport{}, err
	}

	digest := crypto.DigestWithPrefix(canonical)
	sig, err := signer.SignEd25519(crypto.DigestBytes(canonical))
	if err != nil {
		return StoredExport{}, err
	}

	return StoredExport{
		ExportID:   digest,
		ItemID:     in.ItemID,
		BodyJSON:   canonical,
		BodyDigest: digest,
		KeyID:      signer.KeyID(),
		Sig:        sig,
	}, nil
}
