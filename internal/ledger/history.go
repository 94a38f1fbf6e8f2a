package ledger

import (
	"github.com/fossclear/fossclear/internal/crypto"
)

// HistoryEventID derives the content-addressed id of a history row from its
// canonical form. Seq keeps re-applications of the same kind within the same
// second distinct.
func HistoryEventID(itemID, kind, createdAt string, seq int) (string, error) {
	canonical, err := crypto.Canonicalize(map[string]any{
		"item_id":    itemID,
		"kind":       kind,
		"created_at": createdAt,
		"seq":        seq,
	})
	if err != nil {
		return "", err
	}
	return crypto.DigestWithPrefix(canonical), nil
}

// FindingDigest derives the content digest of a copyright statement. The
// canonical encoding NFC-normalizes the statement, so visually identical
// findings from differently composed sources share a digest.
func FindingDigest(statement string) (string, error) {
	canonical, err := crypto.Canonicalize(statement)
	if err != nil {
		return "", err
	}
	return crypto.DigestWithPrefix(canonical), nil
}
