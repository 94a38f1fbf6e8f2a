package sqlstore

import (
	"database/sql"

	"github.com/fossclear/fossclear/internal/ledger"
)

// Tx wraps a sql.Tx with the ledger surface. All writes are upserts keyed on
// the record's primary id.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) PutItem(item ledger.ItemRecord) error {
	_, err := t.tx.Exec(`INSERT INTO items(item_id, upload_id, parent_id, path, is_dir, detected_license, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(item_id) DO UPDATE SET
  upload_id = excluded.upload_id,
  parent_id = excluded.parent_id,
  path = excluded.path,
  is_dir = excluded.is_dir,
  detected_license = excluded.detected_license`,
		item.ItemID, item.UploadID, item.ParentID, item.Path, item.IsDir, item.DetectedLicense, item.CreatedAt)
	return err
}

func (t *Tx) GetItem(itemID string) (ledger.ItemRecord, bool) {
	row := t.tx.QueryRow(`SELECT item_id, upload_id, parent_id, path, is_dir, detected_license, created_at FROM items WHERE item_id = ?`, itemID)
	return scanItem(row)
}

func (t *Tx) PutFinding(finding ledger.FindingRecord) error {
	_, err := t.tx.Exec(`INSERT INTO copyright_findings(finding_id, item_id, statement, content_digest, active, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(finding_id) DO UPDATE SET
  item_id = excluded.item_id,
  statement = excluded.statement,
  content_digest = excluded.content_digest,
  active = excluded.active,
  updated_at = excluded.updated_at`,
		finding.FindingID, finding.ItemID, finding.Statement, finding.ContentDigest, finding.Active, finding.CreatedAt, finding.UpdatedAt)
	return err
}

func (t *Tx) GetFinding(findingID string) (ledger.FindingRecord, bool) {
	row := t.tx.QueryRow(`SELECT finding_id, item_id, statement, content_digest, active, created_at, updated_at
FROM copyright_findings WHERE finding_id = ?`, findingID)
	return scanFinding(row)
}

func (t *Tx) PutDecision(decision ledger.DecisionRecord) error {
	_, err := t.tx.Exec(`INSERT INTO clearing_decisions(item_id, kind, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(item_id) DO UPDATE SET
  kind = excluded.kind,
  updated_at = excluded.updated_at`,
		decision.ItemID, decision.Kind, decision.UpdatedAt)
	return err
}

func (t *Tx) GetDecision(itemID string) (ledger.DecisionRecord, bool) {
	var rec ledger.DecisionRecord
	row := t.tx.QueryRow(`SELECT item_id, kind, updated_at FROM clearing_decisions WHERE item_id = ?`, itemID)
	if err := row.Scan(&rec.ItemID, &rec.Kind, &rec.UpdatedAt); err != nil {
		return ledger.DecisionRecord{}, false
	}
	return rec, true
}

func (t *Tx) AppendHistory(itemID string, kind string, createdAt string) (ledger.HistoryRecord, error) {
	var seq int
	row := t.tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM clearing_history WHERE item_id = ?`, itemID)
	if err := row.Scan(&seq); err != nil {
		return ledger.HistoryRecord{}, err
	}
	eventID, err := ledger.HistoryEventID(itemID, kind, createdAt, seq)
	if err != nil {
		return ledger.HistoryRecord{}, err
	}
	if _, err := t.tx.Exec(`INSERT INTO clearing_history(event_id, item_id, kind, seq, created_at)
VALUES(?, ?, ?, ?, ?)`, eventID, itemID, kind, seq, createdAt); err != nil {
		return ledger.HistoryRecord{}, err
	}
	return ledger.HistoryRecord{
		EventID:   eventID,
		ItemID:    itemID,
		Kind:      kind,
		Seq:       seq,
		CreatedAt: createdAt,
	}, nil
}

func (t *Tx) PutOutbox(rec ledger.OutboxRecord) error {
	_, err := t.tx.Exec(`INSERT INTO webhook_outbox(notification_id, item_id, kind, message_json, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(notification_id) DO UPDATE SET
  status = excluded.status,
  attempt_count = excluded.attempt_count,
  next_attempt_at = excluded.next_attempt_at,
  last_error = excluded.last_error,
  sent_at = excluded.sent_at,
  updated_at = excluded.updated_at`,
		rec.NotificationID, rec.ItemID, rec.Kind, string(rec.MessageJSON), rec.Status, rec.AttemptCount, rec.NextAttemptAt, rec.LastError, rec.SentAt, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (t *Tx) GetOutbox(notificationID string) (ledger.OutboxRecord, bool) {
	var rec ledger.OutboxRecord
	var msg string
	row := t.tx.QueryRow(`SELECT notification_id, item_id, kind, message_json, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at
FROM webhook_outbox WHERE notification_id = ?`, notificationID)
	if err := row.Scan(&rec.NotificationID, &rec.ItemID, &rec.Kind, &msg, &rec.Status, &rec.AttemptCount, &rec.NextAttemptAt, &rec.LastError, &rec.SentAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return ledger.OutboxRecord{}, false
	}
	rec.MessageJSON = []byte(msg)
	return rec, true
}
