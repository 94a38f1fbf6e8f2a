package pgstore

import (
	"database/sql"

	"github.com/fossclear/fossclear/internal/ledger"
)

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) PutItem(item ledger.ItemRecord) error {
	_, err := t.tx.Exec(`INSERT INTO fossclear_items(item_id, upload_id, parent_id, path, is_dir, detected_license, created_at)
VALUES($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT(item_id) DO UPDATE SET
  upload_id = EXCLUDED.upload_id,
  parent_id = EXCLUDED.parent_id,
  path = EXCLUDED.path,
  is_dir = EXCLUDED.is_dir,
  detected_license = EXCLUDED.detected_license`,
		item.ItemID, item.UploadID, item.ParentID, item.Path, item.IsDir, item.DetectedLicense, item.CreatedAt)
	return err
}

func (t *Tx) GetItem(itemID string) (ledger.ItemRecord, bool) {
	row := t.tx.QueryRow(`SELECT item_id, upload_id, parent_id, path, is_dir, detected_license, created_at
FROM fossclear_items WHERE item_id = $1`, itemID)
	return scanItem(row)
}

func (t *Tx) PutFinding(finding ledger.FindingRecord) error {
	_, err := t.tx.Exec(`INSERT INTO fossclear_copyright_findings(finding_id, item_id, statement, content_digest, active, created_at, updated_at)
VALUES($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT(finding_id) DO UPDATE SET
  item_id = EXCLUDED.item_id,
  statement = EXCLUDED.statement,
  content_digest = EXCLUDED.content_digest,
  active = EXCLUDED.active,
  updated_at = EXCLUDED.updated_at`,
		finding.FindingID, finding.ItemID, finding.Statement, finding.ContentDigest, finding.Active, finding.CreatedAt, finding.UpdatedAt)
	return err
}

func (t *Tx) GetFinding(findingID string) (ledger.FindingRecord, bool) {
	row := t.tx.QueryRow(`SELECT finding_id, item_id, statement, content_digest, active, created_at, updated_at
FROM fossclear_copyright_findings WHERE finding_id = $1`, findingID)
	return scanFinding(row)
}

func (t *Tx) PutDecision(decision ledger.DecisionRecord) error {
	_, err := t.tx.Exec(`INSERT INTO fossclear_clearing_decisions(item_id, kind, updated_at)
VALUES($1, $2, $3)
ON CONFLICT(item_id) DO UPDATE SET
  kind = EXCLUDED.kind,
  updated_at = EXCLUDED.updated_at`,
		decision.ItemID, decision.Kind, decision.UpdatedAt)
	return err
}

func (t *Tx) GetDecision(itemID string) (ledger.DecisionRecord, bool) {
	var rec ledger.DecisionRecord
	row := t.tx.QueryRow(`SELECT item_id, kind, updated_at FROM fossclear_clearing_decisions WHERE item_id = $1`, itemID)
	if err := row.Scan(&rec.ItemID, &rec.Kind, &rec.UpdatedAt); err != nil {
		return ledger.DecisionRecord{}, false
	}
	return rec, true
}

func (t *Tx) AppendHistory(itemID string, kind string, createdAt string) (ledger.HistoryRecord, error) {
	var seq int
	row := t.tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM fossclear_clearing_history WHERE item_id = $1`, itemID)
	if err := row.Scan(&seq); err != nil {
		return ledger.HistoryRecord{}, err
	}
	eventID, err := ledger.HistoryEventID(itemID, kind, createdAt, seq)
	if err != nil {
		return ledger.HistoryRecord{}, err
	}
	if _, err := t.tx.Exec(`INSERT INTO fossclear_clearing_history(event_id, item_id, kind, seq, created_at)
VALUES($1, $2, $3, $4, $5)`, eventID, itemID, kind, seq, createdAt); err != nil {
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
	_, err := t.tx.Exec(`INSERT INTO fossclear_webhook_outbox(notification_id, item_id, kind, message_json, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT(notification_id) DO UPDATE SET
  status = EXCLUDED.status,
  attempt_count = EXCLUDED.attempt_count,
  next_attempt_at = EXCLUDED.next_attempt_at,
  last_error = EXCLUDED.last_error,
  sent_at = EXCLUDED.sent_at,
  updated_at = EXCLUDED.updated_at`,
		rec.NotificationID, rec.ItemID, rec.Kind, string(rec.MessageJSON), rec.Status, rec.AttemptCount, rec.NextAttemptAt, rec.LastError, rec.SentAt, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (t *Tx) GetOutbox(notificationID string) (ledger.OutboxRecord, bool) {
	var rec ledger.OutboxRecord
	var msg string
	row := t.tx.QueryRow(`SELECT notification_id, item_id, kind, message_json, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at
FROM fossclear_webhook_outbox WHERE notification_id = $1`, notificationID)
	if err := row.Scan(&rec.NotificationID, &rec.ItemID, &rec.Kind, &msg, &rec.Status, &rec.AttemptCount, &rec.NextAttemptAt, &rec.LastError, &rec.SentAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return ledger.OutboxRecord{}, false
	}
	rec.MessageJSON = []byte(msg)
	return rec, true
}
