package sqlstore

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/fossclear/fossclear/internal/ledger"
)

type Store struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) WithTx(fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{})
	if err != nil {
		return err
	}
	if _, err := tx.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = tx.Rollback()
		return err
	}
	wrapped := &Tx{tx: tx}
	if err := fn(wrapped); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) PutItem(item ledger.ItemRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutItem(item) })
}

func (s *Store) GetItem(itemID string) (ledger.ItemRecord, bool) {
	row := s.db.QueryRow(`SELECT item_id, upload_id, parent_id, path, is_dir, detected_license, created_at FROM items WHERE item_id = ?`, itemID)
	return scanItem(row)
}

func (s *Store) ListChildren(parentID string) ([]ledger.ItemRecord, error) {
	rows, err := s.db.Query(`SELECT item_id, upload_id, parent_id, path, is_dir, detected_license, created_at
FROM items WHERE parent_id = ? ORDER BY path ASC`, parentID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (s *Store) ListItems(uploadID string) ([]ledger.ItemRecord, error) {
	rows, err := s.db.Query(`SELECT item_id, upload_id, parent_id, path, is_dir, detected_license, created_at
FROM items WHERE upload_id = ? ORDER BY path ASC`, uploadID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (s *Store) PutFinding(finding ledger.FindingRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutFinding(finding) })
}

func (s *Store) GetFinding(findingID string) (ledger.FindingRecord, bool) {
	row := s.db.QueryRow(`SELECT finding_id, item_id, statement, content_digest, active, created_at, updated_at
FROM copyright_findings WHERE finding_id = ?`, findingID)
	return scanFinding(row)
}

func (s *Store) ListFindings(itemID string) ([]ledger.FindingRecord, error) {
	rows, err := s.db.Query(`SELECT finding_id, item_id, statement, content_digest, active, created_at, updated_at
FROM copyright_findings WHERE item_id = ? ORDER BY finding_id ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.FindingRecord{}
	for rows.Next() {
		var rec ledger.FindingRecord
		if err := rows.Scan(&rec.FindingID, &rec.ItemID, &rec.Statement, &rec.ContentDigest, &rec.Active, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SetFindingActive(findingID string, active bool, updatedAt string) error {
	res, err := s.db.Exec(`UPDATE copyright_findings SET active = ?, updated_at = ? WHERE finding_id = ?`, active, updatedAt, findingID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrFindingNotFound
	}
	return nil
}

func (s *Store) PutDecision(decision ledger.DecisionRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutDecision(decision) })
}

func (s *Store) GetDecision(itemID string) (ledger.DecisionRecord, bool) {
	var rec ledger.DecisionRecord
	row := s.db.QueryRow(`SELECT item_id, kind, updated_at FROM clearing_decisions WHERE item_id = ?`, itemID)
	if err := row.Scan(&rec.ItemID, &rec.Kind, &rec.UpdatedAt); err != nil {
		return ledger.DecisionRecord{}, false
	}
	return rec, true
}

func (s *Store) AppendHistory(itemID string, kind string, createdAt string) (ledger.HistoryRecord, error) {
	var rec ledger.HistoryRecord
	err := s.WithTx(func(tx ledger.Tx) error {
		var err error
		rec, err = tx.AppendHistory(itemID, kind, createdAt)
		return err
	})
	return rec, err
}

func (s *Store) ListHistory(itemID string) ([]ledger.HistoryRecord, error) {
	rows, err := s.db.Query(`SELECT event_id, item_id, kind, seq, created_at
FROM clearing_history WHERE item_id = ? ORDER BY seq ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.HistoryRecord{}
	for rows.Next() {
		var rec ledger.HistoryRecord
		if err := rows.Scan(&rec.EventID, &rec.ItemID, &rec.Kind, &rec.Seq, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) PutOutbox(rec ledger.OutboxRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutOutbox(rec) })
}

func (s *Store) GetOutbox(notificationID string) (ledger.OutboxRecord, bool) {
	var rec ledger.OutboxRecord
	var msg string
	row := s.db.QueryRow(`SELECT notification_id, item_id, kind, message_json, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at
FROM webhook_outbox WHERE notification_id = ?`, notificationID)
	if err := row.Scan(&rec.NotificationID, &rec.ItemID, &rec.Kind, &msg, &rec.Status, &rec.AttemptCount, &rec.NextAttemptAt, &rec.LastError, &rec.SentAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return ledger.OutboxRecord{}, false
	}
	rec.MessageJSON = []byte(msg)
	return rec, true
}

func (s *Store) ListOutboxDue(now string, limit int) ([]ledger.OutboxRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT notification_id, item_id, kind, message_json, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at
FROM webhook_outbox
WHERE status = 'pending' AND next_attempt_at <= ?
ORDER BY created_at ASC
LIMIT ?`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.OutboxRecord{}
	for rows.Next() {
		var rec ledger.OutboxRecord
		var msg string
		if err := rows.Scan(&rec.NotificationID, &rec.ItemID, &rec.Kind, &msg, &rec.Status, &rec.AttemptCount, &rec.NextAttemptAt, &rec.LastError, &rec.SentAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.MessageJSON = []byte(msg)
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (ledger.ItemRecord, bool) {
	var rec ledger.ItemRecord
	if err := row.Scan(&rec.ItemID, &rec.UploadID, &rec.ParentID, &rec.Path, &rec.IsDir, &rec.DetectedLicense, &rec.CreatedAt); err != nil {
		return ledger.ItemRecord{}, false
	}
	return rec, true
}

func scanFinding(row rowScanner) (ledger.FindingRecord, bool) {
	var rec ledger.FindingRecord
	if err := row.Scan(&rec.FindingID, &rec.ItemID, &rec.Statement, &rec.ContentDigest, &rec.Active, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return ledger.FindingRecord{}, false
	}
	return rec, true
}

func collectItems(rows *sql.Rows) ([]ledger.ItemRecord, error) {
	defer rows.Close()
	out := []ledger.ItemRecord{}
	for rows.Next() {
		var rec ledger.ItemRecord
		if err := rows.Scan(&rec.ItemID, &rec.UploadID, &rec.ParentID, &rec.Path, &rec.IsDir, &rec.DetectedLicense, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
