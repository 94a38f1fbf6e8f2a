package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fossclear/fossclear/internal/crypto"
	"github.com/fossclear/fossclear/internal/ledger"
)

// Poster delivers one notification payload.
type Poster interface {
	Post(url string, payload []byte) error
}

const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
)

// DecisionMessage is the webhook payload announcing an applied decision.
type DecisionMessage struct {
	ItemID              string `json:"item_id"`
	Path                string `json:"path"`
	Kind                string `json:"kind"`
	AppliedNodes        int    `json:"applied_nodes"`
	SkippedNodes        int    `json:"skipped_nodes"`
	DeactivatedFindings int    `json:"deactivated_findings"`
	AppliedAt           string `json:"applied_at"`
}

// Enqueue stores a pending notification for msg. Delivery happens later via
// ProcessOutboxDue.
func Enqueue(store ledger.Store, msg DecisionMessage, now time.Time) (string, error) {
	if store == nil {
		return "", fmt.Errorf("missing store")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	nowStr := now.UTC().Format(time.RFC3339)
	notificationID := crypto.DigestWithPrefix(append(payload, []byte(nowStr)...))

	rec := ledger.OutboxRecord{
		NotificationID: notificationID,
		ItemID:         msg.ItemID,
		Kind:           msg.Kind,
		MessageJSON:    payload,
		Status:         OutboxStatusPending,
		NextAttemptAt:  nowStr,
		CreatedAt:      nowStr,
		UpdatedAt:      nowStr,
	}
	if err := store.PutOutbox(rec); err != nil {
		return "", err
	}
	return notificationID, nil
}

// ProcessOutboxDue posts due pending notifications and marks them sent. It
// applies exponential backoff when posting fails.
func ProcessOutboxDue(ctx context.Context, store ledger.Store, poster Poster, url string, now time.Time, limit int) (int, error) {
	if store == nil {
		return 0, fmt.Errorf("missing store")
	}
	if poster == nil || url == "" {
		return 0, nil
	}
	if limit <= 0 {
		limit = 50
	}

	due, err := store.ListOutboxDue(now.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, rec := range due {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		if rec.Status != OutboxStatusPending {
			continue
		}

		if err := poster.Post(url, rec.MessageJSON); err != nil {
			next := nextAttempt(rec.AttemptCount)
			rec.AttemptCount++
			rec.NextAttemptAt = now.UTC().Add(next).Format(time.RFC3339)
			msg := err.Error()
			rec.LastError = &msg
			rec.UpdatedAt = now.UTC().Format(time.RFC3339)
			if err := store.PutOutbox(rec); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		rec.Status = OutboxStatusSent
		sentAt := now.UTC().Format(time.RFC3339)
		rec.SentAt = &sentAt
		rec.UpdatedAt = sentAt
		if err := store.PutOutbox(rec); err != nil {
			return processed, err
		}
		processed++
	}

	return processed, nil
}

func nextAttempt(attemptCount int) time.Duration {
	// 5s, 10s, 20s, 40s, ... capped at 5m. The shift is clamped first: a
	// large attempt count would overflow the duration and go negative.
	base := 5 * time.Second
	if attemptCount <= 0 {
		return base
	}
	if attemptCount > 7 {
		return 5 * time.Minute
	}
	backoff := base << attemptCount
	if backoff > 5*time.Minute {
		return 5 * time.Minute
	}
	return backoff
}
