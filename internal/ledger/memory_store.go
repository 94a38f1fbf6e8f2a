package ledger

import (
	"sort"
	"sync"
)

type InMemoryStore struct {
	mu sync.Mutex

	items     map[string]ItemRecord
	findings  map[string]FindingRecord
	decisions map[string]DecisionRecord
	history   map[string][]HistoryRecord
	outbox    map[string]OutboxRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		items:     make(map[string]ItemRecord),
		findings:  make(map[string]FindingRecord),
		decisions: make(map[string]DecisionRecord),
		history:   make(map[string][]HistoryRecord),
		outbox:    make(map[string]OutboxRecord),
	}
}

func (s *InMemoryStore) WithTx(fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn((*memTx)(s))
}

type memTx InMemoryStore

func (s *InMemoryStore) PutItem(item ItemRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ItemID] = item
	return nil
}

func (s *InMemoryStore) GetItem(itemID string) (ItemRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	return item, ok
}

func (s *InMemoryStore) ListChildren(parentID string) ([]ItemRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedByPath(s.items, func(item ItemRecord) bool {
		return item.ParentID != nil && *item.ParentID == parentID
	}), nil
}

func (s *InMemoryStore) ListItems(uploadID string) ([]ItemRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedByPath(s.items, func(item ItemRecord) bool {
		return item.UploadID == uploadID
	}), nil
}

func (s *InMemoryStore) PutFinding(finding FindingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings[finding.FindingID] = finding
	return nil
}

func (s *InMemoryStore) GetFinding(findingID string) (FindingRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	finding, ok := s.findings[findingID]
	return finding, ok
}

func (s *InMemoryStore) ListFindings(itemID string) ([]FindingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []FindingRecord{}
	for _, finding := range s.findings {
		if finding.ItemID == itemID {
			out = append(out, finding)
		}
	}
	sortFindings(out)
	return out, nil
}

func (s *InMemoryStore) SetFindingActive(findingID string, active bool, updatedAt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	finding, ok := s.findings[findingID]
	if !ok {
		return ErrFindingNotFound
	}
	finding.Active = active
	finding.UpdatedAt = updatedAt
	s.findings[findingID] = finding
	return nil
}

func (s *InMemoryStore) PutDecision(decision DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[decision.ItemID] = decision
	return nil
}

func (s *InMemoryStore) GetDecision(itemID string) (DecisionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	decision, ok := s.decisions[itemID]
	return decision, ok
}

func (s *InMemoryStore) AppendHistory(itemID string, kind string, createdAt string) (HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendHistory(s.history, itemID, kind, createdAt)
}

func (s *InMemoryStore) ListHistory(itemID string) ([]HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.history[itemID]
	out := make([]HistoryRecord, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *InMemoryStore) PutOutbox(rec OutboxRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox[rec.NotificationID] = rec
	return nil
}

func (s *InMemoryStore) GetOutbox(notificationID string) (OutboxRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.outbox[notificationID]
	return rec, ok
}

func (s *InMemoryStore) ListOutboxDue(now string, limit int) ([]OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []OutboxRecord{}
	for _, rec := range s.outbox {
		if rec.Status != "pending" {
			continue
		}
		if rec.NextAttemptAt > now {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func appendHistory(history map[string][]HistoryRecord, itemID, kind, createdAt string) (HistoryRecord, error) {
	seq := len(history[itemID]) + 1
	eventID, err := HistoryEventID(itemID, kind, createdAt, seq)
	if err != nil {
		return HistoryRecord{}, err
	}
	rec := HistoryRecord{
		EventID:   eventID,
		ItemID:    itemID,
		Kind:      kind,
		Seq:       seq,
		CreatedAt: createdAt,
	}
	history[itemID] = append(history[itemID], rec)
	return rec, nil
}

func sortedByPath(items map[string]ItemRecord, keep func(ItemRecord) bool) []ItemRecord {
	out := []ItemRecord{}
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func sortFindings(findings []FindingRecord) {
	sort.Slice(findings, func(i, j int) bool { return findings[i].FindingID < findings[j].FindingID })
}

func (t *memTx) PutItem(item ItemRecord) error {
	(*InMemoryStore)(t).items[item.ItemID] = item
	return nil
}

func (t *memTx) GetItem(itemID string) (ItemRecord, bool) {
	item, ok := (*InMemoryStore)(t).items[itemID]
	return item, ok
}

func (t *memTx) PutFinding(finding FindingRecord) error {
	(*InMemoryStore)(t).findings[finding.FindingID] = finding
	return nil
}

func (t *memTx) GetFinding(findingID string) (FindingRecord, bool) {
	finding, ok := (*InMemoryStore)(t).findings[findingID]
	return finding, ok
}

func (t *memTx) PutDecision(decision DecisionRecord) error {
	(*InMemoryStore)(t).decisions[decision.ItemID] = decision
	return nil
}

func (t *memTx) GetDecision(itemID string) (DecisionRecord, bool) {
	decision, ok := (*InMemoryStore)(t).decisions[itemID]
	return decision, ok
}

func (t *memTx) AppendHistory(itemID string, kind string, createdAt string) (HistoryRecord, error) {
	return appendHistory((*InMemoryStore)(t).history, itemID, kind, createdAt)
}

func (t *memTx) PutOutbox(rec OutboxRecord) error {
	(*InMemoryStore)(t).outbox[rec.NotificationID] = rec
	return nil
}

func (t *memTx) GetOutbox(notificationID string) (OutboxRecord, bool) {
	rec, ok := (*InMemoryStore)(t).outbox[notificationID]
	return rec, ok
}
