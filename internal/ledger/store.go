package ledger

// Store is the persistence surface shared by the memory, sqlite and postgres
// backends. Timestamps are RFC3339 strings throughout. History and findings
// are append-only: no backend implements a delete.
type Store interface {
	WithTx(fn func(Tx) error) error

	PutItem(item ItemRecord) error
	GetItem(itemID string) (ItemRecord, bool)
	ListChildren(parentID string) ([]ItemRecord, error)
	ListItems(uploadID string) ([]ItemRecord, error)

	PutFinding(finding FindingRecord) error
	GetFinding(findingID string) (FindingRecord, bool)
	ListFindings(itemID string) ([]FindingRecord, error)
	SetFindingActive(findingID string, active bool, updatedAt string) error

	PutDecision(decision DecisionRecord) error
	GetDecision(itemID string) (DecisionRecord, bool)

	AppendHistory(itemID string, kind string, createdAt string) (HistoryRecord, error)
	ListHistory(itemID string) ([]HistoryRecord, error)

	PutOutbox(rec OutboxRecord) error
	GetOutbox(notificationID string) (OutboxRecord, bool)
	ListOutboxDue(now string, limit int) ([]OutboxRecord, error)
}

type Tx interface {
	PutItem(item ItemRecord) error
	GetItem(itemID string) (ItemRecord, bool)

	PutFinding(finding FindingRecord) error
	GetFinding(findingID string) (FindingRecord, bool)

	PutDecision(decision DecisionRecord) error
	GetDecision(itemID string) (DecisionRecord, bool)

	AppendHistory(itemID string, kind string, createdAt string) (HistoryRecord, error)

	PutOutbox(rec OutboxRecord) error
	GetOutbox(notificationID string) (OutboxRecord, bool)
}

// ItemRecord is one node of an upload tree. DetectedLicense is empty when the
// scanner found no license on the node.
type ItemRecord struct {
	ItemID          string
	UploadID        string
	ParentID        *string
	Path            string
	IsDir           bool
	DetectedLicense string
	CreatedAt       string
}

// FindingRecord is one copyright statement detected on an item. Active starts
// true and only ever flips to false.
type FindingRecord struct {
	FindingID     string
	ItemID        string
	Statement     string
	ContentDigest string
	Active        bool
	CreatedAt     string
	UpdatedAt     string
}

// DecisionRecord is the current clearing decision of one item, last write
// wins.
type DecisionRecord struct {
	ItemID    string
	Kind      string
	UpdatedAt string
}

// HistoryRecord is one row of an item's append-only clearing history. Seq is
// assigned by the store, starting at 1 per item.
type HistoryRecord struct {
	EventID   string
	ItemID    string
	Kind      string
	Seq       int
	CreatedAt string
}

// OutboxRecord is one pending or sent webhook notification.
type OutboxRecord struct {
	NotificationID string
	ItemID         string
	Kind           string
	MessageJSON    []byte
	Status         string // pending | sent
	AttemptCount   int
	NextAttemptAt  string
	LastError      *string
	SentAt         *string
	CreatedAt      string
	UpdatedAt      string
}
