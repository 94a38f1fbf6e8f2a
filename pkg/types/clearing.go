package types

import "encoding/json"

// UploadFinding is one detected copyright statement submitted with an upload.
type UploadFinding struct {
	FindingID string `json:"finding_id"`
	Statement string `json:"statement"`
}

// UploadItem is one tree node submitted with an upload. ParentID is empty for
// the root. DetectedLicense is empty when the scanner found none.
type UploadItem struct {
	ItemID          string          `json:"item_id"`
	ParentID        string          `json:"parent_id,omitempty"`
	Path            string          `json:"path"`
	IsDir           bool            `json:"is_dir"`
	DetectedLicense string          `json:"detected_license,omitempty"`
	Findings        []UploadFinding `json:"findings,omitempty"`
}

type RegisterUploadRequest struct {
	UploadID string       `json:"upload_id"`
	Items    []UploadItem `json:"items"`
}

type RegisterUploadResponse struct {
	UploadID string `json:"upload_id"`
	Items    int    `json:"items"`
	Findings int    `json:"findings"`
}

type ApplyDecisionRequest struct {
	TargetID   string `json:"target_id"`
	Kind       string `json:"kind"`
	SkipOption string `json:"skip_option,omitempty"`
}

type NodeFailure struct {
	ItemID string `json:"item_id"`
	Error  string `json:"error"`
}

type ApplyDecisionResponse struct {
	TargetID            string        `json:"target_id"`
	Kind                string        `json:"kind"`
	EffectiveSkip       string        `json:"effective_skip"`
	Visited             int           `json:"visited"`
	Applied             int           `json:"applied"`
	Skipped             int           `json:"skipped"`
	DeactivatedFindings []string      `json:"deactivated_findings"`
	Failed              []NodeFailure `json:"failed,omitempty"`
}

type HistoryEntry struct {
	EventID   string `json:"event_id"`
	Kind      string `json:"kind"`
	Seq       int    `json:"seq"`
	CreatedAt string `json:"created_at"`
}

type HistoryResponse struct {
	ItemID  string         `json:"item_id"`
	Entries []HistoryEntry `json:"entries"`
}

type FindingView struct {
	FindingID     string `json:"finding_id"`
	Statement     string `json:"statement"`
	ContentDigest string `json:"content_digest"`
	Active        bool   `json:"active"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

type FindingsResponse struct {
	ItemID   string        `json:"item_id"`
	Findings []FindingView `json:"findings"`
}

type ExportResponse struct {
	ExportID string          `json:"export_id"`
	ItemID   string          `json:"item_id"`
	Body     json.RawMessage `json:"body"`
	Digest   string          `json:"digest"`
	KeyID    string          `json:"key_id"`
	Sig      []byte          `json:"sig"`
}

type UploadStatusResponse struct {
	UploadID  string   `json:"upload_id"`
	Grade     string   `json:"grade"`
	Decided   int      `json:"decided"`
	Undecided int      `json:"undecided"`
	Reasons   []string `json:"reasons,omitempty"`
}
