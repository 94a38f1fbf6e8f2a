package api

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fossclear/fossclear/internal/audit"
	"github.com/fossclear/fossclear/internal/clearing"
	"github.com/fossclear/fossclear/internal/ledger"
	"github.com/fossclear/fossclear/internal/notify"
	"github.com/fossclear/fossclear/internal/report"
	"github.com/fossclear/fossclear/pkg/types"
)

var ErrValidation = errors.New("invalid request")

// ClearingService is the gateway's application layer: upload registration,
// decision propagation, history/findings reads, status grading and signed
// audit exports.
type ClearingService struct {
	Store     ledger.Store
	Signer    *audit.KeySigner
	PublicKey ed25519.PublicKey

	// NotifyDecisions enqueues a webhook notification per applied decision.
	NotifyDecisions bool

	// Now overrides the clock in tests.
	Now func() time.Time

	// mu serializes propagations: overlapping subtrees share nodes, and the
	// per-node write sequence must not interleave.
	mu sync.Mutex
}

func NewClearingService(store ledger.Store) *ClearingService {
	return &ClearingService{Store: store}
}

func (s *ClearingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// RegisterUpload ingests a scanned tree: items plus their detected copyright
// findings. Re-registering an item overwrites its metadata but never resets
// the active state of an existing finding.
func (s *ClearingService) RegisterUpload(req types.RegisterUploadRequest) (types.RegisterUploadResponse, error) {
	if req.UploadID == "" {
		return types.RegisterUploadResponse{}, fmt.Errorf("%w: missing upload_id", ErrValidation)
	}
	if len(req.Items) == 0 {
		return types.RegisterUploadResponse{}, fmt.Errorf("%w: upload has no items", ErrValidation)
	}

	ids := map[string]bool{}
	for _, item := range req.Items {
		if item.ItemID == "" || item.Path == "" {
			return types.RegisterUploadResponse{}, fmt.Errorf("%w: item needs item_id and path", ErrValidation)
		}
		if ids[item.ItemID] {
			return types.RegisterUploadResponse{}, fmt.Errorf("%w: duplicate item_id %s", ErrValidation, item.ItemID)
		}
		ids[item.ItemID] = true
	}
	parentOf := map[string]string{}
	for _, item := range req.Items {
		if item.ParentID == "" {
			continue
		}
		if ids[item.ParentID] {
			parentOf[item.ItemID] = item.ParentID
			continue
		}
		if _, ok := s.Store.GetItem(item.ParentID); !ok {
			return types.RegisterUploadResponse{}, fmt.Errorf("%w: unknown parent_id %s for item %s", ErrValidation, item.ParentID, item.ItemID)
		}
	}
	for _, item := range req.Items {
		seen := map[string]bool{}
		for cur := item.ItemID; cur != ""; cur = parentOf[cur] {
			if seen[cur] {
				return types.RegisterUploadResponse{}, fmt.Errorf("%w: parent cycle through item %s", ErrValidation, cur)
			}
			seen[cur] = true
		}
	}

	nowStr := s.now().Format(time.RFC3339)
	findings := 0
	for _, item := range req.Items {
		rec := ledger.ItemRecord{
			ItemID:          item.ItemID,
			UploadID:        req.UploadID,
			Path:            item.Path,
			IsDir:           item.IsDir,
			DetectedLicense: item.DetectedLicense,
			CreatedAt:       nowStr,
		}
		if item.ParentID != "" {
			parentID := item.ParentID
			rec.ParentID = &parentID
		}
		if err := s.Store.PutItem(rec); err != nil {
			return types.RegisterUploadResponse{}, fmt.Errorf("put item %s: %w", item.ItemID, err)
		}

		for _, finding := range item.Findings {
			if finding.FindingID == "" {
				return types.RegisterUploadResponse{}, fmt.Errorf("%w: finding on %s needs finding_id", ErrValidation, item.ItemID)
			}
			digest, err := ledger.FindingDigest(finding.Statement)
			if err != nil {
				return types.RegisterUploadResponse{}, fmt.Errorf("digest finding %s: %w", finding.FindingID, err)
			}

			rec := ledger.FindingRecord{
				FindingID:     finding.FindingID,
				ItemID:        item.ItemID,
				Statement:     finding.Statement,
				ContentDigest: digest,
				Active:        true,
				CreatedAt:     nowStr,
				UpdatedAt:     nowStr,
			}
			// Deactivation is terminal; a re-registered finding keeps its
			// lifecycle state.
			if existing, ok := s.Store.GetFinding(finding.FindingID); ok {
				rec.Active = existing.Active
				rec.CreatedAt = existing.CreatedAt
				rec.UpdatedAt = existing.UpdatedAt
			}
			if err := s.Store.PutFinding(rec); err != nil {
				return types.RegisterUploadResponse{}, fmt.Errorf("put finding %s: %w", finding.FindingID, err)
			}
			findings++
		}
	}

	return types.RegisterUploadResponse{UploadID: req.UploadID, Items: len(req.Items), Findings: findings}, nil
}

// ApplyDecision classifies and propagates one clearing decision. The returned
// response is meaningful even when err reports per-node write failures: it
// lists which nodes failed alongside which succeeded.
func (s *ClearingService) ApplyDecision(req types.ApplyDecisionRequest) (types.ApplyDecisionResponse, error) {
	if req.TargetID == "" {
		return types.ApplyDecisionResponse{}, fmt.Errorf("%w: missing target_id", ErrValidation)
	}
	kind, err := clearing.ParseKind(req.Kind)
	if err != nil {
		return types.ApplyDecisionResponse{}, err
	}
	skip, err := clearing.ParseSkipOption(req.SkipOption)
	if err != nil {
		return types.ApplyDecisionResponse{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stores := ledger.Stores{S: s.Store}
	propagator := &clearing.Propagator{
		Tree:       stores,
		Copyrights: stores,
		Decisions:  stores,
		History:    stores,
		Now:        s.Now,
	}

	now := s.now()
	res, applyErr := propagator.Apply(req.TargetID, kind, skip)
	if applyErr != nil && !errors.Is(applyErr, clearing.ErrStoreWrite) {
		return types.ApplyDecisionResponse{}, applyErr
	}

	resp := types.ApplyDecisionResponse{
		TargetID:            req.TargetID,
		Kind:                string(kind),
		EffectiveSkip:       string(res.EffectiveSkip),
		Visited:             res.Visited,
		Applied:             res.Applied,
		Skipped:             res.Skipped,
		DeactivatedFindings: res.DeactivatedFindings,
	}
	if resp.DeactivatedFindings == nil {
		resp.DeactivatedFindings = []string{}
	}
	for _, failure := range res.Failed {
		resp.Failed = append(resp.Failed, types.NodeFailure{ItemID: failure.ItemID, Error: failure.Err.Error()})
	}

	if applyErr == nil && s.NotifyDecisions && res.Applied > 0 {
		path := ""
		if item, ok := s.Store.GetItem(req.TargetID); ok {
			path = item.Path
		}
		// Best effort; a failed enqueue never fails the apply.
		_, _ = notify.Enqueue(s.Store, notify.DecisionMessage{
			ItemID:              req.TargetID,
			Path:                path,
			Kind:                string(kind),
			AppliedNodes:        res.Applied,
			SkippedNodes:        res.Skipped,
			DeactivatedFindings: len(res.DeactivatedFindings),
			AppliedAt:           now.Format(time.RFC3339),
		}, now)
	}

	return resp, applyErr
}

func (s *ClearingService) History(itemID string) (types.HistoryResponse, error) {
	if _, ok := s.Store.GetItem(itemID); !ok {
		return types.HistoryResponse{}, fmt.Errorf("%w: %s", clearing.ErrNodeNotFound, itemID)
	}
	entries, err := s.Store.ListHistory(itemID)
	if err != nil {
		return types.HistoryResponse{}, err
	}

	resp := types.HistoryResponse{ItemID: itemID, Entries: []types.HistoryEntry{}}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, types.HistoryEntry{
			EventID:   entry.EventID,
			Kind:      entry.Kind,
			Seq:       entry.Seq,
			CreatedAt: entry.CreatedAt,
		})
	}
	return resp, nil
}

func (s *ClearingService) Findings(itemID string) (types.FindingsResponse, error) {
	if _, ok := s.Store.GetItem(itemID); !ok {
		return types.FindingsResponse{}, fmt.Errorf("%w: %s", clearing.ErrNodeNotFound, itemID)
	}
	findings, err := s.Store.ListFindings(itemID)
	if err != nil {
		return types.FindingsResponse{}, err
	}

	resp := types.FindingsResponse{ItemID: itemID, Findings: []types.FindingView{}}
	for _, finding := range findings {
		resp.Findings = append(resp.Findings, types.FindingView{
			FindingID:     finding.FindingID,
			Statement:     finding.Statement,
			ContentDigest: finding.ContentDigest,
			Active:        finding.Active,
			UpdatedAt:     finding.UpdatedAt,
		})
	}
	return resp, nil
}

// Export builds a signed audit export of one item's clearing history.
func (s *ClearingService) Export(itemID string) (types.ExportResponse, error) {
	if s.Signer == nil {
		return types.ExportResponse{}, fmt.Errorf("signing key not configured")
	}
	item, ok := s.Store.GetItem(itemID)
	if !ok {
		return types.ExportResponse{}, fmt.Errorf("%w: %s", clearing.ErrNodeNotFound, itemID)
	}
	entries, err := s.Store.ListHistory(itemID)
	if err != nil {
		return types.ExportResponse{}, err
	}

	in := audit.ExportInput{
		ItemID:      itemID,
		Path:        item.Path,
		GeneratedAt: s.now().Format(time.RFC3339),
	}
	for _, entry := range entries {
		in.Entries = append(in.Entries, audit.Entry{
			EventID:   entry.EventID,
			Kind:      entry.Kind,
			Seq:       entry.Seq,
			CreatedAt: entry.CreatedAt,
		})
	}

	export, err := audit.MakeExport(in, s.Signer)
	if err != nil {
		return types.ExportResponse{}, err
	}
	return types.ExportResponse{
		ExportID: export.ExportID,
		ItemID:   export.ItemID,
		Body:     export.BodyJSON,
		Digest:   export.BodyDigest,
		KeyID:    export.KeyID,
		Sig:      export.Sig,
	}, nil
}

// UploadStatus grades how far an upload's review is.
func (s *ClearingService) UploadStatus(uploadID string) (types.UploadStatusResponse, error) {
	items, err := s.Store.ListItems(uploadID)
	if err != nil {
		return types.UploadStatusResponse{}, err
	}
	if len(items) == 0 {
		return types.UploadStatusResponse{}, fmt.Errorf("%w: upload %s", ledger.ErrItemNotFound, uploadID)
	}

	in := report.Input{UploadID: uploadID}
	for _, item := range items {
		summary := report.ItemSummary{ItemID: item.ItemID, IsDir: item.IsDir}
		if decision, ok := s.Store.GetDecision(item.ItemID); ok {
			summary.HasDecision = true
			summary.Kind = clearing.DecisionKind(decision.Kind)
		}
		findings, err := s.Store.ListFindings(item.ItemID)
		if err != nil {
			return types.UploadStatusResponse{}, err
		}
		for _, finding := range findings {
			if finding.Active {
				summary.ActiveFindings++
			}
		}
		in.Items = append(in.Items, summary)
	}

	result := report.Evaluate(in)
	return types.UploadStatusResponse{
		UploadID:  uploadID,
		Grade:     result.Grade,
		Decided:   result.Decided,
		Undecided: result.Undecided,
		Reasons:   result.Reasons,
	}, nil
}
