package ledger

import (
	"fmt"
	"iter"
	"time"

	"github.com/fossclear/fossclear/internal/clearing"
)

// Stores adapts a ledger Store to the collaborator interfaces the propagation
// engine consumes. The subtree is materialized in depth-first order up front
// so that a broken tree read rejects the propagation before any write; the
// returned sequence is still single-use.
type Stores struct {
	S Store
}

func (a Stores) ListSubtree(targetID string) (iter.Seq[clearing.TreeItem], error) {
	root, ok := a.S.GetItem(targetID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", clearing.ErrNodeNotFound, targetID)
	}

	var order []clearing.TreeItem
	visited := map[string]bool{}
	var walk func(item ItemRecord) error
	walk = func(item ItemRecord) error {
		// A parent cycle in the stored tree would otherwise recurse forever.
		if visited[item.ItemID] {
			return fmt.Errorf("%w: item %s revisited", clearing.ErrTreeCycle, item.ItemID)
		}
		visited[item.ItemID] = true
		order = append(order, clearing.TreeItem{ID: item.ItemID, Path: item.Path, IsDir: item.IsDir})
		children, err := a.S.ListChildren(item.ItemID)
		if err != nil {
			return fmt.Errorf("list children of %s: %w", item.ItemID, err)
		}
		for _, child := range children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}

	return func(yield func(clearing.TreeItem) bool) {
		for _, item := range order {
			if !yield(item) {
				return
			}
		}
	}, nil
}

func (a Stores) HasDetectedLicense(itemID string) (bool, error) {
	item, ok := a.S.GetItem(itemID)
	if !ok {
		return false, fmt.Errorf("%w: %s", clearing.ErrNodeNotFound, itemID)
	}
	return item.DetectedLicense != "", nil
}

func (a Stores) FindingsFor(itemID string) ([]clearing.Finding, error) {
	records, err := a.S.ListFindings(itemID)
	if err != nil {
		return nil, err
	}
	out := make([]clearing.Finding, 0, len(records))
	for _, rec := range records {
		out = append(out, clearing.Finding{ID: rec.FindingID, Active: rec.Active})
	}
	return out, nil
}

func (a Stores) SetActive(findingID string, active bool, at time.Time) error {
	return a.S.SetFindingActive(findingID, active, at.UTC().Format(time.RFC3339))
}

func (a Stores) SetCurrentDecision(itemID string, kind clearing.DecisionKind, at time.Time) error {
	return a.S.PutDecision(DecisionRecord{
		ItemID:    itemID,
		Kind:      string(kind),
		UpdatedAt: at.UTC().Format(time.RFC3339),
	})
}

func (a Stores) Append(itemID string, kind clearing.DecisionKind, at time.Time) error {
	_, err := a.S.AppendHistory(itemID, string(kind), at.UTC().Format(time.RFC3339))
	return err
}
