package clearing

import (
	"fmt"
	"iter"
	"time"
)

// TreeItem is the propagator's view of one node in an upload tree.
type TreeItem struct {
	ID    string
	Path  string
	IsDir bool
}

// Finding is the propagator's view of one copyright finding.
type Finding struct {
	ID     string
	Active bool
}

// TreeStore provides read access to the upload tree.
type TreeStore interface {
	// ListSubtree yields the nodes under targetID in depth-first order,
	// inclusive of targetID itself. The sequence is single-use.
	ListSubtree(targetID string) (iter.Seq[TreeItem], error)
	HasDetectedLicense(itemID string) (bool, error)
}

// CopyrightStore owns copyright findings. Findings are never deleted; the
// propagator only ever flips active findings to inactive.
type CopyrightStore interface {
	FindingsFor(itemID string) ([]Finding, error)
	SetActive(findingID string, active bool, at time.Time) error
}

// DecisionStore holds the current decision per node, last write wins.
type DecisionStore interface {
	SetCurrentDecision(itemID string, kind DecisionKind, at time.Time) error
}

// HistoryLog is append-only. A failed append is fatal to that node's
// application.
type HistoryLog interface {
	Append(itemID string, kind DecisionKind, at time.Time) error
}

// NodeFailure records one node whose writes failed mid-traversal.
type NodeFailure struct {
	ItemID string
	Err    error
}

// Result reports what a propagation touched. Writes to nodes listed outside
// Failed are durable regardless of the overall outcome.
type Result struct {
	Visited             int
	Applied             int
	Skipped             int
	DeactivatedFindings []string
	Failed              []NodeFailure
	EffectiveSkip       SkipOption
}

// Propagator applies a clearing decision to every eligible node of a subtree.
type Propagator struct {
	Tree       TreeStore
	Copyrights CopyrightStore
	Decisions  DecisionStore
	History    HistoryLog

	// Now overrides the clock in tests.
	Now func() time.Time
}

func (p *Propagator) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// Apply walks the subtree rooted at targetID and applies kind to every
// eligible node: the current decision is overwritten, one history entry is
// appended unconditionally, and copyright findings are deactivated when the
// kind's rule says so. Unknown kinds and missing targets are rejected before
// any store write. Per-node write failures do not stop the traversal and are
// never rolled back; a non-empty failure list makes the overall call fail.
func (p *Propagator) Apply(targetID string, kind DecisionKind, requested SkipOption) (Result, error) {
	rule, err := Classify(kind)
	if err != nil {
		return Result{}, err
	}
	if requested != SkipNone && requested != SkipNoLicense {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownSkipOption, requested)
	}

	items, err := p.Tree.ListSubtree(targetID)
	if err != nil {
		return Result{}, err
	}

	res := Result{EffectiveSkip: EffectiveSkip(rule, requested)}
	now := p.now()

	for item := range items {
		res.Visited++

		if res.EffectiveSkip == SkipNoLicense {
			licensed, err := p.Tree.HasDetectedLicense(item.ID)
			if err != nil {
				res.Failed = append(res.Failed, NodeFailure{ItemID: item.ID, Err: err})
				continue
			}
			if !licensed {
				res.Skipped++
				continue
			}
		}

		if err := p.applyNode(item, kind, rule, now, &res); err != nil {
			res.Failed = append(res.Failed, NodeFailure{ItemID: item.ID, Err: err})
			continue
		}
		res.Applied++
	}

	if len(res.Failed) > 0 {
		return res, fmt.Errorf("%w: %d of %d nodes failed", ErrStoreWrite, len(res.Failed), res.Visited)
	}
	return res, nil
}

func (p *Propagator) applyNode(item TreeItem, kind DecisionKind, rule Rule, at time.Time, res *Result) error {
	if err := p.Decisions.SetCurrentDecision(item.ID, kind, at); err != nil {
		return fmt.Errorf("set decision: %w", err)
	}

	// History is an audit log, not a diff: every application appends an
	// entry, including a re-apply of the unchanged kind.
	if err := p.History.Append(item.ID, kind, at); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	if !rule.DeactivatesCopyright {
		// Never reactivate; findings already inactive stay inactive.
		return nil
	}

	findings, err := p.Copyrights.FindingsFor(item.ID)
	if err != nil {
		return fmt.Errorf("list findings: %w", err)
	}
	for _, finding := range findings {
		if !finding.Active {
			continue
		}
		if err := p.Copyrights.SetActive(finding.ID, false, at); err != nil {
			return fmt.Errorf("deactivate finding %s: %w", finding.ID, err)
		}
		res.DeactivatedFindings = append(res.DeactivatedFindings, finding.ID)
	}
	return nil
}
