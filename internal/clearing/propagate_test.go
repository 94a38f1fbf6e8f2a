package clearing

import (
	"errors"
	"fmt"
	"iter"
	"testing"
	"time"
)

type fakeNode struct {
	item     TreeItem
	licensed bool
	children []string
}

type fakeHistoryEntry struct {
	kind DecisionKind
	at   time.Time
}

// fakeStores backs all four collaborator interfaces for propagator tests.
type fakeStores struct {
	nodes         map[string]*fakeNode
	findings      map[string]*Finding // finding id -> finding
	owners        map[string][]string // item id -> finding ids
	current       map[string]DecisionKind
	history       map[string][]fakeHistoryEntry
	deactivatedAt map[string]time.Time

	failSetActive   map[string]error
	failAppend      map[string]error
	failSetDecision map[string]error
}

func newFakeStores() *fakeStores {
	return &fakeStores{
		nodes:         map[string]*fakeNode{},
		findings:      map[string]*Finding{},
		owners:        map[string][]string{},
		current:       map[string]DecisionKind{},
		history:       map[string][]fakeHistoryEntry{},
		deactivatedAt: map[string]time.Time{},
	}
}

func (s *fakeStores) addNode(id, parent string, licensed bool) {
	s.nodes[id] = &fakeNode{item: TreeItem{ID: id, Path: "/" + id}, licensed: licensed}
	if parent != "" {
		s.nodes[parent].children = append(s.nodes[parent].children, id)
	}
}

func (s *fakeStores) addFinding(itemID, findingID string) {
	s.findings[findingID] = &Finding{ID: findingID, Active: true}
	s.owners[itemID] = append(s.owners[itemID], findingID)
}

func (s *fakeStores) ListSubtree(targetID string) (iter.Seq[TreeItem], error) {
	if _, ok := s.nodes[targetID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, targetID)
	}
	var order []TreeItem
	var walk func(id string)
	walk = func(id string) {
		order = append(order, s.nodes[id].item)
		for _, child := range s.nodes[id].children {
			walk(child)
		}
	}
	walk(targetID)
	return func(yield func(TreeItem) bool) {
		for _, item := range order {
			if !yield(item) {
				return
			}
		}
	}, nil
}

func (s *fakeStores) HasDetectedLicense(itemID string) (bool, error) {
	node, ok := s.nodes[itemID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNodeNotFound, itemID)
	}
	return node.licensed, nil
}

func (s *fakeStores) FindingsFor(itemID string) ([]Finding, error) {
	out := []Finding{}
	for _, id := range s.owners[itemID] {
		out = append(out, *s.findings[id])
	}
	return out, nil
}

func (s *fakeStores) SetActive(findingID string, active bool, at time.Time) error {
	if err := s.failSetActive[findingID]; err != nil {
		return err
	}
	s.findings[findingID].Active = active
	s.deactivatedAt[findingID] = at
	return nil
}

func (s *fakeStores) SetCurrentDecision(itemID string, kind DecisionKind, at time.Time) error {
	if err := s.failSetDecision[itemID]; err != nil {
		return err
	}
	s.current[itemID] = kind
	return nil
}

func (s *fakeStores) Append(itemID string, kind DecisionKind, at time.Time) error {
	if err := s.failAppend[itemID]; err != nil {
		return err
	}
	s.history[itemID] = append(s.history[itemID], fakeHistoryEntry{kind: kind, at: at})
	return nil
}

func newPropagator(s *fakeStores) *Propagator {
	return &Propagator{
		Tree:       s,
		Copyrights: s,
		Decisions:  s,
		History:    s,
		Now:        func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestApplyBlanketKindIgnoresSkipOnUnlicensedNode(t *testing.T) {
	// Directory 123 contains one file carrying finding 456, active, with no
	// detected license and no prior decision.
	s := newFakeStores()
	s.addNode("123", "", false)
	s.addFinding("123", "456")

	res, err := newPropagator(s).Apply("123", KindIrrelevant, SkipNoLicense)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if res.EffectiveSkip != SkipNone {
		t.Fatalf("effective skip = %s, want none", res.EffectiveSkip)
	}
	if res.Applied != 1 || res.Skipped != 0 {
		t.Fatalf("applied=%d skipped=%d, want 1/0", res.Applied, res.Skipped)
	}
	if s.findings["456"].Active {
		t.Fatal("finding 456 should be inactive")
	}
	if s.current["123"] != KindIrrelevant {
		t.Fatalf("current decision = %s, want irrelevant", s.current["123"])
	}
	if len(s.history["123"]) != 1 || s.history["123"][0].kind != KindIrrelevant {
		t.Fatalf("history = %+v, want one irrelevant entry", s.history["123"])
	}
	if len(res.DeactivatedFindings) != 1 || res.DeactivatedFindings[0] != "456" {
		t.Fatalf("deactivated = %v, want [456]", res.DeactivatedFindings)
	}
}

func TestApplyStampsOneTimeAcrossAllWrites(t *testing.T) {
	// Decision, history, and finding deactivation on every node must carry
	// the same propagation timestamp, not per-write clock reads.
	s := newFakeStores()
	s.addNode("123", "", false)
	s.addNode("124", "123", true)
	s.addFinding("124", "456")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := newPropagator(s)
	p.Now = func() time.Time { return at }

	if _, err := p.Apply("123", KindDoNotUse, SkipNone); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if got := s.deactivatedAt["456"]; !got.Equal(at) {
		t.Fatalf("finding deactivated at %v, want %v", got, at)
	}
	for _, id := range []string{"123", "124"} {
		if got := s.history[id][0].at; !got.Equal(at) {
			t.Fatalf("history for %s stamped %v, want %v", id, got, at)
		}
	}
}

func TestApplyEvidenceKindSkipsUnlicensedNode(t *testing.T) {
	s := newFakeStores()
	s.addNode("123", "", false)
	s.addFinding("123", "456")

	res, err := newPropagator(s).Apply("123", KindIdentified, SkipNoLicense)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if res.Applied != 0 || res.Skipped != 1 {
		t.Fatalf("applied=%d skipped=%d, want 0/1", res.Applied, res.Skipped)
	}
	if !s.findings["456"].Active {
		t.Fatal("skipped node must stay untouched")
	}
	if _, ok := s.current["123"]; ok {
		t.Fatal("skipped node must have no decision")
	}
	if len(s.history["123"]) != 0 {
		t.Fatal("skipped node must gain no history entry")
	}
}

func TestApplyWalksSubtreeDepthFirst(t *testing.T) {
	s := newFakeStores()
	s.addNode("root", "", false)
	s.addNode("dir", "root", false)
	s.addNode("a.c", "dir", true)
	s.addNode("b.c", "dir", false)
	s.addFinding("a.c", "f-a")
	s.addFinding("b.c", "f-b")

	res, err := newPropagator(s).Apply("root", KindDoNotUse, SkipNoLicense)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if res.Visited != 4 || res.Applied != 4 || res.Skipped != 0 {
		t.Fatalf("visited=%d applied=%d skipped=%d, want 4/4/0", res.Visited, res.Applied, res.Skipped)
	}
	for _, id := range []string{"root", "dir", "a.c", "b.c"} {
		if s.current[id] != KindDoNotUse {
			t.Fatalf("node %s decision = %s", id, s.current[id])
		}
	}
	if s.findings["f-a"].Active || s.findings["f-b"].Active {
		t.Fatal("all findings should be inactive")
	}
}

func TestApplyEvidenceKindHonorsSkipAcrossSubtree(t *testing.T) {
	s := newFakeStores()
	s.addNode("root", "", false)
	s.addNode("a.c", "root", true)
	s.addNode("b.c", "root", false)

	res, err := newPropagator(s).Apply("root", KindIdentified, SkipNoLicense)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Visited != 3 || res.Applied != 1 || res.Skipped != 2 {
		t.Fatalf("visited=%d applied=%d skipped=%d, want 3/1/2", res.Visited, res.Applied, res.Skipped)
	}
	if s.current["a.c"] != KindIdentified {
		t.Fatal("licensed node must be applied")
	}
}

func TestApplyHistoryAccumulates(t *testing.T) {
	s := newFakeStores()
	s.addNode("123", "", false)
	s.addFinding("123", "456")
	p := newPropagator(s)

	for _, kind := range []DecisionKind{KindIrrelevant, KindDoNotUse, KindNonFunctional} {
		if _, err := p.Apply("123", kind, SkipNoLicense); err != nil {
			t.Fatalf("Apply(%s): %v", kind, err)
		}
		if s.findings["456"].Active {
			t.Fatalf("finding reactivated after %s", kind)
		}
	}

	if len(s.history["123"]) != 3 {
		t.Fatalf("history entries = %d, want 3", len(s.history["123"]))
	}
	if s.current["123"] != KindNonFunctional {
		t.Fatalf("current decision = %s, want non_functional (last write wins)", s.current["123"])
	}
}

func TestApplyNeverReactivatesFindings(t *testing.T) {
	s := newFakeStores()
	s.addNode("123", "", true)
	s.addFinding("123", "456")
	p := newPropagator(s)

	if _, err := p.Apply("123", KindIrrelevant, SkipNone); err != nil {
		t.Fatal(err)
	}
	if s.findings["456"].Active {
		t.Fatal("finding should be inactive")
	}

	// Identified does not deactivate, and must not reactivate either.
	res, err := p.Apply("123", KindIdentified, SkipNone)
	if err != nil {
		t.Fatal(err)
	}
	if s.findings["456"].Active {
		t.Fatal("inactive is terminal")
	}
	if len(res.DeactivatedFindings) != 0 {
		t.Fatalf("deactivated = %v, want none", res.DeactivatedFindings)
	}
}

func TestApplyUnknownKindTouchesNothing(t *testing.T) {
	s := newFakeStores()
	s.addNode("123", "", true)
	s.addFinding("123", "456")

	_, err := newPropagator(s).Apply("123", DecisionKind("BogusKind"), SkipNone)
	if !errors.Is(err, ErrUnknownDecisionKind) {
		t.Fatalf("expected ErrUnknownDecisionKind, got %v", err)
	}
	if len(s.history["123"]) != 0 || len(s.current) != 0 || !s.findings["456"].Active {
		t.Fatal("no store may be touched on rejected input")
	}
}

func TestApplyUnknownSkipOptionRejected(t *testing.T) {
	s := newFakeStores()
	s.addNode("123", "", true)

	_, err := newPropagator(s).Apply("123", KindIdentified, SkipOption("sometimes"))
	if !errors.Is(err, ErrUnknownSkipOption) {
		t.Fatalf("expected ErrUnknownSkipOption, got %v", err)
	}
}

func TestApplyMissingTarget(t *testing.T) {
	s := newFakeStores()
	_, err := newPropagator(s).Apply("nope", KindIrrelevant, SkipNone)
	if !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestApplyReportsPerNodeFailuresAndKeepsGoing(t *testing.T) {
	s := newFakeStores()
	s.addNode("root", "", false)
	s.addNode("a.c", "root", false)
	s.addNode("b.c", "root", false)
	s.failAppend = map[string]error{"a.c": errors.New("disk full")}

	res, err := newPropagator(s).Apply("root", KindIrrelevant, SkipNone)
	if !errors.Is(err, ErrStoreWrite) {
		t.Fatalf("expected ErrStoreWrite, got %v", err)
	}

	if res.Visited != 3 || res.Applied != 2 {
		t.Fatalf("visited=%d applied=%d, want 3/2", res.Visited, res.Applied)
	}
	if len(res.Failed) != 1 || res.Failed[0].ItemID != "a.c" {
		t.Fatalf("failed = %+v, want a.c", res.Failed)
	}
	// No rollback: the failed node's decision write stays durable, and the
	// node after the failure was still applied.
	if s.current["a.c"] != KindIrrelevant {
		t.Fatal("decision written before the history failure must remain")
	}
	if s.current["b.c"] != KindIrrelevant {
		t.Fatal("traversal must continue past a failed node")
	}
}

func TestApplyFindingDeactivationFailure(t *testing.T) {
	s := newFakeStores()
	s.addNode("123", "", true)
	s.addFinding("123", "456")
	s.failSetActive = map[string]error{"456": errors.New("write denied")}

	res, err := newPropagator(s).Apply("123", KindDoNotUse, SkipNone)
	if !errors.Is(err, ErrStoreWrite) {
		t.Fatalf("expected ErrStoreWrite, got %v", err)
	}
	if len(res.Failed) != 1 || res.Applied != 0 {
		t.Fatalf("failed=%+v applied=%d", res.Failed, res.Applied)
	}
	// The node's decision and history writes preceded the failure and stay.
	if len(s.history["123"]) != 1 {
		t.Fatal("history entry written before the failure must remain")
	}
}
