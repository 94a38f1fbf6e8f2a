package report

import "github.com/fossclear/fossclear/internal/clearing"

// ItemSummary is one tree node's review state, as seen by the grader.
type ItemSummary struct {
	ItemID         string
	IsDir          bool
	Kind           clearing.DecisionKind
	HasDecision    bool
	ActiveFindings int
}

type Input struct {
	UploadID string
	Items    []ItemSummary
}

type Result struct {
	Grade     string
	Decided   int
	Undecided int
	Reasons   []string
}

// Evaluate grades how far along an upload's clearing review is. An active
// copyright finding sitting under a blanket-exclusion decision means a
// propagation was missed and fails the upload outright.
func Evaluate(in Input) Result {
	if len(in.Items) == 0 {
		return Result{Grade: "F", Reasons: []string{"empty_upload"}}
	}

	missing := map[string]bool{}
	decided := 0
	open := 0

	for _, item := range in.Items {
		if !item.HasDecision {
			missing["undecided_items"] = true
			continue
		}
		decided++

		if item.Kind == clearing.KindToBeDiscussed {
			open++
			missing["open_discussions"] = true
		}

		rule, err := clearing.Classify(item.Kind)
		if err != nil {
			missing["unknown_decision_kind"] = true
			continue
		}
		if rule.DeactivatesCopyright && item.ActiveFindings > 0 {
			missing["active_findings_on_excluded"] = true
		}
	}

	undecided := len(in.Items) - decided

	// Heuristic grading.
	grade := "A"
	switch {
	case missing["active_findings_on_excluded"] || missing["unknown_decision_kind"]:
		grade = "F"
	case decided == 0:
		grade = "F"
	case undecided == 0 && open > 0:
		grade = "B"
	case undecided > 0 && decided*2 >= len(in.Items):
		grade = "C"
	case undecided > 0:
		grade = "D"
	}

	reasons := []string{}
	for _, key := range []string{"undecided_items", "open_discussions", "active_findings_on_excluded", "unknown_decision_kind"} {
		if missing[key] {
			reasons = append(reasons, key)
		}
	}

	return Result{Grade: grade, Decided: decided, Undecided: undecided, Reasons: reasons}
}
