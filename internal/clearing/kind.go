package clearing

import "fmt"

// DecisionKind is a reviewer's legal classification of a tree node.
type DecisionKind string

const (
	KindIrrelevant    DecisionKind = "irrelevant"
	KindDoNotUse      DecisionKind = "do_not_use"
	KindNonFunctional DecisionKind = "non_functional"
	KindIdentified    DecisionKind = "identified"
	KindToBeDiscussed DecisionKind = "to_be_discussed"
)

// Rule holds the behavioral flags of a decision kind. The two flags coincide
// for every kind known today but stay independently settable: the table below
// is the single source of truth, and a future kind may set them apart.
type Rule struct {
	// DeactivatesCopyright marks copyright findings on applied nodes inactive.
	DeactivatesCopyright bool
	// AppliesWithoutLicense makes the decision take effect on nodes that have
	// no detected license, overriding any requested skip option.
	AppliesWithoutLicense bool
}

var ruleTable = map[DecisionKind]Rule{
	KindIrrelevant:    {DeactivatesCopyright: true, AppliesWithoutLicense: true},
	KindDoNotUse:      {DeactivatesCopyright: true, AppliesWithoutLicense: true},
	KindNonFunctional: {DeactivatesCopyright: true, AppliesWithoutLicense: true},
	KindIdentified:    {DeactivatesCopyright: false, AppliesWithoutLicense: false},
	KindToBeDiscussed: {DeactivatesCopyright: false, AppliesWithoutLicense: false},
}

// Classify returns the behavioral flags for kind. Safe for concurrent use;
// the table is immutable after process start.
func Classify(kind DecisionKind) (Rule, error) {
	rule, ok := ruleTable[kind]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownDecisionKind, kind)
	}
	return rule, nil
}

// Kinds returns the known decision kinds in a stable order.
func Kinds() []DecisionKind {
	return []DecisionKind{
		KindIrrelevant,
		KindDoNotUse,
		KindNonFunctional,
		KindIdentified,
		KindToBeDiscussed,
	}
}

// ParseKind validates a wire value against the closed enumeration.
func ParseKind(s string) (DecisionKind, error) {
	kind := DecisionKind(s)
	if _, err := Classify(kind); err != nil {
		return "", err
	}
	return kind, nil
}

// SkipOption controls whether license-less nodes are excluded from a
// decision's effect during propagation.
type SkipOption string

const (
	SkipNone      SkipOption = "none"
	SkipNoLicense SkipOption = "noLicense"
)

// ParseSkipOption validates a wire value. The empty string means SkipNone.
func ParseSkipOption(s string) (SkipOption, error) {
	switch SkipOption(s) {
	case "":
		return SkipNone, nil
	case SkipNone:
		return SkipNone, nil
	case SkipNoLicense:
		return SkipNoLicense, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSkipOption, s)
	}
}

// EffectiveSkip resolves the caller's requested skip option against the rule.
// A decision that applies without license evidence must never be skipped on
// license-less nodes, so the request is overridden to SkipNone for those
// kinds. Only kinds that require license evidence honor the request as-is.
func EffectiveSkip(rule Rule, requested SkipOption) SkipOption {
	if rule.AppliesWithoutLicense {
		return SkipNone
	}
	return requested
}
