package graph

import (
	"fmt"
	"strings"

	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/predicate"
)

// Rule is a navigation rule attached to a trigger step.
// Sealed: only PredicateRule and DirectRule implement it.
type Rule interface {
	// Destinations lists every step the rule can yield, in rule order.
	Destinations() []ir.StepID
	String() string
	rule()
}

// Branch pairs a predicate with the destination it selects.
type Branch struct {
	Predicate   predicate.Predicate
	Destination ir.StepID
}

// PredicateRule selects the destination of the first branch whose predicate
// matches. When none matches, Default is used if set; otherwise navigation
// falls through to the declared order.
type PredicateRule struct {
	Branches []Branch
	Default  ir.StepID
}

func (PredicateRule) rule() {}

// Destinations implements Rule.
func (r PredicateRule) Destinations() []ir.StepID {
	out := make([]ir.StepID, 0, len(r.Branches)+1)
	for _, b := range r.Branches {
		out = append(out, b.Destination)
	}
	if r.Default != "" {
		out = append(out, r.Default)
	}
	return out
}

func (r PredicateRule) String() string {
	parts := make([]string, 0, len(r.Branches)+1)
	for _, b := range r.Branches {
		parts = append(parts, fmt.Sprintf("%s -> %s", b.Predicate, b.Destination))
	}
	if r.Default != "" {
		parts = append(parts, "default -> "+string(r.Default))
	}
	return "predicate[" + strings.Join(parts, "; ") + "]"
}

// DirectRule always yields Destination. A destination of ir.NullStepID ends
// the run.
type DirectRule struct {
	Destination ir.StepID
}

func (DirectRule) rule() {}

// Destinations implements Rule.
func (r DirectRule) Destinations() []ir.StepID {
	return []ir.StepID{r.Destination}
}

func (r DirectRule) String() string {
	return "direct -> " + string(r.Destination)
}

func validateRule(trigger ir.StepID, r Rule) error {
	switch rule := r.(type) {
	case nil:
		return configErr(ErrCodeInvalidRule, trigger, "rule is nil")
	case DirectRule:
		if rule.Destination == "" {
			return configErr(ErrCodeInvalidRule, trigger, "direct rule has no destination")
		}
	case *DirectRule:
		if rule == nil {
			return configErr(ErrCodeInvalidRule, trigger, "rule is nil")
		}
		return validateRule(trigger, *rule)
	case PredicateRule:
		if len(rule.Branches) == 0 && rule.Default == "" {
			return configErr(ErrCodeInvalidRule, trigger, "predicate rule has no branches")
		}
		for i, b := range rule.Branches {
			if b.Predicate == nil {
				return configErr(ErrCodeInvalidRule, trigger, "branch %d has no predicate", i)
			}
			if b.Destination == "" {
				return configErr(ErrCodeInvalidRule, trigger, "branch %d has no destination", i)
			}
		}
	case *PredicateRule:
		if rule == nil {
			return configErr(ErrCodeInvalidRule, trigger, "rule is nil")
		}
		return validateRule(trigger, *rule)
	default:
		return configErr(ErrCodeInvalidRule, trigger, "unsupported rule type %T", r)
	}
	return nil
}
