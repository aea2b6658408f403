package domain

import (
	"encoding/json"
	"fmt"
)

// RuleKind tags the badge rule variants. New badges are data, not code: admins
// add rows with one of these kinds instead of new conditionals.
type RuleKind string

const (
	// RulePointsThreshold is satisfied when the user's points total reaches Threshold.
	RulePointsThreshold RuleKind = "points_threshold"
	// RuleSourceCount is satisfied when the user has at least Count ledger events
	// of the given Source.
	RuleSourceCount RuleKind = "source_count"
	// RuleAllOf is satisfied when every child rule is satisfied.
	RuleAllOf RuleKind = "all_of"
)

// BadgeRule is a declarative predicate over a user's aggregate ledger state.
type BadgeRule struct {
	Kind      RuleKind   `json:"kind"`
	Threshold int64      `json:"threshold,omitempty"`
	Source    SourceType `json:"source,omitempty"`
	Count     int64      `json:"count,omitempty"`
	AllOf     []BadgeRule `json:"all_of,omitempty"`
}

// Aggregate is the user state badge rules are evaluated against. It is always
// derived from the ledger, never from a stored counter.
type Aggregate struct {
	PointsTotal    int64
	EventsBySource map[SourceType]int64
}

// Satisfied evaluates the rule against the aggregate.
func (r BadgeRule) Satisfied(a Aggregate) bool {
	switch r.Kind {
	case RulePointsThreshold:
		return a.PointsTotal >= r.Threshold
	case RuleSourceCount:
		return a.EventsBySource[r.Source] >= r.Count
	case RuleAllOf:
		for _, child := range r.AllOf {
			if !child.Satisfied(a) {
				return false
			}
		}
		return true
	}
	return false
}

// Validate rejects rules that could never award or are structurally malformed.
func (r BadgeRule) Validate() error {
	switch r.Kind {
	case RulePointsThreshold:
		if r.Threshold <= 0 {
			return fmt.Errorf("rule %s: threshold must be positive", r.Kind)
		}
	case RuleSourceCount:
		if r.Source == "" {
			return fmt.Errorf("rule %s: source is required", r.Kind)
		}
		if r.Count <= 0 {
			return fmt.Errorf("rule %s: count must be positive", r.Kind)
		}
	case RuleAllOf:
		if len(r.AllOf) == 0 {
			return fmt.Errorf("rule %s: needs at least one child", r.Kind)
		}
		for _, child := range r.AllOf {
			if err := child.Validate(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	return nil
}

// Badge is static reference data: a name plus the rule that awards it.
// Evaluation order is insertion order of badge definitions.
type Badge struct {
	BadgeID string
	Name    string
	Rule    BadgeRule
}

// ParseRule decodes a rule from its stored JSON form.
func ParseRule(raw []byte) (BadgeRule, error) {
	var r BadgeRule
	if err := json.Unmarshal(raw, &r); err != nil {
		return BadgeRule{}, fmt.Errorf("decode badge rule: %w", err)
	}
	if err := r.Validate(); err != nil {
		return BadgeRule{}, err
	}
	return r, nil
}
