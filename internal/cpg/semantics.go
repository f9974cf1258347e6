package cpg

import (
	"fmt"
	"strings"
)

// FlowPair declares that data entering a function at From propagates to To.
// Indices follow the shared convention (-1 return, 0 receiver, 1.. arguments).
type FlowPair struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// SemanticRule is a declared data-flow mapping for one function whose body the
// engine cannot see. Every parameter that can carry tainted data should appear
// in at least one self-mapping, otherwise the engine kills propagation through
// the call; the rule-generation prompt enforces that convention.
type SemanticRule struct {
	Method  string     `json:"method"`
	Flows   []FlowPair `json:"flows"`
	IsRegex bool       `json:"is_regex"`
}

// EngineScript renders the rule as one FlowSemantic constructor expression.
func (r SemanticRule) EngineScript() string {
	pairs := make([]string, 0, len(r.Flows))
	for _, f := range r.Flows {
		pairs = append(pairs, fmt.Sprintf("(%d, %d)", f.From, f.To))
	}
	return fmt.Sprintf("FlowSemantic.from(%q, List(%s), regex = %t)",
		r.Method, strings.Join(pairs, ", "), r.IsRegex)
}

// RuleSet is the collection of semantic rules registered with the engine for
// one analysis session.
type RuleSet struct {
	Rules []SemanticRule `json:"rules"`
}

// Add appends a rule to the set.
func (s *RuleSet) Add(rule SemanticRule) {
	s.Rules = append(s.Rules, rule)
}

// Len returns the number of rules in the set.
func (s *RuleSet) Len() int {
	return len(s.Rules)
}

// ExtraFlowsScript renders the whole set as the engine-side declaration the
// semantics-registration sequence evaluates. An empty set yields an empty
// list declaration so the downstream context bindings stay valid.
func (s *RuleSet) ExtraFlowsScript() string {
	if len(s.Rules) == 0 {
		return "val extraFlows = List()"
	}
	parts := make([]string, 0, len(s.Rules))
	for _, rule := range s.Rules {
		parts = append(parts, rule.EngineScript())
	}
	return "val extraFlows = List(" + strings.Join(parts, ",\n") + ")"
}
