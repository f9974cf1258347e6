package cpg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineScript(t *testing.T) {
	rule := SemanticRule{
		Method: "strcpy",
		Flows:  []FlowPair{{From: 2, To: 1}, {From: 1, To: 1}, {From: 2, To: 2}},
	}
	assert.Equal(t,
		`FlowSemantic.from("strcpy", List((2, 1), (1, 1), (2, 2)), regex = false)`,
		rule.EngineScript())
}

func TestEngineScriptRegex(t *testing.T) {
	rule := SemanticRule{
		Method:  "mem.*",
		Flows:   []FlowPair{{From: 2, To: 1}},
		IsRegex: true,
	}
	assert.Equal(t,
		`FlowSemantic.from("mem.*", List((2, 1)), regex = true)`,
		rule.EngineScript())
}

func TestExtraFlowsScriptEmpty(t *testing.T) {
	var set RuleSet
	assert.Equal(t, "val extraFlows = List()", set.ExtraFlowsScript())
}

func TestExtraFlowsScript(t *testing.T) {
	var set RuleSet
	set.Add(SemanticRule{Method: "strcpy", Flows: []FlowPair{{From: 2, To: 1}}})
	set.Add(SemanticRule{Method: "fgets", Flows: []FlowPair{{From: 3, To: 1}}})
	require.Equal(t, 2, set.Len())

	script := set.ExtraFlowsScript()
	assert.Equal(t,
		"val extraFlows = List("+
			`FlowSemantic.from("strcpy", List((2, 1)), regex = false),`+"\n"+
			`FlowSemantic.from("fgets", List((3, 1)), regex = false))`,
		script)
}

func TestSemanticRuleRoundTrip(t *testing.T) {
	in := SemanticRule{
		Method:  "recv",
		Flows:   []FlowPair{{From: -1, To: 2}, {From: 2, To: 2}},
		IsRegex: false,
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out SemanticRule
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
	assert.Equal(t, in.EngineScript(), out.EngineScript())
}
