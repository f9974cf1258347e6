package analysis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpghunt/cpghunt/internal/cpg"
	"github.com/cpghunt/cpghunt/internal/joern"
)

func classifiedTarget(q *fakeQueries, o *fakeOracle) *Target {
	readFn := &cpg.Function{Name: "read", FullName: "read", IsExternal: true}
	systemFn := &cpg.Function{Name: "system", FullName: "system", IsExternal: true}

	target := newTestTarget(q, o)
	target.Functions = []*cpg.Function{readFn, systemFn}

	o.roles["read"] = []RoleAssignment{{Role: RoleSource, Index: cpg.IndexReturn, Confidence: 0.9}}
	o.roles["system"] = []RoleAssignment{{Role: RoleSink, Index: 1, Confidence: 0.95}}
	return target
}

func flowResult(source cpg.Source, sink cpg.Sink) *cpg.DataFlowResult {
	return &cpg.DataFlowResult{
		Source: source,
		Sink:   sink,
		Flows: []*cpg.FlowPath{
			{Nodes: []cpg.FlowNode{
				{ID: 1, Label: "CALL", Code: "read(fd, buf, n)", MethodCode: "int read(...)"},
				{ID: 2, Label: "CALL", Code: "system(buf)", MethodCode: "int system(char*)"},
			}},
		},
	}
}

func TestCmdInjectionConfirmsVulnerablePath(t *testing.T) {
	q := newFakeQueries()
	o := newFakeOracle()
	target := classifiedTarget(q, o)

	source := cpg.NewSource(target.Functions[0], cpg.IndexReturn)
	sink := cpg.NewSink(target.Functions[1], 1)
	q.reach[pairKey(source, sink)] = flowResult(source, sink)
	o.verdict = &FlowVerdict{
		IsVulnerable:      true,
		Confidence:        0.85,
		VulnerabilityType: "CWE-78",
		Reasoning:         "attacker data reaches the shell",
	}

	pass := NewCmdInjectionPass(target)
	require.NoError(t, pass.Run())

	require.Len(t, pass.Results(), 1)
	require.Len(t, q.enriched, 1)

	path := pass.Results()[0].Flows[0]
	assert.True(t, path.IsVulnerable)
	assert.Equal(t, 0.85, path.Confidence)
	assert.Equal(t, "CWE-78", path.VulnerabilityType)
	assert.Equal(t, "attacker data reaches the shell", path.Description)

	report := pass.Report().(*CmdInjectionReport)
	assert.Equal(t, 1, report.VulnerablePaths)
	assert.Len(t, report.Sources, 1)
	assert.Len(t, report.Sinks, 1)
}

func TestCmdInjectionNoPathsFound(t *testing.T) {
	q := newFakeQueries()
	o := newFakeOracle()
	target := classifiedTarget(q, o)

	pass := NewCmdInjectionPass(target)
	require.NoError(t, pass.Run())

	assert.Empty(t, pass.Results())
	assert.Equal(t, 0, o.judged)
	assert.Empty(t, q.enriched)
}

func TestCmdInjectionClassifyFailureSkipsFunction(t *testing.T) {
	q := newFakeQueries()
	o := newFakeOracle()
	target := classifiedTarget(q, o)
	o.roleErrs["read"] = fmt.Errorf("model returned prose")

	pass := NewCmdInjectionPass(target)
	require.NoError(t, pass.Run())

	report := pass.Report().(*CmdInjectionReport)
	assert.Equal(t, 1, report.ClassifyFailures)
	assert.Empty(t, report.Sources)
	assert.Len(t, report.Sinks, 1)
}

func TestCmdInjectionQueryFailureSkipsPair(t *testing.T) {
	q := newFakeQueries()
	o := newFakeOracle()
	target := classifiedTarget(q, o)
	q.reachErrs["read->system"] = fmt.Errorf("query timed out")

	pass := NewCmdInjectionPass(target)
	require.NoError(t, pass.Run())

	report := pass.Report().(*CmdInjectionReport)
	assert.Equal(t, 1, report.QueryFailures)
	assert.Empty(t, pass.Results())
}

func TestCmdInjectionConnectionLossAborts(t *testing.T) {
	q := newFakeQueries()
	o := newFakeOracle()
	target := classifiedTarget(q, o)
	q.reachErrs["read->system"] = &joern.ConnectionError{Op: "send"}

	err := NewCmdInjectionPass(target).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session lost")
}

func TestCmdInjectionVerdictFailureLeavesPathUnjudged(t *testing.T) {
	q := newFakeQueries()
	o := newFakeOracle()
	target := classifiedTarget(q, o)

	source := cpg.NewSource(target.Functions[0], cpg.IndexReturn)
	sink := cpg.NewSink(target.Functions[1], 1)
	q.reach[pairKey(source, sink)] = flowResult(source, sink)
	o.verdictErr = fmt.Errorf("service unavailable")

	pass := NewCmdInjectionPass(target)
	require.NoError(t, pass.Run())

	report := pass.Report().(*CmdInjectionReport)
	assert.Equal(t, 1, report.VerdictFailures)
	assert.Equal(t, 0, report.VulnerablePaths)
	assert.False(t, pass.Results()[0].Flows[0].IsVulnerable)
}

func TestCmdInjectionSanitizersRecorded(t *testing.T) {
	q := newFakeQueries()
	o := newFakeOracle()
	target := classifiedTarget(q, o)
	cleaner := &cpg.Function{Name: "sanitize_cmd", FullName: "sanitize_cmd"}
	target.Functions = append(target.Functions, cleaner)
	o.roles["sanitize_cmd"] = []RoleAssignment{{Role: RoleSanitizer, Index: 1, Confidence: 0.8}}

	pass := NewCmdInjectionPass(target)
	require.NoError(t, pass.Run())

	report := pass.Report().(*CmdInjectionReport)
	assert.Equal(t, []string{"sanitize_cmd"}, report.Sanitizers)
}
