package analysis

import (
	"fmt"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpghunt/cpghunt/internal/cpg"
)

func newTestTarget(q *fakeQueries, o *fakeOracle) *Target {
	return NewTarget("/src/app", q, o, hclog.NewNullLogger())
}

func TestDiscoveryRun(t *testing.T) {
	q := newFakeQueries()
	q.addFunction(&cpg.Function{Name: "main", FullName: "main"})
	q.addFunction(&cpg.Function{Name: "assignment", FullName: "<operator>.assignment"})
	q.addFunction(&cpg.Function{Name: "system", FullName: "system", IsExternal: true})
	o := newFakeOracle()
	o.rules["system"] = &cpg.SemanticRule{Method: "system", Flows: []cpg.FlowPair{{From: 1, To: 1}}}

	target := newTestTarget(q, o)
	pass := NewDiscoveryPass(target)
	require.NoError(t, pass.Run())

	assert.Len(t, target.Functions, 2)
	assert.Len(t, target.Internal, 1)
	assert.Len(t, target.External, 1)
	assert.Len(t, target.Operators, 1)

	require.NotNil(t, q.registered)
	require.Equal(t, 1, q.registered.Len())
	assert.Equal(t, "system", q.registered.Rules[0].Method)
	assert.Equal(t, map[string]int{"METHOD": 3}, target.Stats)
}

func TestDiscoveryEnrichesExternal(t *testing.T) {
	q := newFakeQueries()
	q.addFunction(&cpg.Function{Name: "main", FullName: "main"})
	q.addFunction(&cpg.Function{Name: "popen", FullName: "popen", IsExternal: true})
	q.params["popen"] = []cpg.Parameter{{Name: "command", Index: 1, TypeName: "char*"}}
	q.usage["popen"] = `popen(cmd, "r")`

	target := newTestTarget(q, newFakeOracle())
	require.NoError(t, NewDiscoveryPass(target).Run())

	require.Len(t, target.External, 1)
	external := target.External[0]
	assert.Equal(t, "command", external.Parameters[0].Name)
	assert.Contains(t, external.Usage, "popen(cmd")

	// internal functions are not enriched
	assert.Empty(t, target.Internal[0].Parameters)
}

func TestDiscoveryEmptyGraph(t *testing.T) {
	target := newTestTarget(newFakeQueries(), newFakeOracle())
	err := NewDiscoveryPass(target).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no functions discovered")
}

func TestDiscoveryFetchFailureSkipsFunction(t *testing.T) {
	q := newFakeQueries()
	q.addFunction(&cpg.Function{Name: "main", FullName: "main"})
	q.names = append(q.names, "ghost")
	q.funcErrs["ghost"] = fmt.Errorf("node vanished")

	target := newTestTarget(q, newFakeOracle())
	require.NoError(t, NewDiscoveryPass(target).Run())
	assert.Len(t, target.Functions, 1)
}

func TestDiscoverySemanticFailureTolerated(t *testing.T) {
	q := newFakeQueries()
	q.addFunction(&cpg.Function{Name: "main", FullName: "main"})
	q.addFunction(&cpg.Function{Name: "system", FullName: "system", IsExternal: true})
	q.addFunction(&cpg.Function{Name: "exotic", FullName: "exotic", IsExternal: true})
	o := newFakeOracle()
	o.ruleErrs["exotic"] = fmt.Errorf("model refused")

	target := newTestTarget(q, o)
	pass := NewDiscoveryPass(target)
	require.NoError(t, pass.Run())

	assert.Equal(t, 1, target.Semantics.Len())
	report := pass.Report().(*DiscoveryReport)
	assert.Equal(t, 1, report.SemanticFailures)
	assert.Equal(t, []string{"system", "exotic"}, report.ExternalFunctions)
}

func TestDiscoveryRegisterFailureIsFatal(t *testing.T) {
	q := newFakeQueries()
	q.addFunction(&cpg.Function{Name: "main", FullName: "main"})
	q.registerErr = fmt.Errorf("engine rejected script")

	err := NewDiscoveryPass(newTestTarget(q, newFakeOracle())).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to register semantics")
}

func TestDiscoveryReport(t *testing.T) {
	q := newFakeQueries()
	q.addFunction(&cpg.Function{Name: "main", FullName: "main"})
	q.addFunction(&cpg.Function{Name: "system", FullName: "system", IsExternal: true})

	target := newTestTarget(q, newFakeOracle())
	pass := NewDiscoveryPass(target)
	require.NoError(t, pass.Run())

	report := pass.Report().(*DiscoveryReport)
	assert.Equal(t, DiscoveryPassName, report.Name)
	assert.Equal(t, "/src/app", report.SourcePath)
	assert.Equal(t, 2, report.FunctionCount)
	assert.Equal(t, []string{"main"}, report.InternalFunctions)
	assert.Len(t, report.Semantics, 1)
	assert.Equal(t, map[string]int{"METHOD": 3}, report.GraphStats)
}
