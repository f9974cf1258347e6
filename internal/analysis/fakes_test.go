package analysis

import (
	"fmt"

	"github.com/cpghunt/cpghunt/internal/cpg"
)

// fakeQueries scripts the engine client for pass tests.
type fakeQueries struct {
	names    []string
	listErr  error
	funcs    map[string]*cpg.Function
	funcErrs map[string]error
	params   map[string][]cpg.Parameter
	usage    map[string]string

	registered  *cpg.RuleSet
	registerErr error

	reach     map[string]*cpg.DataFlowResult
	reachErrs map[string]error
	enriched  []*cpg.DataFlowResult

	stats map[string]int
}

func newFakeQueries() *fakeQueries {
	return &fakeQueries{
		funcs:     make(map[string]*cpg.Function),
		funcErrs:  make(map[string]error),
		params:    make(map[string][]cpg.Parameter),
		usage:     make(map[string]string),
		reach:     make(map[string]*cpg.DataFlowResult),
		reachErrs: make(map[string]error),
		stats:     map[string]int{"METHOD": 3},
	}
}

func (f *fakeQueries) addFunction(fn *cpg.Function) {
	f.names = append(f.names, fn.FullName)
	f.funcs[fn.FullName] = fn
}

func pairKey(source cpg.Source, sink cpg.Sink) string {
	return fmt.Sprintf("%s->%s", source.FullName, sink.FullName)
}

func (f *fakeQueries) ImportCode(path string) error { return nil }

func (f *fakeQueries) ListFunctionNames() ([]string, error) {
	return f.names, f.listErr
}

func (f *fakeQueries) FunctionByFullName(fullName string) (*cpg.Function, error) {
	if err, ok := f.funcErrs[fullName]; ok {
		return nil, err
	}
	fn, ok := f.funcs[fullName]
	if !ok {
		return nil, fmt.Errorf("unknown function %s", fullName)
	}
	copied := *fn
	return &copied, nil
}

func (f *fakeQueries) Parameters(fn *cpg.Function) ([]cpg.Parameter, error) {
	return f.params[fn.FullName], nil
}

func (f *fakeQueries) Usage(fn *cpg.Function) (string, error) {
	return f.usage[fn.FullName], nil
}

func (f *fakeQueries) RegisterSemantics(rules *cpg.RuleSet) error {
	if f.registerErr != nil {
		return f.registerErr
	}
	f.registered = rules
	return nil
}

func (f *fakeQueries) RunReachability(source cpg.Source, sink cpg.Sink) (*cpg.DataFlowResult, error) {
	key := pairKey(source, sink)
	if err, ok := f.reachErrs[key]; ok {
		return nil, err
	}
	if result, ok := f.reach[key]; ok {
		return result, nil
	}
	return &cpg.DataFlowResult{Source: source, Sink: sink}, nil
}

func (f *fakeQueries) EnrichFlowNodes(result *cpg.DataFlowResult) {
	f.enriched = append(f.enriched, result)
}

func (f *fakeQueries) Statistics() map[string]int { return f.stats }

// fakeOracle scripts model answers per function name.
type fakeOracle struct {
	roles    map[string][]RoleAssignment
	roleErrs map[string]error
	rules    map[string]*cpg.SemanticRule
	ruleErrs map[string]error

	verdict    *FlowVerdict
	verdictErr error
	judged     int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		roles:    make(map[string][]RoleAssignment),
		roleErrs: make(map[string]error),
		rules:    make(map[string]*cpg.SemanticRule),
		ruleErrs: make(map[string]error),
	}
}

func (f *fakeOracle) ClassifyFunction(fn *cpg.Function) ([]RoleAssignment, error) {
	if err, ok := f.roleErrs[fn.FullName]; ok {
		return nil, err
	}
	return f.roles[fn.FullName], nil
}

func (f *fakeOracle) FunctionSemantics(fn *cpg.Function) (*cpg.SemanticRule, error) {
	if err, ok := f.ruleErrs[fn.FullName]; ok {
		return nil, err
	}
	if rule, ok := f.rules[fn.FullName]; ok {
		return rule, nil
	}
	return &cpg.SemanticRule{Method: fn.FullName, Flows: []cpg.FlowPair{{From: 1, To: 1}}}, nil
}

func (f *fakeOracle) JudgeFlow(path *cpg.FlowPath) (*FlowVerdict, error) {
	f.judged++
	if f.verdictErr != nil {
		return nil, f.verdictErr
	}
	if f.verdict != nil {
		return f.verdict, nil
	}
	return &FlowVerdict{}, nil
}
