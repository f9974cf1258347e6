package analysis

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/cpghunt/cpghunt/internal/cpg"
	"github.com/cpghunt/cpghunt/internal/joern"
)

// CmdInjectionPassName identifies the CWE-78 pass in reports.
const CmdInjectionPassName = "cmdinjection"

// CmdInjectionPass hunts OS command injection: it classifies every discovered
// function into taint roles, runs a reachability query for each source/sink
// pair and asks the model to judge every concrete path.
type CmdInjectionPass struct {
	target *Target
	logger hclog.Logger

	sources    []cpg.Source
	sinks      []cpg.Sink
	sanitizers []*cpg.Function
	results    []*cpg.DataFlowResult

	classifyFailures int
	queryFailures    int
	verdictFailures  int
}

// NewCmdInjectionPass binds the pass to a target.
func NewCmdInjectionPass(t *Target) *CmdInjectionPass {
	return &CmdInjectionPass{
		target: t,
		logger: t.Logger.Named(CmdInjectionPassName),
	}
}

func (p *CmdInjectionPass) Name() string { return CmdInjectionPassName }

// Run executes classification, taint analysis and path judgment in order.
func (p *CmdInjectionPass) Run() error {
	p.classify()
	p.logger.Info("classification complete",
		"sources", len(p.sources), "sinks", len(p.sinks),
		"sanitizers", len(p.sanitizers), "failures", p.classifyFailures)

	if err := p.taint(); err != nil {
		return err
	}
	p.judge()
	return nil
}

// classify asks the model for taint roles per function. A malformed response
// for one function is logged and costs only that function.
func (p *CmdInjectionPass) classify() {
	for _, fn := range p.target.Functions {
		roles, err := p.target.Oracle.ClassifyFunction(fn)
		if err != nil {
			p.classifyFailures++
			p.logger.Warn("classification failed, skipping function", "function", fn.FullName, "error", err)
			continue
		}
		for _, role := range roles {
			p.logger.Info("role accepted",
				"function", fn.FullName, "role", role.Role,
				"index", role.Index, "confidence", role.Confidence)
			switch role.Role {
			case RoleSource:
				p.sources = append(p.sources, cpg.NewSource(fn, role.Index))
			case RoleSink:
				p.sinks = append(p.sinks, cpg.NewSink(fn, role.Index))
			case RoleSanitizer:
				p.sanitizers = append(p.sanitizers, fn)
			}
		}
	}
}

// taint runs one reachability query per source/sink pair in discovery order.
// A failed pair is logged and skipped unless the session itself is gone, in
// which case no further query can succeed and the run aborts.
func (p *CmdInjectionPass) taint() error {
	for _, source := range p.sources {
		for _, sink := range p.sinks {
			result, err := p.target.Queries.RunReachability(source, sink)
			if err != nil {
				if joern.IsConnectionError(err) {
					return fmt.Errorf("engine session lost during taint analysis: %w", err)
				}
				p.queryFailures++
				p.logger.Warn("reachability query failed, skipping pair",
					"source", source.FullName, "sink", sink.FullName, "error", err)
				continue
			}
			if result.FlowCount() == 0 {
				p.logger.Info("no path found",
					"source", source.FullName, "sink", sink.FullName)
				continue
			}
			p.target.Queries.EnrichFlowNodes(result)
			p.results = append(p.results, result)
			p.logger.Info("paths found",
				"source", source.FullName, "sink", sink.FullName,
				"paths", result.FlowCount(), "elapsed", result.Elapsed)
		}
	}
	return nil
}

// judge submits every discovered path for an exploitability verdict and
// stores the verdict back onto the path.
func (p *CmdInjectionPass) judge() {
	for _, result := range p.results {
		for _, path := range result.Flows {
			verdict, err := p.target.Oracle.JudgeFlow(path)
			if err != nil {
				p.verdictFailures++
				p.logger.Warn("path judgment failed, leaving path unjudged",
					"source", result.Source.FullName, "sink", result.Sink.FullName, "error", err)
				continue
			}
			path.IsVulnerable = verdict.IsVulnerable
			path.Confidence = verdict.Confidence
			path.VulnerabilityType = verdict.VulnerabilityType
			path.Description = verdict.Reasoning
			if verdict.IsVulnerable {
				p.logger.Info("vulnerable path confirmed",
					"source", result.Source.FullName, "sink", result.Sink.FullName,
					"confidence", verdict.Confidence, "sanitizers", verdict.Sanitizers)
			}
		}
	}
}

// Results exposes the collected flow results, for report writers.
func (p *CmdInjectionPass) Results() []*cpg.DataFlowResult {
	return p.results
}

// CmdInjectionReport is the serialized outcome of the pass.
type CmdInjectionReport struct {
	Name             string                `json:"name"`
	Sources          []cpg.Source          `json:"sources"`
	Sinks            []cpg.Sink            `json:"sinks"`
	Sanitizers       []string              `json:"sanitizers"`
	DataFlowResults  []*cpg.DataFlowResult `json:"data_flow_results"`
	VulnerablePaths  int                   `json:"vulnerable_paths"`
	ClassifyFailures int                   `json:"classify_failures"`
	QueryFailures    int                   `json:"query_failures"`
	VerdictFailures  int                   `json:"verdict_failures"`
}

func (p *CmdInjectionPass) Report() interface{} {
	vulnerable := 0
	for _, result := range p.results {
		vulnerable += len(result.VulnerableFlows())
	}
	return &CmdInjectionReport{
		Name:             CmdInjectionPassName,
		Sources:          p.sources,
		Sinks:            p.sinks,
		Sanitizers:       fullNames(p.sanitizers),
		DataFlowResults:  p.results,
		VulnerablePaths:  vulnerable,
		ClassifyFailures: p.classifyFailures,
		QueryFailures:    p.queryFailures,
		VerdictFailures:  p.verdictFailures,
	}
}
