package analysis

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/cpghunt/cpghunt/internal/cpg"
)

// DiscoveryPassName identifies the inventory pass in reports.
const DiscoveryPassName = "discovery"

// DiscoveryPass builds the function inventory of the imported code base,
// enriches external functions the engine cannot see into, generates data-flow
// semantics for them and registers those semantics with the engine. It must
// run before any vulnerability pass.
type DiscoveryPass struct {
	target *Target
	logger hclog.Logger

	semanticFailures int
}

// NewDiscoveryPass binds the pass to a target.
func NewDiscoveryPass(t *Target) *DiscoveryPass {
	return &DiscoveryPass{
		target: t,
		logger: t.Logger.Named(DiscoveryPassName),
	}
}

func (p *DiscoveryPass) Name() string { return DiscoveryPassName }

// Run inventories functions, generates semantics and registers them. A failed
// registration is fatal to the run, because reachability queries would be
// rejected anyway.
func (p *DiscoveryPass) Run() error {
	if err := p.inventory(); err != nil {
		return err
	}
	if len(p.target.Functions) == 0 {
		return fmt.Errorf("no functions discovered in %s", p.target.SourcePath)
	}

	p.generateSemantics()

	if err := p.target.Queries.RegisterSemantics(p.target.Semantics); err != nil {
		return fmt.Errorf("failed to register semantics: %w", err)
	}

	p.target.Stats = p.target.Queries.Statistics()
	return nil
}

// inventory lists every function the engine knows and sorts each into the
// internal, external or operator bucket.
func (p *DiscoveryPass) inventory() error {
	names, err := p.target.Queries.ListFunctionNames()
	if err != nil {
		return fmt.Errorf("failed to list functions: %w", err)
	}
	p.logger.Info("function names listed", "count", len(names))

	for _, fullName := range names {
		if fullName == "" {
			p.logger.Warn("skipping empty function name")
			continue
		}
		fn, err := p.fetch(fullName)
		if err != nil {
			p.logger.Warn("failed to fetch function, skipping", "function", fullName, "error", err)
			continue
		}

		switch {
		case fn.IsOperator():
			p.target.Operators = append(p.target.Operators, fn)
		case fn.IsExternal:
			p.target.External = append(p.target.External, fn)
			p.target.Functions = append(p.target.Functions, fn)
		default:
			p.target.Internal = append(p.target.Internal, fn)
			p.target.Functions = append(p.target.Functions, fn)
		}
	}

	p.logger.Info("inventory complete",
		"total", len(p.target.Functions),
		"internal", len(p.target.Internal),
		"external", len(p.target.External),
		"operators", len(p.target.Operators))
	return nil
}

// fetch retrieves one function and, for external non-operator functions,
// fills the parameter list and usage snippet the engine cannot derive from a
// missing body. Enrichment failures degrade to an unenriched function.
func (p *DiscoveryPass) fetch(fullName string) (*cpg.Function, error) {
	fn, err := p.target.Queries.FunctionByFullName(fullName)
	if err != nil {
		return nil, err
	}
	if !fn.IsExternal || fn.IsOperator() {
		return fn, nil
	}

	params, err := p.target.Queries.Parameters(fn)
	if err != nil {
		p.logger.Warn("failed to fetch parameters", "function", fullName, "error", err)
	} else {
		fn.Parameters = params
	}
	usage, err := p.target.Queries.Usage(fn)
	if err != nil {
		p.logger.Warn("failed to fetch usage", "function", fullName, "error", err)
	} else {
		fn.Usage = usage
	}
	return fn, nil
}

// generateSemantics asks the model for a data-flow rule per external function.
// A single failed function is logged and skipped, the batch continues.
func (p *DiscoveryPass) generateSemantics() {
	if len(p.target.External) == 0 {
		p.logger.Info("no external functions, nothing to model")
		return
	}

	for i, fn := range p.target.External {
		p.logger.Debug("modeling external function",
			"function", fn.FullName, "progress", fmt.Sprintf("%d/%d", i+1, len(p.target.External)))
		rule, err := p.target.Oracle.FunctionSemantics(fn)
		if err != nil {
			p.semanticFailures++
			p.logger.Warn("semantics generation failed, skipping function", "function", fn.FullName, "error", err)
			continue
		}
		p.target.Semantics.Add(*rule)
	}
	p.logger.Info("semantics generated",
		"rules", p.target.Semantics.Len(), "failures", p.semanticFailures)
}

// DiscoveryReport is the serialized outcome of the discovery pass.
type DiscoveryReport struct {
	Name              string             `json:"name"`
	SourcePath        string             `json:"source_path"`
	FunctionCount     int                `json:"function_count"`
	InternalFunctions []string           `json:"internal_functions"`
	ExternalFunctions []string           `json:"external_functions"`
	OperatorCount     int                `json:"operator_count"`
	Semantics         []cpg.SemanticRule `json:"semantics"`
	SemanticFailures  int                `json:"semantic_failures"`
	GraphStats        map[string]int     `json:"graph_stats,omitempty"`
}

func (p *DiscoveryPass) Report() interface{} {
	return &DiscoveryReport{
		Name:              DiscoveryPassName,
		SourcePath:        p.target.SourcePath,
		FunctionCount:     len(p.target.Functions),
		InternalFunctions: fullNames(p.target.Internal),
		ExternalFunctions: fullNames(p.target.External),
		OperatorCount:     len(p.target.Operators),
		Semantics:         p.target.Semantics.Rules,
		SemanticFailures:  p.semanticFailures,
		GraphStats:        p.target.Stats,
	}
}

func fullNames(fns []*cpg.Function) []string {
	names := make([]string, 0, len(fns))
	for _, fn := range fns {
		names = append(names, fn.FullName)
	}
	return names
}
