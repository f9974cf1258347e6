package analysis

import (
	"github.com/hashicorp/go-hclog"

	"github.com/cpghunt/cpghunt/internal/cpg"
)

// queries is the subset of the engine client the passes rely on. The live
// implementation drives an interactive engine session; tests script one.
type queries interface {
	ImportCode(path string) error
	ListFunctionNames() ([]string, error)
	FunctionByFullName(fullName string) (*cpg.Function, error)
	Parameters(fn *cpg.Function) ([]cpg.Parameter, error)
	Usage(fn *cpg.Function) (string, error)
	RegisterSemantics(rules *cpg.RuleSet) error
	RunReachability(source cpg.Source, sink cpg.Sink) (*cpg.DataFlowResult, error)
	EnrichFlowNodes(result *cpg.DataFlowResult)
	Statistics() map[string]int
}

// Target is the shared state of one analysis run: the imported code base, its
// function inventory and the collaborators every pass needs. The discovery
// pass fills the inventory; vulnerability passes read it.
type Target struct {
	SourcePath string

	Queries queries
	Oracle  Oracle
	Logger  hclog.Logger

	// Function inventory, discovery order. Operators are the engine's
	// synthetic methods and are kept out of Functions.
	Functions []*cpg.Function
	Internal  []*cpg.Function
	External  []*cpg.Function
	Operators []*cpg.Function

	Semantics *cpg.RuleSet
	Stats     map[string]int
}

// NewTarget builds the shared state for one run.
func NewTarget(sourcePath string, q queries, oracle Oracle, logger hclog.Logger) *Target {
	return &Target{
		SourcePath: sourcePath,
		Queries:    q,
		Oracle:     oracle,
		Logger:     logger,
		Semantics:  &cpg.RuleSet{},
	}
}

// Pass is one analysis stage operating on a shared target.
type Pass interface {
	// Name identifies the pass in logs and report file names.
	Name() string
	// Run executes the pass against its target.
	Run() error
	// Report returns the pass outcome for serialization.
	Report() interface{}
}
