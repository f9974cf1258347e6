package joern

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/cpghunt/cpghunt/internal/cpg"
)

// transport is the command channel the client drives. *Bridge satisfies it;
// tests substitute a scripted implementation.
type transport interface {
	Send(command string, timeout time.Duration) (string, error)
	HealthCheck() bool
	EnsureConnected() error
}

// registration states for the semantics sequence.
type registrationState int

const (
	semanticsUnregistered registrationState = iota
	semanticsRegistering
	semanticsRegistered
)

// dataflowImports are the engine-side support classes the semantics sequence
// loads before declaring rules.
var dataflowImports = []string{
	"import io.joern.dataflowengineoss.*",
	"import io.joern.dataflowengineoss.semanticsloader.*",
	"import io.joern.dataflowengineoss.queryengine.*",
}

// resultInteger picks the evaluated value out of a "resN: Int = 42" echo.
var resultInteger = regexp.MustCompile(`=\s*(\d+)`)

// Client translates domain operations into engine query strings and decodes
// typed results. It does not catch or classify transport errors; they
// propagate to the caller verbatim.
type Client struct {
	tr           transport
	cpgVar       string
	maxCallDepth int
	logger       hclog.Logger

	regState registrationState

	// methodCode memoizes owning-method source lookups across flow paths.
	methodCode map[string]string
}

// NewClient builds a query client over an established command channel. cpgVar
// is the engine-side graph variable (normally "cpg"); maxCallDepth bounds the
// reachability engine's interprocedural exploration.
func NewClient(tr transport, cpgVar string, maxCallDepth int, logger hclog.Logger) *Client {
	if cpgVar == "" {
		cpgVar = "cpg"
	}
	if maxCallDepth <= 0 {
		maxCallDepth = 40
	}
	return &Client{
		tr:           tr,
		cpgVar:       cpgVar,
		maxCallDepth: maxCallDepth,
		logger:       logger.Named("joern-client"),
		methodCode:   make(map[string]string),
	}
}

// SemanticsRegistered reports whether reachability queries are permitted.
func (c *Client) SemanticsRegistered() bool {
	return c.regState == semanticsRegistered
}

// ImportCode loads the source tree at path into the engine, building the
// property graph. Re-importing the same path overwrites the previous graph.
func (c *Client) ImportCode(path string) error {
	c.logger.Info("importing source", "path", path)
	out, err := c.tr.Send(fmt.Sprintf("importCode(%q)", path), 0)
	if err != nil {
		return err
	}
	if resultHasError(out) {
		return &DecodeError{Command: "importCode", Reason: firstLine(out)}
	}
	return nil
}

// ListFunctionNames returns the qualified names of every method in the graph,
// in the order the engine reports them. An empty graph yields an empty list.
func (c *Client) ListFunctionNames() ([]string, error) {
	command := fmt.Sprintf("%s.method.fullName.toJsonPretty", c.cpgVar)
	out, err := c.tr.Send(command, 0)
	if err != nil {
		return nil, err
	}
	payload := ExtractPayload(out)
	if payload == nil {
		return nil, &DecodeError{Command: command, Reason: "no structured payload in response"}
	}
	var names []string
	if err := json.Unmarshal(payload, &names); err != nil {
		return nil, &DecodeError{Command: command, Reason: err.Error()}
	}
	return names, nil
}

// FunctionByFullName fetches exactly one function's metadata. When the engine
// reports multiple matches the first is used and the rest are discarded with a
// warning; qualified names are expected to be unique but the engine does not
// guarantee it.
func (c *Client) FunctionByFullName(fullName string) (*cpg.Function, error) {
	command := fmt.Sprintf("%s.method.fullName(%q).toJsonPretty", c.cpgVar, fullName)
	out, err := c.tr.Send(command, 0)
	if err != nil {
		return nil, err
	}
	payload := ExtractPayload(out)
	if payload == nil {
		return nil, &DecodeError{Command: command, Reason: "no structured payload in response"}
	}

	object := payload
	if isJSONArray(payload) {
		var matches []json.RawMessage
		if err := json.Unmarshal(payload, &matches); err != nil {
			return nil, &DecodeError{Command: command, Reason: err.Error()}
		}
		if len(matches) == 0 {
			return nil, &DecodeError{Command: command, Reason: fmt.Sprintf("function %q not found", fullName)}
		}
		if len(matches) > 1 {
			c.logger.Warn("multiple functions matched qualified name, using first",
				"fullName", fullName, "matches", len(matches))
		}
		object = matches[0]
	}

	fn, err := cpg.DecodeFunction(object)
	if err != nil {
		return nil, &DecodeError{Command: command, Reason: err.Error()}
	}
	return fn, nil
}

// Parameters fetches the formal parameter list of a function. Only meaningful
// for external functions, whose signatures the engine cannot derive itself.
func (c *Client) Parameters(fn *cpg.Function) ([]cpg.Parameter, error) {
	command := fn.ParameterQuery(c.cpgVar)
	out, err := c.tr.Send(command, 0)
	if err != nil {
		return nil, err
	}
	payload := ExtractPayload(out)
	if payload == nil {
		return nil, &DecodeError{Command: command, Reason: "no structured payload in response"}
	}
	var params []cpg.Parameter
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, &DecodeError{Command: command, Reason: err.Error()}
	}
	return params, nil
}

// Usage collects the code around a function's call sites, joined into one
// free-text snippet handed to the language model for context.
func (c *Client) Usage(fn *cpg.Function) (string, error) {
	command := fn.UsageQuery(c.cpgVar)
	out, err := c.tr.Send(command, 0)
	if err != nil {
		return "", err
	}
	payload := ExtractPayload(out)
	if payload == nil {
		return "", &DecodeError{Command: command, Reason: "no structured payload in response"}
	}
	var snippets []string
	if err := json.Unmarshal(payload, &snippets); err != nil {
		return "", &DecodeError{Command: command, Reason: err.Error()}
	}
	return strings.Join(snippets, "\n"), nil
}

// RegisterSemantics runs the registration sequence: import analysis support
// classes, declare the rule list, bind the semantics context, bind the engine
// configuration, bind the engine context. Each statement is sent on its own so
// its evaluation output is checked before the next one runs; any failure
// aborts the sequence with semantics left unregistered.
func (c *Client) RegisterSemantics(rules *cpg.RuleSet) error {
	c.regState = semanticsRegistering
	c.logger.Info("registering data-flow semantics", "rules", rules.Len())

	if !c.tr.HealthCheck() {
		if err := c.tr.EnsureConnected(); err != nil {
			c.regState = semanticsUnregistered
			return err
		}
	}

	steps := make([]string, 0, len(dataflowImports)+4)
	steps = append(steps, dataflowImports...)
	steps = append(steps,
		rules.ExtraFlowsScript(),
		"implicit val semantics: Semantics = DefaultSemantics().plus(extraFlows)",
		fmt.Sprintf("implicit val engineConfig: EngineConfig = EngineConfig(maxCallDepth = %d)", c.maxCallDepth),
		"implicit val context: EngineContext = EngineContext(semantics = semantics, engineConfig = engineConfig)",
	)

	for _, step := range steps {
		out, err := c.tr.Send(step, 0)
		if err != nil {
			c.regState = semanticsUnregistered
			return err
		}
		if resultHasError(out) {
			c.regState = semanticsUnregistered
			return &DecodeError{Command: step, Reason: firstLine(out)}
		}
	}

	c.regState = semanticsRegistered
	c.logger.Info("data-flow semantics registered")
	return nil
}

// RunReachability issues one source-to-sink reachability query and decodes the
// discovered paths. It fails fast with ErrSemanticsNotRegistered, without
// touching the engine, when registration has not succeeded in this session.
// An empty result is a normal "no path found" outcome.
func (c *Client) RunReachability(source cpg.Source, sink cpg.Sink) (*cpg.DataFlowResult, error) {
	if c.regState != semanticsRegistered {
		return nil, ErrSemanticsNotRegistered
	}

	sourceQuery, err := source.Query(c.cpgVar)
	if err != nil {
		return nil, err
	}
	sinkQuery, err := sink.Query(c.cpgVar)
	if err != nil {
		return nil, err
	}

	command := fmt.Sprintf("%s.reachableByDetailed(%s).toJsonPretty", sinkQuery, sourceQuery)
	started := time.Now()
	out, err := c.tr.Send(command, 0)
	if err != nil {
		return nil, err
	}

	payload := ExtractPayload(out)
	if payload == nil {
		return nil, &DecodeError{Command: command, Reason: "no structured payload in response"}
	}
	result, err := cpg.DecodeDataFlowResult(payload, source, sink)
	if err != nil {
		return nil, &DecodeError{Command: command, Reason: err.Error()}
	}
	result.Elapsed = time.Since(started)
	return result, nil
}

// EnrichFlowNodes fills owning-method source code on each flow node that names
// its enclosing method, via one memoized follow-up lookup per method. Lookup
// failures leave the node unenriched rather than failing the path.
func (c *Client) EnrichFlowNodes(result *cpg.DataFlowResult) {
	for _, flow := range result.Flows {
		for i := range flow.Nodes {
			node := &flow.Nodes[i]
			if node.MethodFullName == "" || node.MethodCode != "" {
				continue
			}
			code, err := c.methodCodeFor(node.MethodFullName)
			if err != nil {
				c.logger.Debug("method code lookup failed", "method", node.MethodFullName, "error", err)
				continue
			}
			node.MethodCode = code
		}
	}
}

func (c *Client) methodCodeFor(methodFullName string) (string, error) {
	if code, ok := c.methodCode[methodFullName]; ok {
		return code, nil
	}
	command := fmt.Sprintf("%s.method.fullName(%q).code.toJsonPretty", c.cpgVar, methodFullName)
	out, err := c.tr.Send(command, 0)
	if err != nil {
		return "", err
	}
	payload := ExtractPayload(out)
	if payload == nil {
		return "", &DecodeError{Command: command, Reason: "no structured payload in response"}
	}
	var codes []string
	if err := json.Unmarshal(payload, &codes); err != nil {
		return "", &DecodeError{Command: command, Reason: err.Error()}
	}
	if len(codes) == 0 {
		return "", &DecodeError{Command: command, Reason: "method has no code"}
	}
	c.methodCode[methodFullName] = codes[0]
	return codes[0], nil
}

// Statistics returns node counts for the common graph node types. Individual
// count failures degrade to zero rather than failing the whole report.
func (c *Client) Statistics() map[string]int {
	queries := map[string]string{
		"methods":    fmt.Sprintf("%s.method.size", c.cpgVar),
		"calls":      fmt.Sprintf("%s.call.size", c.cpgVar),
		"parameters": fmt.Sprintf("%s.parameter.size", c.cpgVar),
		"literals":   fmt.Sprintf("%s.literal.size", c.cpgVar),
	}
	stats := make(map[string]int, len(queries))
	for name, query := range queries {
		stats[name] = 0
		out, err := c.tr.Send(query, 0)
		if err != nil {
			continue
		}
		if m := resultInteger.FindStringSubmatch(out); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				stats[name] = n
			}
		}
	}
	return stats
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "[")
}

// resultHasError scans evaluation output for the engine's compile or runtime
// error markers. The REPL reports failures as text, not through the transport.
func resultHasError(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "error:") || strings.Contains(lower, "exception")
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
