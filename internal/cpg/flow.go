package cpg

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NodeKind classifies a graph node on a discovered flow path.
type NodeKind string

const (
	KindParameterIn      NodeKind = "METHOD_PARAMETER_IN"
	KindParameterOut     NodeKind = "METHOD_PARAMETER_OUT"
	KindMethodReturn     NodeKind = "METHOD_RETURN"
	KindCall             NodeKind = "CALL"
	KindIdentifier       NodeKind = "IDENTIFIER"
	KindLiteral          NodeKind = "LITERAL"
	KindLocal            NodeKind = "LOCAL"
	KindBlock            NodeKind = "BLOCK"
	KindControlStructure NodeKind = "CONTROL_STRUCTURE"
	KindUnknown          NodeKind = "UNKNOWN"
)

// kindTable maps engine labels to known kinds; anything else is KindUnknown.
var kindTable = map[string]NodeKind{
	string(KindParameterIn):      KindParameterIn,
	string(KindParameterOut):     KindParameterOut,
	string(KindMethodReturn):     KindMethodReturn,
	string(KindCall):             KindCall,
	string(KindIdentifier):       KindIdentifier,
	string(KindLiteral):          KindLiteral,
	string(KindLocal):            KindLocal,
	string(KindBlock):            KindBlock,
	string(KindControlStructure): KindControlStructure,
}

// KindFromLabel converts an engine node label into a NodeKind.
func KindFromLabel(label string) NodeKind {
	if k, ok := kindTable[label]; ok {
		return k
	}
	return KindUnknown
}

// FlowNode is one step of a discovered taint path.
type FlowNode struct {
	ID    int64  `json:"node_id"`
	Label string `json:"label"`
	Code  string `json:"code"`

	Name         string `json:"name,omitempty"`
	LineNumber   OptInt `json:"line_number,omitempty"`
	ColumnNumber OptInt `json:"column_number,omitempty"`

	TypeFullName  string   `json:"type_full_name,omitempty"`
	PossibleTypes []string `json:"possible_types"`
	TypeHints     []string `json:"dynamic_type_hints"`

	Index          OptInt `json:"index,omitempty"`
	ArgumentIndex  OptInt `json:"argument_index,omitempty"`
	Signature      string `json:"signature,omitempty"`
	MethodFullName string `json:"method_full_name,omitempty"`
	MethodCode     string `json:"method_code,omitempty"`

	CallSiteStack []json.RawMessage `json:"call_site_stack"`
	Visible       bool              `json:"visible"`
	IsOutputArg   bool              `json:"is_output_arg"`
	OutEdgeLabel  string            `json:"out_edge_label,omitempty"`
}

// Kind returns the node's classification.
func (n *FlowNode) Kind() NodeKind {
	return KindFromLabel(n.Label)
}

// DisplayName returns a short identifier for path summaries.
func (n *FlowNode) DisplayName() string {
	switch {
	case n.Name != "":
		return n.Name
	case n.MethodFullName != "":
		return n.MethodFullName
	case len(n.Code) > 20:
		return n.Code[:20] + "..."
	default:
		return n.Code
	}
}

// Location renders the ":line:column" suffix when position info is present.
func (n *FlowNode) Location() string {
	if !n.LineNumber.Valid {
		return ""
	}
	if n.ColumnNumber.Valid {
		return fmt.Sprintf(":%d:%d", n.LineNumber.Value, n.ColumnNumber.Value)
	}
	return fmt.Sprintf(":%d", n.LineNumber.Value)
}

func (n *FlowNode) String() string {
	s := fmt.Sprintf("%s(%s)%s", n.DisplayName(), n.Label, n.Location())
	if n.OutEdgeLabel != "" {
		s += " -> " + n.OutEdgeLabel
	}
	return s
}

// pathStep mirrors the engine's path element shape: the graph node plus the
// per-step flow attributes that live outside the node object.
type pathStep struct {
	Node          map[string]json.RawMessage `json:"node"`
	CallSiteStack []json.RawMessage          `json:"callSiteStack"`
	Visible       *bool                      `json:"visible"`
	IsOutputArg   bool                       `json:"isOutputArg"`
	OutEdgeLabel  string                     `json:"outEdgeLabel"`
}

// decodeFlowNode maps one engine path step to a FlowNode. The decoder reads a
// fixed set of known field names, tolerates any extra fields, and fails only
// when a required field (_id, _label, code) is absent.
func decodeFlowNode(data json.RawMessage) (FlowNode, error) {
	var step pathStep
	if err := json.Unmarshal(data, &step); err != nil {
		return FlowNode{}, fmt.Errorf("failed to decode path step: %w", err)
	}
	if step.Node == nil {
		return FlowNode{}, fmt.Errorf("path step has no node object")
	}

	var node FlowNode
	required := map[string]interface{}{
		"_id":    &node.ID,
		"_label": &node.Label,
		"code":   &node.Code,
	}
	for field, dst := range required {
		raw, ok := step.Node[field]
		if !ok {
			return FlowNode{}, fmt.Errorf("path node missing required field %q", field)
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return FlowNode{}, fmt.Errorf("path node field %q: %w", field, err)
		}
	}

	optional := map[string]interface{}{
		"name":                    &node.Name,
		"lineNumber":              &node.LineNumber,
		"columnNumber":            &node.ColumnNumber,
		"typeFullName":            &node.TypeFullName,
		"possibleTypes":           &node.PossibleTypes,
		"dynamicTypeHintFullName": &node.TypeHints,
		"index":                   &node.Index,
		"argumentIndex":           &node.ArgumentIndex,
		"signature":               &node.Signature,
		"methodFullName":          &node.MethodFullName,
	}
	for field, dst := range optional {
		raw, ok := step.Node[field]
		if !ok {
			continue
		}
		// Unrecognized shapes in optional fields are dropped, not fatal.
		_ = json.Unmarshal(raw, dst)
	}

	if node.PossibleTypes == nil {
		node.PossibleTypes = []string{}
	}
	if node.TypeHints == nil {
		node.TypeHints = []string{}
	}
	node.CallSiteStack = step.CallSiteStack
	if node.CallSiteStack == nil {
		node.CallSiteStack = []json.RawMessage{}
	}
	node.Visible = step.Visible == nil || *step.Visible
	node.IsOutputArg = step.IsOutputArg
	node.OutEdgeLabel = step.OutEdgeLabel
	return node, nil
}

// FlowPath is an ordered, non-empty sequence of flow nodes connecting a source
// to a sink. The verdict fields are filled after language-model judgment.
type FlowPath struct {
	Nodes []FlowNode `json:"nodes"`

	IsVulnerable      bool    `json:"is_vulnerable"`
	Confidence        float64 `json:"confidence"`
	VulnerabilityType string  `json:"vulnerability_type,omitempty"`
	Description       string  `json:"description,omitempty"`
}

// DecodeFlowPath builds a FlowPath from the engine's path array.
func DecodeFlowPath(pathArray []json.RawMessage) (*FlowPath, error) {
	if len(pathArray) == 0 {
		return nil, fmt.Errorf("path array is empty")
	}
	nodes := make([]FlowNode, 0, len(pathArray))
	for i, raw := range pathArray {
		node, err := decodeFlowNode(raw)
		if err != nil {
			return nil, fmt.Errorf("path step %d: %w", i, err)
		}
		nodes = append(nodes, node)
	}
	return &FlowPath{Nodes: nodes}, nil
}

// Length returns the number of nodes on the path.
func (p *FlowPath) Length() int {
	return len(p.Nodes)
}

// Source returns the first node of the path.
func (p *FlowPath) Source() *FlowNode {
	if len(p.Nodes) == 0 {
		return nil
	}
	return &p.Nodes[0]
}

// Sink returns the last node of the path. For a path of length 1 the source
// and sink are the same node.
func (p *FlowPath) Sink() *FlowNode {
	if len(p.Nodes) == 0 {
		return nil
	}
	return &p.Nodes[len(p.Nodes)-1]
}

// Intermediate returns the nodes strictly between source and sink.
func (p *FlowPath) Intermediate() []FlowNode {
	if len(p.Nodes) <= 2 {
		return nil
	}
	return p.Nodes[1 : len(p.Nodes)-1]
}

// MethodChain returns the distinct method code fragments along the path in
// first-seen order. This is the path summary handed to the language model when
// asking for an exploitability verdict.
func (p *FlowPath) MethodChain() []string {
	seen := make(map[string]struct{})
	var chain []string
	for i := range p.Nodes {
		code := p.Nodes[i].MethodCode
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		chain = append(chain, code)
	}
	return chain
}

// Steps renders a numbered human-readable description of the path.
func (p *FlowPath) Steps() string {
	var b strings.Builder
	for i := range p.Nodes {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, p.Nodes[i].String())
	}
	return b.String()
}

// LineNumbers returns the source lines the path crosses, in path order.
func (p *FlowPath) LineNumbers() []int {
	var lines []int
	for i := range p.Nodes {
		if p.Nodes[i].LineNumber.Valid {
			lines = append(lines, p.Nodes[i].LineNumber.Value)
		}
	}
	return lines
}

// DataFlowResult is the outcome of one source-to-sink reachability query.
type DataFlowResult struct {
	Flows   []*FlowPath   `json:"flows"`
	Source  Source        `json:"source"`
	Sink    Sink          `json:"sink"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// DecodeDataFlowResult maps the engine's JSON array of path objects into a
// result. Array elements without a "path" key are skipped rather than failing
// the whole batch; a malformed path inside an element is also skipped so one
// bad element cannot hide the remaining flows.
func DecodeDataFlowResult(data []byte, source Source, sink Sink) (*DataFlowResult, error) {
	var elements []map[string]json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("failed to decode reachability result: %w", err)
	}

	result := &DataFlowResult{Source: source, Sink: sink}
	for _, element := range elements {
		rawPath, ok := element["path"]
		if !ok {
			continue
		}
		var pathArray []json.RawMessage
		if err := json.Unmarshal(rawPath, &pathArray); err != nil {
			continue
		}
		flow, err := DecodeFlowPath(pathArray)
		if err != nil {
			continue
		}
		result.Flows = append(result.Flows, flow)
	}
	return result, nil
}

// FlowCount returns the number of discovered paths.
func (r *DataFlowResult) FlowCount() int {
	return len(r.Flows)
}

// VulnerableFlows returns the paths the language model judged exploitable.
func (r *DataFlowResult) VulnerableFlows() []*FlowPath {
	var out []*FlowPath
	for _, flow := range r.Flows {
		if flow.IsVulnerable {
			out = append(out, flow)
		}
	}
	return out
}
