package cpg

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OptInt handles numeric fields that the engine serializes either as a plain
// number or as a wrapped option object like {"value": 42}.
type OptInt struct {
	Value int
	Valid bool
}

// UnmarshalJSON accepts null, a bare number, or {"value": n}.
func (o *OptInt) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		o.Valid = false
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Value int `json:"value"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		o.Value = wrapped.Value
		o.Valid = true
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	o.Value = n
	o.Valid = true
	return nil
}

// MarshalJSON renders the plain number, or null when unset.
func (o OptInt) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Parameter is a single formal parameter of a Function. Index follows the
// engine's convention: 0 is the receiver, positive values are positional
// arguments starting at 1.
type Parameter struct {
	Name       string `json:"name"`
	Index      int    `json:"index"`
	TypeName   string `json:"typeFullName"`
	IsVariadic bool   `json:"isVariadic"`
	Code       string `json:"code,omitempty"`
}

// Function is a unit of code known to the engine, built from the engine's
// method-node output. Instances are immutable once decoded except for the
// enrichment fields Parameters and Usage, which are filled for external
// functions only.
type Function struct {
	Name             string `json:"name"`
	FullName         string `json:"fullName"`
	Signature        string `json:"signature,omitempty"`
	GenericSignature string `json:"genericSignature,omitempty"`
	Code             string `json:"code,omitempty"`
	Filename         string `json:"filename,omitempty"`
	IsExternal       bool   `json:"isExternal"`
	ASTParentName    string `json:"astParentFullName,omitempty"`
	ASTParentType    string `json:"astParentType,omitempty"`
	Hash             string `json:"hash,omitempty"`
	Order            OptInt `json:"order,omitempty"`
	LineNumber       OptInt `json:"lineNumber,omitempty"`
	LineNumberEnd    OptInt `json:"lineNumberEnd,omitempty"`
	ColumnNumber     OptInt `json:"columnNumber,omitempty"`
	ColumnNumberEnd  OptInt `json:"columnNumberEnd,omitempty"`
	Offset           OptInt `json:"offset,omitempty"`
	OffsetEnd        OptInt `json:"offsetEnd,omitempty"`

	Parameters []Parameter `json:"parameters,omitempty"`
	Usage      string      `json:"usage,omitempty"`
}

// DecodeFunction builds a Function from one engine method-node JSON object.
func DecodeFunction(data []byte) (*Function, error) {
	var fn Function
	if err := json.Unmarshal(data, &fn); err != nil {
		return nil, fmt.Errorf("failed to decode function object: %w", err)
	}
	if fn.Name == "" && fn.FullName == "" {
		return nil, fmt.Errorf("function object has neither name nor fullName")
	}
	return &fn, nil
}

// IsOperator reports whether the function is one of the engine's synthetic
// operator methods (assignment, arithmetic and friends) rather than real code.
func (f *Function) IsOperator() bool {
	return strings.HasPrefix(f.FullName, "<operator>")
}

// lookupName returns the best identifier for engine-side queries.
func (f *Function) lookupName() string {
	if f.FullName != "" {
		return f.FullName
	}
	return f.Name
}

// MethodQuery returns the engine traversal selecting this function's method node.
func (f *Function) MethodQuery(cpgVar string) string {
	return fmt.Sprintf("%s.method.fullName(%q)", cpgVar, f.lookupName())
}

// ParameterQuery returns the engine query listing this function's parameters.
func (f *Function) ParameterQuery(cpgVar string) string {
	return fmt.Sprintf("%s.parameter.toJsonPretty", f.MethodQuery(cpgVar))
}

// UsageQuery returns the engine query collecting the code of the statements
// around this function's call sites. Used to enrich external functions whose
// bodies the engine cannot see.
func (f *Function) UsageQuery(cpgVar string) string {
	return fmt.Sprintf("%s.callIn.astParent.code.toJsonPretty", f.MethodQuery(cpgVar))
}

// SignatureString renders a stable, human-readable signature used both in
// model prompts and as the content-addressed cache key for semantics requests.
func (f *Function) SignatureString() string {
	if f.Signature != "" {
		return fmt.Sprintf("%s %s", f.FullName, f.Signature)
	}
	params := make([]string, 0, len(f.Parameters))
	for _, p := range f.Parameters {
		t := p.TypeName
		if t == "" {
			t = "ANY"
		}
		if p.IsVariadic {
			t += "..."
		}
		params = append(params, t)
	}
	return fmt.Sprintf("%s(%s)", f.lookupName(), strings.Join(params, ", "))
}

// PromptInfo renders the function facts handed to the language model for
// classification and rule generation.
func (f *Function) PromptInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Function Name: %s\n", f.Name)
	fmt.Fprintf(&b, "Full Name: %s\n", f.FullName)
	fmt.Fprintf(&b, "Signature: %s\n", valueOr(f.Signature, "unknown"))
	fmt.Fprintf(&b, "File: %s\n", valueOr(f.Filename, "unknown"))
	fmt.Fprintf(&b, "Code: %s\n", valueOr(f.Code, "unavailable"))
	if f.Usage != "" {
		fmt.Fprintf(&b, "Observed usage:\n%s\n", f.Usage)
	}
	return b.String()
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
