package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/cpghunt/cpghunt/internal/cpg"
	"github.com/cpghunt/cpghunt/internal/llm"
)

// confidenceThreshold is the minimum model confidence for a role to be kept.
const confidenceThreshold = 0.6

// Role values the model may assign to a function.
const (
	RoleSource    = "SOURCE"
	RoleSink      = "SINK"
	RoleSanitizer = "SANITIZER"
	RoleNone      = "NONE"
)

// RoleAssignment is one accepted classification of a function.
type RoleAssignment struct {
	Role       string  `json:"role"`
	Index      int     `json:"parameter_index"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// FlowVerdict is the model's judgment of one concrete taint path.
type FlowVerdict struct {
	IsVulnerable      bool     `json:"is_vulnerable"`
	Confidence        float64  `json:"confidence"`
	VulnerabilityType string   `json:"vulnerability_type,omitempty"`
	Sanitizers        []string `json:"sanitizers,omitempty"`
	Reasoning         string   `json:"reasoning,omitempty"`
}

// Oracle is the language-model boundary the passes depend on. Tests supply a
// scripted implementation instead of a live service.
type Oracle interface {
	// ClassifyFunction returns the accepted roles for a function. An empty
	// slice means the function plays no part in the attack chain.
	ClassifyFunction(fn *cpg.Function) ([]RoleAssignment, error)
	// FunctionSemantics generates a data-flow rule for an external function.
	FunctionSemantics(fn *cpg.Function) (*cpg.SemanticRule, error)
	// JudgeFlow asks for an exploitability verdict on one discovered path.
	JudgeFlow(path *cpg.FlowPath) (*FlowVerdict, error)
}

// ModelOracle implements Oracle against an OpenAI-compatible service, with a
// content-addressed cache consulted before every outbound call.
type ModelOracle struct {
	client *llm.Client
	cache  *llm.Cache
	logger hclog.Logger
}

// NewModelOracle wires a model client and a response cache into an Oracle.
func NewModelOracle(client *llm.Client, cache *llm.Cache, logger hclog.Logger) *ModelOracle {
	return &ModelOracle{
		client: client,
		cache:  cache,
		logger: logger.Named("oracle"),
	}
}

// flexInt tolerates models quoting numeric fields.
type flexInt int

func (v *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not an integer: %s", s)
	}
	*v = flexInt(n)
	return nil
}

// flexFloat tolerates models quoting numeric fields.
type flexFloat float64

func (v *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", s)
	}
	*v = flexFloat(f)
	return nil
}

type classificationEnvelope struct {
	AnalysisResult struct {
		FunctionName string `json:"function_name"`
		Roles        []struct {
			Role       string    `json:"role"`
			Index      flexInt   `json:"parameter_index"`
			Confidence flexFloat `json:"confidence"`
			Reason     string    `json:"reason"`
		} `json:"roles"`
	} `json:"analysis_result"`
}

// ClassifyFunction submits a role-classification request through the cache
// and keeps only roles above the confidence threshold.
func (o *ModelOracle) ClassifyFunction(fn *cpg.Function) ([]RoleAssignment, error) {
	system, user := classificationPrompt(fn)
	raw, err := o.complete(o.client.Defaults(system, user))
	if err != nil {
		return nil, err
	}

	var envelope classificationEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("classification response for %s is not a usable object: %w", fn.FullName, err)
	}

	var accepted []RoleAssignment
	for _, role := range envelope.AnalysisResult.Roles {
		name := strings.ToUpper(strings.TrimSpace(role.Role))
		if name == RoleNone || name == "" {
			continue
		}
		if name != RoleSource && name != RoleSink && name != RoleSanitizer {
			o.logger.Warn("discarding unknown role", "function", fn.FullName, "role", role.Role)
			continue
		}
		if float64(role.Confidence) < confidenceThreshold {
			o.logger.Debug("discarding low-confidence role",
				"function", fn.FullName, "role", name, "confidence", float64(role.Confidence))
			continue
		}
		accepted = append(accepted, RoleAssignment{
			Role:       name,
			Index:      int(role.Index),
			Confidence: float64(role.Confidence),
			Reason:     role.Reason,
		})
	}
	return accepted, nil
}

type semanticsEnvelope struct {
	AnalysisResult struct {
		FunctionName string `json:"function_name"`
		ParamFlows   []struct {
			From flexInt `json:"from"`
			To   flexInt `json:"to"`
		} `json:"param_flows"`
		Confidence string `json:"confidence"`
		Reasoning  string `json:"reasoning"`
	} `json:"analysis_result"`
}

// FunctionSemantics generates a data-flow rule for one external function.
// The cache key is the function's signature string rather than the request
// content, so a signature-identical function reuses the rule across runs.
func (o *ModelOracle) FunctionSemantics(fn *cpg.Function) (*cpg.SemanticRule, error) {
	key := llm.KeyFromString(fn.SignatureString())

	raw, hit := o.cache.Get(key)
	if !hit {
		system, user := semanticsPrompt(fn)
		var err error
		raw, err = o.client.ChatJSON(o.client.Defaults(system, user))
		if err != nil {
			return nil, err
		}
	}

	var envelope semanticsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("semantics response for %s is not a usable object: %w", fn.FullName, err)
	}
	// Only a response that decodes is worth keeping; a malformed one would be
	// replayed from the cache on every later run.
	if !hit {
		o.cache.Put(key, raw)
	}

	flows := make([]cpg.FlowPair, 0, len(envelope.AnalysisResult.ParamFlows))
	for _, flow := range envelope.AnalysisResult.ParamFlows {
		flows = append(flows, cpg.FlowPair{From: int(flow.From), To: int(flow.To)})
	}
	o.logger.Debug("generated semantic rule",
		"function", fn.FullName, "flows", len(flows), "confidence", envelope.AnalysisResult.Confidence)

	return &cpg.SemanticRule{Method: fn.FullName, Flows: flows, IsRegex: false}, nil
}

type verdictEnvelope struct {
	AnalysisResult struct {
		IsVulnerable      bool      `json:"is_vulnerable"`
		Confidence        flexFloat `json:"confidence"`
		VulnerabilityType string    `json:"vulnerability_type"`
		Sanitizers        []string  `json:"sanitizers"`
		Reasoning         string    `json:"reasoning"`
	} `json:"analysis_result"`
}

// JudgeFlow asks the model whether one concrete path is exploitable.
func (o *ModelOracle) JudgeFlow(path *cpg.FlowPath) (*FlowVerdict, error) {
	system, user := verdictPrompt(path)
	raw, err := o.complete(o.client.Defaults(system, user))
	if err != nil {
		return nil, err
	}

	var envelope verdictEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("verdict response is not a usable object: %w", err)
	}
	return &FlowVerdict{
		IsVulnerable:      envelope.AnalysisResult.IsVulnerable,
		Confidence:        float64(envelope.AnalysisResult.Confidence),
		VulnerabilityType: envelope.AnalysisResult.VulnerabilityType,
		Sanitizers:        envelope.AnalysisResult.Sanitizers,
		Reasoning:         envelope.AnalysisResult.Reasoning,
	}, nil
}

// complete serves the request from the cache or performs the model call and
// stores the result under the request's content key.
func (o *ModelOracle) complete(req llm.Request) (json.RawMessage, error) {
	key := req.CacheKey()
	if raw, ok := o.cache.Get(key); ok {
		o.logger.Debug("cache hit", "key", key)
		return raw, nil
	}

	raw, err := o.client.ChatJSON(req)
	if err != nil {
		return nil, err
	}
	o.cache.Put(key, raw)
	return raw, nil
}
