package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/cpghunt/cpghunt/internal/cpg"
)

const toolName = "cpghunt"
const toolURI = "https://github.com/cpghunt/cpghunt"

// ReportWriter persists pass outcomes under a unique run directory named
// hunt_<timestamp>_<id>, one JSON file per pass plus an optional SARIF export.
type ReportWriter struct {
	runDir string
	logger hclog.Logger
}

// NewReportWriter creates the run directory under baseDir.
func NewReportWriter(baseDir string, logger hclog.Logger) (*ReportWriter, error) {
	stamp := time.Now().Format("20060102_150405")
	runID := strings.Split(uuid.New().String(), "-")[0]
	runDir := filepath.Join(baseDir, fmt.Sprintf("hunt_%s_%s", stamp, runID))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", runDir, err)
	}
	return &ReportWriter{runDir: runDir, logger: logger.Named("report")}, nil
}

// Dir returns the run directory path.
func (w *ReportWriter) Dir() string {
	return w.runDir
}

// WriteJSON serializes one pass outcome to <pass>.json in the run directory.
func (w *ReportWriter) WriteJSON(passName string, payload interface{}) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report for pass %s: %w", passName, err)
	}
	path := filepath.Join(w.runDir, passName+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	w.logger.Info("report written", "pass", passName, "path", path)
	return nil
}

// WriteSARIF exports the vulnerable paths of one pass as a SARIF report,
// one result per confirmed path, located at the sink function.
func (w *ReportWriter) WriteSARIF(passName string, results []*cpg.DataFlowResult) error {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return fmt.Errorf("failed to create SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI(toolName, toolURI)
	for _, result := range results {
		for _, path := range result.VulnerableFlows() {
			ruleID := path.VulnerabilityType
			if ruleID == "" {
				ruleID = "CWE-78"
			}
			rule := run.AddRule(ruleID).
				WithDescription("Taint flow from an untrusted source to a command execution sink").
				WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: "error"})

			message := fmt.Sprintf("Tainted data flows from %s to %s: %s",
				result.Source.FullName, result.Sink.FullName, path.Steps())

			location := sarif.NewLocation().WithPhysicalLocation(
				sarif.NewPhysicalLocation().
					WithArtifactLocation(sarif.NewArtifactLocation().WithUri(sinkFile(result))).
					WithRegion(sarif.NewRegion().WithStartLine(sinkLine(result, path))),
			)

			sarifResult := sarif.NewRuleResult(rule.ID).
				WithMessage(sarif.NewTextMessage(message)).
				WithLevel("error").
				WithLocations([]*sarif.Location{location})
			run.AddResult(sarifResult)
		}
	}
	report.AddRun(run)

	outPath := filepath.Join(w.runDir, passName+".sarif")
	file, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write SARIF report %s: %w", outPath, err)
	}
	defer file.Close()
	if err := report.PrettyWrite(file); err != nil {
		return fmt.Errorf("failed to serialize SARIF report: %w", err)
	}
	w.logger.Info("SARIF report written", "pass", passName, "path", outPath)
	return nil
}

func sinkFile(result *cpg.DataFlowResult) string {
	if result.Sink.Filename != "" {
		return result.Sink.Filename
	}
	return "<unknown>"
}

// sinkLine prefers the last path node's line, falling back to the sink
// function's declaration line.
func sinkLine(result *cpg.DataFlowResult, path *cpg.FlowPath) int {
	if node := path.Sink(); node != nil && node.LineNumber.Valid {
		return node.LineNumber.Value
	}
	if result.Sink.LineNumber.Valid {
		return result.Sink.LineNumber.Value
	}
	return 0
}
