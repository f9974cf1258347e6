package analysis

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/cpghunt/cpghunt/internal/config"
	"github.com/cpghunt/cpghunt/internal/cpg"
	"github.com/cpghunt/cpghunt/internal/joern"
	"github.com/cpghunt/cpghunt/internal/llm"
)

// Engine owns one full analysis run: it opens the graph-engine session,
// imports the code base, runs discovery and the requested vulnerability
// passes, and writes their reports. All collaborators are released when Run
// returns.
type Engine struct {
	cfg      *config.Config
	registry *Registry
	logger   hclog.Logger
}

// NewEngine builds an engine from a loaded configuration and a pass registry.
func NewEngine(cfg *config.Config, registry *Registry, logger hclog.Logger) *Engine {
	return &Engine{cfg: cfg, registry: registry, logger: logger}
}

// Run analyzes the code base at sourcePath with the named passes. Pass names
// must be registered; an unknown name fails before any session is opened.
func (e *Engine) Run(sourcePath string, passNames []string) error {
	ctors := make([]PassFunc, 0, len(passNames))
	for _, name := range passNames {
		ctor, ok := e.registry.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown pass %q, available: %v", name, e.registry.Names())
		}
		ctors = append(ctors, ctor)
	}

	started := time.Now()
	bridge := joern.NewBridge(e.cfg.Engine.BinaryPath, e.cfg.Engine.CommandTimeout, e.logger)
	if err := bridge.Open(); err != nil {
		return fmt.Errorf("failed to open engine session: %w", err)
	}
	defer bridge.Close()

	cache := llm.OpenCache(e.cfg.LLM.CacheFile, e.cfg.LLM.CacheMaxEntries, e.logger)
	defer func() {
		if cerr := cache.Close(); cerr != nil {
			e.logger.Warn("failed to flush response cache", "error", cerr)
		}
	}()

	model := llm.NewClient(llm.Options{
		BaseURL:     e.cfg.LLM.BaseURL,
		APIKey:      e.cfg.LLM.APIKey,
		Model:       e.cfg.LLM.Model,
		Timeout:     e.cfg.LLM.Timeout,
		RetryCount:  e.cfg.LLM.RetryCount,
		Temperature: e.cfg.LLM.Temperature,
		TopP:        e.cfg.LLM.TopP,
		MaxTokens:   e.cfg.LLM.MaxTokens,
		Debug:       e.cfg.LLM.Debug,
	}, e.logger)

	client := joern.NewClient(bridge, e.cfg.Engine.CPGVariable, e.cfg.Engine.MaxCallDepth, e.logger)
	oracle := NewModelOracle(model, cache, e.logger)
	target := NewTarget(sourcePath, client, oracle, e.logger)

	writer, err := NewReportWriter(e.cfg.Hunt.OutputDir, e.logger)
	if err != nil {
		return err
	}
	e.logger.Info("run started", "source", sourcePath, "output", writer.Dir(), "passes", passNames)

	if err := client.ImportCode(sourcePath); err != nil {
		return fmt.Errorf("failed to import %s: %w", sourcePath, err)
	}

	discovery := NewDiscoveryPass(target)
	if err := e.runPass(discovery, writer); err != nil {
		return err
	}

	for _, ctor := range ctors {
		pass := ctor(target)
		if err := e.runPass(pass, writer); err != nil {
			return err
		}
	}

	e.logger.Info("run complete", "elapsed", time.Since(started), "output", writer.Dir())
	return nil
}

// flowProducer is implemented by passes that yield taint-flow results worth
// exporting as SARIF.
type flowProducer interface {
	Results() []*cpg.DataFlowResult
}

// runPass executes one pass, timing it and writing its report. The report is
// written even when the pass fails partway, so partial findings survive.
func (e *Engine) runPass(pass Pass, writer *ReportWriter) error {
	e.logger.Info("pass started", "pass", pass.Name())
	started := time.Now()
	runErr := pass.Run()

	if werr := writer.WriteJSON(pass.Name(), pass.Report()); werr != nil {
		e.logger.Warn("failed to write pass report", "pass", pass.Name(), "error", werr)
	}
	if e.cfg.Hunt.SARIF {
		if p, ok := pass.(flowProducer); ok {
			if werr := writer.WriteSARIF(pass.Name(), p.Results()); werr != nil {
				e.logger.Warn("failed to write SARIF report", "pass", pass.Name(), "error", werr)
			}
		}
	}

	if runErr != nil {
		return fmt.Errorf("pass %s failed: %w", pass.Name(), runErr)
	}
	e.logger.Info("pass finished", "pass", pass.Name(), "elapsed", time.Since(started))
	return nil
}
