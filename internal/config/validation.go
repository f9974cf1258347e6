package config

import (
	"fmt"
	"net/url"
	"time"
)

// ValidateConfig checks if the loaded configuration has valid values.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("YAML config: configuration object is nil")
	}
	if err := ValidateEngineConfig(&cfg.Engine); err != nil {
		return fmt.Errorf("YAML config: engine directive is invalid: %w", err)
	}
	if err := ValidateLLMConfig(&cfg.LLM); err != nil {
		return fmt.Errorf("YAML config: llm directive is invalid: %w", err)
	}
	return nil
}

// ValidateEngineConfig checks the graph-engine session settings.
func ValidateEngineConfig(engine *Engine) error {
	if engine == nil {
		return fmt.Errorf("engine configuration is nil")
	}
	if engine.BinaryPath == "" {
		return fmt.Errorf("binary_path must not be empty")
	}
	if err := validateDuration(engine.CommandTimeout, "command_timeout", 1*time.Hour); err != nil {
		return err
	}
	if engine.MaxCallDepth < 1 || engine.MaxCallDepth > 1000 {
		return fmt.Errorf("max_call_depth must be between 1 and 1000: %d", engine.MaxCallDepth)
	}
	return nil
}

// ValidateLLMConfig checks the language-model service settings.
func ValidateLLMConfig(llm *LLM) error {
	if llm == nil {
		return fmt.Errorf("llm configuration is nil")
	}
	if llm.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if _, err := url.ParseRequestURI(llm.BaseURL); err != nil {
		return fmt.Errorf("base_url is not a valid URL: %w", err)
	}
	if llm.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if llm.RetryCount < 0 || llm.RetryCount > 20 {
		return fmt.Errorf("retry_count must be between 0 and 20: %d", llm.RetryCount)
	}
	if err := validateDuration(llm.Timeout, "timeout", 1*time.Hour); err != nil {
		return err
	}
	if llm.Temperature < 0 || llm.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2: %f", llm.Temperature)
	}
	if llm.TopP < 0 || llm.TopP > 1 {
		return fmt.Errorf("top_p must be between 0 and 1: %f", llm.TopP)
	}
	if llm.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive: %d", llm.MaxTokens)
	}
	if llm.CacheMaxEntries < 1 {
		return fmt.Errorf("cache_max_entries must be positive: %d", llm.CacheMaxEntries)
	}
	return nil
}

// validateDuration checks that a time.Duration is valid and within a specified maximum duration.
func validateDuration(d time.Duration, name string, max time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid duration for %s: %v cannot be negative", name, d)
	}
	if d > max {
		return fmt.Errorf("%s duration is too long: %v exceeds maximum of %v", name, d, max)
	}
	return nil
}
