package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// Config is the root configuration loaded from the YAML config file.
type Config struct {
	Logger Logger `yaml:"logger"`
	Engine Engine `yaml:"engine"`
	LLM    LLM    `yaml:"llm"`
	Hunt   Hunt   `yaml:"hunt"`
}

// Logger configures log output.
type Logger struct {
	Level string `yaml:"level"`
}

// Engine configures the external graph-query engine session.
type Engine struct {
	BinaryPath     string        `yaml:"binary_path"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	MaxCallDepth   int           `yaml:"max_call_depth"`
	CPGVariable    string        `yaml:"cpg_variable"`
}

// LLM configures the language-model service and its response cache.
type LLM struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryCount  int           `yaml:"retry_count"`
	Temperature float64       `yaml:"temperature"`
	TopP        float64       `yaml:"top_p"`
	MaxTokens   int           `yaml:"max_tokens"`
	Debug       bool          `yaml:"debug"`

	CacheFile       string `yaml:"cache_file"`
	CacheMaxEntries int    `yaml:"cache_max_entries"`
}

// Hunt configures the analysis run itself.
type Hunt struct {
	OutputDir string   `yaml:"output_dir"`
	Passes    []string `yaml:"passes"`
	SARIF     bool     `yaml:"sarif"`
}

// ValidateConfigPath checks that path points to a regular file.
func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a file", path)
	}
	return nil
}

// LoadYAML decodes the YAML file at configPath into data.
func LoadYAML(configPath string, data interface{}) error {
	if err := ValidateConfigPath(configPath); err != nil {
		return err
	}

	file, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	if err := d.Decode(data); err != nil {
		return err
	}

	return nil
}

// NewConfig loads the configuration from configPath and fills defaults.
func NewConfig(configPath string) (*Config, error) {
	config := &Config{}

	if err := LoadYAML(configPath, &config); err != nil {
		return nil, err
	}
	config.ApplyDefaults()

	return config, nil
}

// ApplyDefaults fills zero-valued fields with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Engine.BinaryPath == "" {
		c.Engine.BinaryPath = "joern"
	}
	if c.Engine.CommandTimeout == 0 {
		c.Engine.CommandTimeout = 2 * time.Minute
	}
	if c.Engine.MaxCallDepth == 0 {
		c.Engine.MaxCallDepth = 40
	}
	if c.Engine.CPGVariable == "" {
		c.Engine.CPGVariable = "cpg"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 120 * time.Second
	}
	if c.LLM.RetryCount == 0 {
		c.LLM.RetryCount = 3
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.1
	}
	if c.LLM.TopP == 0 {
		c.LLM.TopP = 0.1
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4000
	}
	if c.LLM.CacheFile == "" {
		c.LLM.CacheFile = "llm_cache.json"
	}
	if c.LLM.CacheMaxEntries == 0 {
		c.LLM.CacheMaxEntries = 1000
	}
	if c.Hunt.OutputDir == "" {
		c.Hunt.OutputDir = "results"
	}
	if len(c.Hunt.Passes) == 0 {
		c.Hunt.Passes = []string{"cmdinjection"}
	}
}
