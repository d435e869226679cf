package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gyeh/readmitstats/internal/model"
	"github.com/gyeh/readmitstats/internal/stats"
)

// Config holds all runtime configuration for a readmit run.
type Config struct {
	DSN       string
	LogFormat string // "text" or "json"
	LogLevel  string
	DataDir   string
	Force     bool
	Sources   []string // subset of model.AllSources names to import

	LLM      LLMConfig
	Analysis AnalysisConfig
	Server   ServerConfig
}

// LLMConfig configures the condition-translation service.
type LLMConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
	RateLimit float64 // requests per second
}

// AnalysisConfig holds the knobs of one classification and aggregation run.
type AnalysisConfig struct {
	Years           stats.YearRange
	MaxBreadth      int
	Grouping        string
	TopN            int
	TransplantTable string // optional YAML override of the built-in table
	Filter          string
	OutPath         string
}

// ServerConfig configures readmit serve.
type ServerConfig struct {
	Addr         string
	SessionLimit int
}

// envConfig is the environment surface read through viper.
type envConfig struct {
	DatabaseURL string  `mapstructure:"DATABASE_URL"`
	LLMAPIURL   string  `mapstructure:"LLM_API_URL"`
	LLMAPIKey   string  `mapstructure:"LLM_API_KEY"`
	LLMModel    string  `mapstructure:"LLM_MODEL"`
	LLMRateRPS  float64 `mapstructure:"LLM_RATE_LIMIT_RPS"`
	LogLevel    string  `mapstructure:"LOG_LEVEL"`
	Addr        string  `mapstructure:"READMIT_ADDR"`
	DataDir     string  `mapstructure:"READMIT_DATA_DIR"`
}

// Defaults returns a Config with every default applied and nothing read from
// the environment.
func Defaults() Config {
	return Config{
		LogFormat: "text",
		LogLevel:  "info",
		DataDir:   "./data",
		Sources:   model.SourceNames(),
		LLM: LLMConfig{
			Model:     "franklin",
			Timeout:   60 * time.Second,
			RateLimit: 2,
		},
		Analysis: AnalysisConfig{
			Years:      stats.DefaultYears,
			MaxBreadth: 10,
			Grouping:   "state_sex_year",
			TopN:       10,
		},
		Server: ServerConfig{
			Addr:         ":8050",
			SessionLimit: 1024,
		},
	}
}

// FromEnv returns Defaults overlaid with environment variables.
func FromEnv() (Config, error) {
	c := Defaults()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("LLM_MODEL", c.LLM.Model)
	v.SetDefault("LLM_RATE_LIMIT_RPS", c.LLM.RateLimit)
	v.SetDefault("LOG_LEVEL", c.LogLevel)
	v.SetDefault("READMIT_ADDR", c.Server.Addr)
	v.SetDefault("READMIT_DATA_DIR", c.DataDir)
	for _, key := range []string{
		"DATABASE_URL", "LLM_API_URL", "LLM_API_KEY", "LLM_MODEL",
		"LLM_RATE_LIMIT_RPS", "LOG_LEVEL", "READMIT_ADDR", "READMIT_DATA_DIR",
	} {
		_ = v.BindEnv(key)
	}

	var env envConfig
	if err := v.Unmarshal(&env); err != nil {
		return c, fmt.Errorf("read environment: %w", err)
	}

	c.DSN = env.DatabaseURL
	c.LLM.BaseURL = env.LLMAPIURL
	c.LLM.APIKey = env.LLMAPIKey
	c.LLM.Model = env.LLMModel
	c.LLM.RateLimit = env.LLMRateRPS
	c.LogLevel = env.LogLevel
	c.Server.Addr = env.Addr
	c.DataDir = env.DataDir
	return c, nil
}

// yamlConfig is the on-disk YAML structure.
type yamlConfig struct {
	Years           *stats.YearRange `yaml:"years"`
	MaxBreadth      *int             `yaml:"max_breadth"`
	Grouping        *string          `yaml:"grouping"`
	TopN            *int             `yaml:"top_n"`
	TransplantTable *string          `yaml:"transplant_table"`
	Sources         []string         `yaml:"sources"`
	LLM             struct {
		Model     *string        `yaml:"model"`
		Timeout   *time.Duration `yaml:"timeout"`
		RateLimit *float64       `yaml:"rate_limit"`
	} `yaml:"llm"`
}

// LoadFromFile reads a YAML settings file and merges the values it sets into
// Config. Keys absent from the file keep their current values, as do the keys
// named in explicit (already set on the command line).
func (c *Config) LoadFromFile(path string, explicit ...string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	for _, key := range explicit {
		switch key {
		case "grouping":
			yc.Grouping = nil
		case "sources":
			yc.Sources = nil
		}
	}
	if yc.Years != nil {
		c.Analysis.Years = *yc.Years
	}
	if yc.MaxBreadth != nil {
		c.Analysis.MaxBreadth = *yc.MaxBreadth
	}
	if yc.Grouping != nil {
		c.Analysis.Grouping = *yc.Grouping
	}
	if yc.TopN != nil {
		c.Analysis.TopN = *yc.TopN
	}
	if yc.TransplantTable != nil {
		c.Analysis.TransplantTable = *yc.TransplantTable
	}
	if yc.Sources != nil {
		c.Sources = yc.Sources
	}
	if yc.LLM.Model != nil {
		c.LLM.Model = *yc.LLM.Model
	}
	if yc.LLM.Timeout != nil {
		c.LLM.Timeout = *yc.LLM.Timeout
	}
	if yc.LLM.RateLimit != nil {
		c.LLM.RateLimit = *yc.LLM.RateLimit
	}
	return c.validateSources()
}

// validateSources checks that every entry in Sources is a known source name.
// If Sources is empty, it defaults to all of them.
func (c *Config) validateSources() error {
	if len(c.Sources) == 0 {
		c.Sources = model.SourceNames()
		return nil
	}
	for _, name := range c.Sources {
		if _, ok := model.SourceByName(name); !ok {
			return fmt.Errorf("unknown source %q in config", name)
		}
	}
	return nil
}

// Validate checks the analysis settings.
func (c *Config) Validate() error {
	if err := c.Analysis.Years.Validate(); err != nil {
		return err
	}
	if c.Analysis.MaxBreadth <= 0 {
		return fmt.Errorf("max_breadth must be positive, got %d", c.Analysis.MaxBreadth)
	}
	if c.Analysis.TopN < 0 {
		return fmt.Errorf("top_n must not be negative, got %d", c.Analysis.TopN)
	}
	if _, err := stats.KeyFuncByName(c.Analysis.Grouping); err != nil {
		return err
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm timeout must be positive, got %s", c.LLM.Timeout)
	}
	return c.validateSources()
}

// ValidateWithDSN checks the analysis settings and the DSN.
func (c *Config) ValidateWithDSN() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DSN == "" {
		return fmt.Errorf("--dsn or DATABASE_URL is required")
	}
	return nil
}

// ValidateImport checks the import settings.
func (c *Config) ValidateImport() error {
	if err := c.ValidateWithDSN(); err != nil {
		return err
	}
	info, err := os.Stat(c.DataDir)
	if err != nil {
		return fmt.Errorf("data directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", c.DataDir)
	}
	return nil
}

// TranslationEnabled reports whether a condition filter can be translated.
func (c *Config) TranslationEnabled() bool {
	return c.LLM.BaseURL != ""
}
