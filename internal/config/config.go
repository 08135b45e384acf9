// Package config loads pmat settings from .pmat/config.{json,yaml,toml}
// with PMAT_ environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"
)

// Dir is the per-repository settings directory.
const Dir = ".pmat"

// Config represents the complete pmat configuration
type Config struct {
	Version     int               `json:"version" mapstructure:"version"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
	Cache       CacheConfig       `json:"cache" mapstructure:"cache"`
	Parser      ParserConfig      `json:"parser" mapstructure:"parser"`
	DAG         DAGConfig         `json:"dag" mapstructure:"dag"`
	Server      ServerConfig      `json:"server" mapstructure:"server"`
	QualityGate QualityGateConfig `json:"qualityGate" mapstructure:"qualityGate"`
	Refactor    RefactorConfig    `json:"refactor" mapstructure:"refactor"`
	Exclude     []string          `json:"exclude" mapstructure:"exclude"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// CacheConfig contains persistent cache configuration
type CacheConfig struct {
	Dir        string         `json:"dir" mapstructure:"dir"`
	MaxEntries int            `json:"maxEntries" mapstructure:"maxEntries"`
	TTLSeconds map[string]int `json:"ttlSeconds" mapstructure:"ttlSeconds"`
}

// TTL returns the configured lifetime for a strategy, or def when unset.
func (c CacheConfig) TTL(strategy string, def time.Duration) time.Duration {
	if s, ok := c.TTLSeconds[strategy]; ok && s > 0 {
		return time.Duration(s) * time.Second
	}
	return def
}

// ParserConfig bounds a single parse.
type ParserConfig struct {
	MaxFileSize int64 `json:"maxFileSize" mapstructure:"maxFileSize"`
	MaxDepth    int   `json:"maxDepth" mapstructure:"maxDepth"`
	MaxNodes    int   `json:"maxNodes" mapstructure:"maxNodes"`
	TimeoutMs   int   `json:"timeoutMs" mapstructure:"timeoutMs"`
}

// Timeout returns the per-file parse deadline.
func (p ParserConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// DAGConfig controls graph pruning.
type DAGConfig struct {
	EdgeBudget int     `json:"edgeBudget" mapstructure:"edgeBudget"`
	Damping    float64 `json:"damping" mapstructure:"damping"`
	Iterations int     `json:"iterations" mapstructure:"iterations"`
}

// ServerConfig contains HTTP adapter settings
type ServerConfig struct {
	Host           string   `json:"host" mapstructure:"host"`
	Port           int      `json:"port" mapstructure:"port"`
	CorsOrigins    []string `json:"corsOrigins" mapstructure:"corsOrigins"`
	MaxConnections int      `json:"maxConnections" mapstructure:"maxConnections"`
	TimeoutMs      int      `json:"timeoutMs" mapstructure:"timeoutMs"`
}

// QualityGateConfig holds the gate thresholds.
type QualityGateConfig struct {
	MaxComplexityP99 int     `json:"maxComplexityP99" mapstructure:"maxComplexityP99"`
	MaxDeadCode      float64 `json:"maxDeadCode" mapstructure:"maxDeadCode"`
	MinEntropy       float64 `json:"minEntropy" mapstructure:"minEntropy"`
	MaxSATDCritical  int     `json:"maxSatdCritical" mapstructure:"maxSatdCritical"`
}

// RefactorConfig holds refactor state machine thresholds.
type RefactorConfig struct {
	CyclomaticWarn   int     `json:"cyclomaticWarn" mapstructure:"cyclomaticWarn"`
	CyclomaticError  int     `json:"cyclomaticError" mapstructure:"cyclomaticError"`
	CognitiveWarn    int     `json:"cognitiveWarn" mapstructure:"cognitiveWarn"`
	CognitiveError   int     `json:"cognitiveError" mapstructure:"cognitiveError"`
	TDGWarn          float64 `json:"tdgWarn" mapstructure:"tdgWarn"`
	TDGError         float64 `json:"tdgError" mapstructure:"tdgError"`
	TargetComplexity int     `json:"targetComplexity" mapstructure:"targetComplexity"`
	MaxFunctionLines int     `json:"maxFunctionLines" mapstructure:"maxFunctionLines"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
		Cache: CacheConfig{
			Dir:        ".pmat-cache",
			MaxEntries: 1024,
			TTLSeconds: map[string]int{
				"ast":       300,
				"template":  600,
				"dag":       180,
				"churn":     1800,
				"git_stats": 900,
			},
		},
		Parser: ParserConfig{
			MaxFileSize: 1 << 20,
			MaxDepth:    1000,
			MaxNodes:    100000,
			TimeoutMs:   30000,
		},
		DAG: DAGConfig{
			EdgeBudget: 400,
			Damping:    0.85,
			Iterations: 30,
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			CorsOrigins:    []string{},
			MaxConnections: 100,
			TimeoutMs:      30000,
		},
		QualityGate: QualityGateConfig{
			MaxComplexityP99: 20,
			MaxDeadCode:      15.0,
			MinEntropy:       0.0,
			MaxSATDCritical:  0,
		},
		Refactor: RefactorConfig{
			CyclomaticWarn:   10,
			CyclomaticError:  20,
			CognitiveWarn:    15,
			CognitiveError:   30,
			TDGWarn:          1.5,
			TDGError:         2.0,
			TargetComplexity: 20,
			MaxFunctionLines: 50,
		},
		Exclude: []string{"**/.git/**", "**/node_modules/**", "**/target/**", "**/vendor/**"},
	}
}

// LoadConfig loads configuration from .pmat/config.{json,yaml,toml}.
// A missing file yields DefaultConfig with environment overrides applied.
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigName("config")
	v.AddConfigPath(filepath.Join(repoRoot, Dir))
	v.SetEnvPrefix("PMAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.maxEntries", d.Cache.MaxEntries)
	v.SetDefault("cache.ttlSeconds", d.Cache.TTLSeconds)
	v.SetDefault("parser.maxFileSize", d.Parser.MaxFileSize)
	v.SetDefault("parser.maxDepth", d.Parser.MaxDepth)
	v.SetDefault("parser.maxNodes", d.Parser.MaxNodes)
	v.SetDefault("parser.timeoutMs", d.Parser.TimeoutMs)
	v.SetDefault("dag.edgeBudget", d.DAG.EdgeBudget)
	v.SetDefault("dag.damping", d.DAG.Damping)
	v.SetDefault("dag.iterations", d.DAG.Iterations)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.corsOrigins", d.Server.CorsOrigins)
	v.SetDefault("server.maxConnections", d.Server.MaxConnections)
	v.SetDefault("server.timeoutMs", d.Server.TimeoutMs)
	v.SetDefault("qualityGate.maxComplexityP99", d.QualityGate.MaxComplexityP99)
	v.SetDefault("qualityGate.maxDeadCode", d.QualityGate.MaxDeadCode)
	v.SetDefault("qualityGate.minEntropy", d.QualityGate.MinEntropy)
	v.SetDefault("qualityGate.maxSatdCritical", d.QualityGate.MaxSATDCritical)
	v.SetDefault("refactor.cyclomaticWarn", d.Refactor.CyclomaticWarn)
	v.SetDefault("refactor.cyclomaticError", d.Refactor.CyclomaticError)
	v.SetDefault("refactor.cognitiveWarn", d.Refactor.CognitiveWarn)
	v.SetDefault("refactor.cognitiveError", d.Refactor.CognitiveError)
	v.SetDefault("refactor.tdgWarn", d.Refactor.TDGWarn)
	v.SetDefault("refactor.tdgError", d.Refactor.TDGError)
	v.SetDefault("refactor.targetComplexity", d.Refactor.TargetComplexity)
	v.SetDefault("refactor.maxFunctionLines", d.Refactor.MaxFunctionLines)
	v.SetDefault("exclude", d.Exclude)
}

// Save writes the configuration to .pmat/config.json
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644)
}

// Validate checks every field and reports all problems found.
func (c *Config) Validate() []ConfigError {
	var errs []ConfigError
	add := func(field, msg string) {
		errs = append(errs, ConfigError{Field: field, Message: msg})
	}

	if c.Version != 1 {
		add("version", "unsupported config version")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "trace", "info", "warn", "warning", "error", "off":
	default:
		add("logging.level", "unknown level "+c.Logging.Level)
	}
	if c.Parser.MaxFileSize <= 0 {
		add("parser.maxFileSize", "must be positive")
	}
	if c.Parser.MaxDepth <= 0 {
		add("parser.maxDepth", "must be positive")
	}
	if c.Parser.MaxNodes <= 0 {
		add("parser.maxNodes", "must be positive")
	}
	if c.DAG.EdgeBudget <= 0 {
		add("dag.edgeBudget", "must be positive")
	}
	if c.DAG.Damping <= 0 || c.DAG.Damping >= 1 {
		add("dag.damping", "must be in (0, 1)")
	}
	if c.DAG.Iterations <= 0 {
		add("dag.iterations", "must be positive")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("server.port", "out of range")
	}
	if c.Server.MaxConnections <= 0 {
		add("server.maxConnections", "must be positive")
	}
	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			add("exclude", "invalid glob "+pattern)
		}
	}
	return errs
}

// Excluded reports whether a slash-separated relative path matches any exclude glob.
func (c *Config) Excluded(rel string) bool {
	for _, pattern := range c.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
