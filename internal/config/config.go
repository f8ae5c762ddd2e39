package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/takuphilchan/offgrid-bpe/internal/bpe"
	"github.com/takuphilchan/offgrid-bpe/internal/logging"
	"github.com/takuphilchan/offgrid-bpe/internal/pretokenize"
)

// InputFileInfo describes the training corpus.
type InputFileInfo struct {
	FilePath       string `yaml:"file_path" json:"file_path"`
	InputFileLimit int    `yaml:"input_file_limit" json:"input_file_limit"` // 0 = all lines
	PrintText      bool   `yaml:"print_text" json:"print_text"`
}

// OutputFileInfo describes where the merge table is written.
type OutputFileInfo struct {
	FilePath string `yaml:"file_path" json:"file_path"`
}

// Config holds tokenizer configuration. It is owned by the caller and never
// mutated by the trainer or the engine.
type Config struct {
	// Tokenizer
	VocabSize           int    `yaml:"vocab_size" json:"vocab_size"`
	SegmentationPattern string `yaml:"segmentation_pattern" json:"segmentation_pattern"` // empty = whole text is one chunk
	Normalize           string `yaml:"normalize" json:"normalize"`                       // "", "nfc" or "nfkc"

	// Training
	InputFileInfo      InputFileInfo  `yaml:"input_file_info" json:"input_file_info"`
	OutputFileInfo     OutputFileInfo `yaml:"output_file_info" json:"output_file_info"`
	CheckpointInterval int            `yaml:"checkpoint_interval" json:"checkpoint_interval"`
	ProgressInterval   int            `yaml:"progress_interval" json:"progress_interval"`
	TestText           string         `yaml:"test_text,omitempty" json:"test_text,omitempty"`

	// Run registry
	DBPath string `yaml:"db_path" json:"db_path"`

	// Service
	ServerPort int `yaml:"server_port" json:"server_port"`
	CacheSize  int `yaml:"cache_size" json:"cache_size"` // encode cache entries, 0 disables

	// Logging
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogJSON  bool   `yaml:"log_json" json:"log_json"`
}

const (
	defaultVocabSize          = 512
	defaultCheckpointInterval = 1000
	defaultProgressInterval   = 100
	defaultServerPort         = 11711
	defaultCacheSize          = 1024
	defaultOutputPath         = "tokenizer.json"
)

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.CacheSize = defaultCacheSize
	return cfg
}

// LoadConfig returns the built-in configuration with environment overrides.
func LoadConfig() *Config {
	cfg := Default()
	cfg.applyEnvOverrides()
	return cfg
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// Validate checks the configuration before any corpus is read. All
// failures are bpe.KindConfig errors.
func (c *Config) Validate() error {
	if c.VocabSize <= bpe.ByteSymbols {
		return bpe.ConfigErrorf("vocab_size must be greater than %d, got %d", bpe.ByteSymbols, c.VocabSize)
	}
	if c.InputFileInfo.InputFileLimit < 0 {
		return bpe.ConfigErrorf("input_file_limit must not be negative, got %d", c.InputFileInfo.InputFileLimit)
	}
	if c.CheckpointInterval <= 0 {
		return bpe.ConfigErrorf("checkpoint_interval must be positive, got %d", c.CheckpointInterval)
	}
	if c.ProgressInterval < 0 {
		return bpe.ConfigErrorf("progress_interval must not be negative, got %d", c.ProgressInterval)
	}
	if c.OutputFileInfo.FilePath == "" {
		return bpe.ConfigErrorf("output_file_info.file_path is not set")
	}
	if c.CacheSize < 0 {
		return bpe.ConfigErrorf("cache_size must not be negative, got %d", c.CacheSize)
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return bpe.ConfigErrorf("unknown log_level %q", c.LogLevel)
	}
	if _, err := c.PreTokenizer(); err != nil {
		return err
	}
	return nil
}

// PreTokenizer builds the configured pre-tokenizer.
func (c *Config) PreTokenizer() (*pretokenize.PreTokenizer, error) {
	p, err := pretokenize.New(c.SegmentationPattern, c.Normalize)
	if err != nil {
		return nil, &bpe.Error{Kind: bpe.KindConfig, Message: "invalid pre-tokenizer settings", Err: err}
	}
	return p, nil
}

// CheckpointPath is where mid-training snapshots go.
func (c *Config) CheckpointPath() string {
	return c.OutputFileInfo.FilePath + bpe.CheckpointSuffix
}

// LoadFromFile loads configuration from a YAML or JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &bpe.Error{Kind: bpe.KindIO, Message: "failed to read config file", Err: err}
	}

	cfg := &Config{CacheSize: -1}

	ext := filepath.Ext(path)
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &bpe.Error{Kind: bpe.KindConfig, Message: "failed to parse YAML config", Err: err}
		}
	} else if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, &bpe.Error{Kind: bpe.KindConfig, Message: "failed to parse JSON config", Err: err}
		}
	} else {
		return nil, bpe.ConfigErrorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	// CacheSize starts at -1 so an explicit 0 (cache off) survives defaults.
	if cfg.CacheSize == -1 {
		cfg.CacheSize = defaultCacheSize
	}
	cfg.applyDefaults()

	return cfg, nil
}

// SaveToFile saves configuration to a YAML or JSON file
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	ext := filepath.Ext(path)
	if ext == ".yaml" || ext == ".yml" {
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
	} else if ext == ".json" {
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
	} else {
		return bpe.ConfigErrorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &bpe.Error{Kind: bpe.KindIO, Message: "failed to create config directory", Err: err}
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &bpe.Error{Kind: bpe.KindIO, Message: "failed to write config file", Err: err}
	}

	return nil
}

// DefaultPaths lists the files LoadWithPriority tries when no path is given.
func DefaultPaths() []string {
	paths := []string{"bpe.yaml", "bpe.yml", "bpe.json"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".offgrid-bpe", "config.yaml"),
			filepath.Join(homeDir, ".offgrid-bpe", "config.json"),
		)
	}
	return paths
}

// LoadWithPriority loads config with priority: file > env > defaults
func LoadWithPriority(configPath string) (*Config, error) {
	var cfg *Config
	var err error

	if configPath != "" {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		for _, path := range DefaultPaths() {
			if _, statErr := os.Stat(path); statErr == nil {
				cfg, err = LoadFromFile(path)
				if err != nil {
					return nil, err
				}
				break
			}
		}
		if cfg == nil {
			cfg = Default()
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func (c *Config) applyDefaults() {
	if c.VocabSize == 0 {
		c.VocabSize = defaultVocabSize
	}
	if c.CheckpointInterval == 0 {
		c.CheckpointInterval = defaultCheckpointInterval
	}
	if c.ProgressInterval == 0 {
		c.ProgressInterval = defaultProgressInterval
	}
	if c.OutputFileInfo.FilePath == "" {
		c.OutputFileInfo.FilePath = defaultOutputPath
	}
	if c.ServerPort == 0 {
		c.ServerPort = defaultServerPort
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DBPath == "" {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			c.DBPath = filepath.Join(homeDir, ".offgrid-bpe", "runs.db")
		} else {
			c.DBPath = "runs.db"
		}
	}
}

// applyEnvOverrides overrides config with environment variables
func (c *Config) applyEnvOverrides() {
	if v := getEnvInt("BPE_VOCAB_SIZE", 0); v != 0 {
		c.VocabSize = v
	}
	if p, ok := os.LookupEnv("BPE_PATTERN"); ok {
		c.SegmentationPattern = p
	}
	c.Normalize = getEnv("BPE_NORMALIZE", c.Normalize)
	c.InputFileInfo.FilePath = getEnv("BPE_INPUT_PATH", c.InputFileInfo.FilePath)
	if limit := os.Getenv("BPE_LINE_LIMIT"); limit != "" {
		c.InputFileInfo.InputFileLimit = getEnvInt("BPE_LINE_LIMIT", c.InputFileInfo.InputFileLimit)
	}
	c.InputFileInfo.PrintText = getEnvBool("BPE_PRINT_TEXT", c.InputFileInfo.PrintText)
	c.OutputFileInfo.FilePath = getEnv("BPE_OUTPUT_PATH", c.OutputFileInfo.FilePath)
	if v := getEnvInt("BPE_CHECKPOINT_INTERVAL", 0); v != 0 {
		c.CheckpointInterval = v
	}
	if v := getEnvInt("BPE_SERVER_PORT", 0); v != 0 {
		c.ServerPort = v
	}
	c.DBPath = getEnv("BPE_DB_PATH", c.DBPath)
	c.LogLevel = getEnv("BPE_LOG_LEVEL", c.LogLevel)
	c.LogJSON = getEnvBool("BPE_LOG_JSON", c.LogJSON)
}
