// Package config loads patternvec settings from an optional YAML file, an
// optional .env file and PATTERNVEC_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate for unusable settings
var ErrInvalid = errors.New("invalid configuration")

// Config holds every patternvec setting
type Config struct {
	Encoder EncoderConfig `yaml:"encoder"`
	Window  WindowConfig  `yaml:"window"`
	Corpus  CorpusConfig  `yaml:"corpus"`
	Clone   CloneConfig   `yaml:"clone"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// EncoderConfig selects and configures the pretrained encoder
type EncoderConfig struct {
	Provider          string        `yaml:"provider"` // local, remote; empty = detect
	Endpoint          string        `yaml:"endpoint"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	Device            string        `yaml:"device"` // auto, cpu, cuda
	HiddenSize        int           `yaml:"hidden_size"`
	TokenizerEncoding string        `yaml:"tokenizer_encoding"` // cl100k_base, bytes; empty = per provider
	Timeout           time.Duration `yaml:"timeout"`
}

// WindowConfig controls the sliding window
type WindowConfig struct {
	ChunkSize    int           `yaml:"chunk_size"`
	Stride       int           `yaml:"stride"`
	InferTimeout time.Duration `yaml:"infer_timeout"`
	CacheSize    int           `yaml:"cache_size"`
}

// CorpusConfig describes the corpus run
type CorpusConfig struct {
	Root         string `yaml:"root"`
	Extension    string `yaml:"extension"`
	OutputDir    string `yaml:"output_dir"`
	OutputPrefix string `yaml:"output_prefix"`
	Workers      int    `yaml:"workers"`
	IgnoreFile   string `yaml:"ignore_file"`
}

// CloneConfig describes the repository list to clone
type CloneConfig struct {
	ReposFile string `yaml:"repos_file"`
	DestDir   string `yaml:"dest_dir"`
	UseExec   bool   `yaml:"use_exec"`
	Depth     int    `yaml:"depth"`
}

// StorageConfig locates the SQLite store. Empty DBPath disables it.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Encoder: EncoderConfig{
			Device:     "auto",
			HiddenSize: 768,
			Timeout:    60 * time.Second,
		},
		Window: WindowConfig{
			ChunkSize: 510,
			Stride:    256,
		},
		Corpus: CorpusConfig{
			Root:         "corpus",
			Extension:    ".py",
			OutputDir:    ".",
			OutputPrefix: "embeddings",
			Workers:      1,
		},
		Clone: CloneConfig{
			ReposFile: "repos.json",
			DestDir:   "repos",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration. Both file arguments are optional; a missing
// .env file is not an error.
func Load(envFilePath, yamlFilePath string) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := Default()

	if yamlFilePath != "" {
		data, err := os.ReadFile(yamlFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides cfg with any PATTERNVEC_* variables that are set
func applyEnv(cfg *Config) error {
	var errs []error

	cfg.Encoder.Provider = getEnv("PATTERNVEC_ENCODER_PROVIDER", cfg.Encoder.Provider)
	cfg.Encoder.Endpoint = getEnv("PATTERNVEC_INFERENCE_URL", cfg.Encoder.Endpoint)
	cfg.Encoder.APIKey = getEnv("PATTERNVEC_INFERENCE_API_KEY", cfg.Encoder.APIKey)
	cfg.Encoder.Model = getEnv("PATTERNVEC_MODEL", cfg.Encoder.Model)
	cfg.Encoder.Device = getEnv("PATTERNVEC_DEVICE", cfg.Encoder.Device)
	cfg.Encoder.TokenizerEncoding = getEnv("PATTERNVEC_TOKENIZER_ENCODING", cfg.Encoder.TokenizerEncoding)
	cfg.Encoder.HiddenSize = getEnvAsInt("PATTERNVEC_HIDDEN_SIZE", cfg.Encoder.HiddenSize, &errs)
	cfg.Encoder.Timeout = getEnvAsDuration("PATTERNVEC_INFERENCE_TIMEOUT", cfg.Encoder.Timeout, &errs)

	cfg.Window.ChunkSize = getEnvAsInt("PATTERNVEC_CHUNK_SIZE", cfg.Window.ChunkSize, &errs)
	cfg.Window.Stride = getEnvAsInt("PATTERNVEC_STRIDE", cfg.Window.Stride, &errs)
	cfg.Window.InferTimeout = getEnvAsDuration("PATTERNVEC_INFER_TIMEOUT", cfg.Window.InferTimeout, &errs)
	cfg.Window.CacheSize = getEnvAsInt("PATTERNVEC_CACHE_SIZE", cfg.Window.CacheSize, &errs)

	cfg.Corpus.Root = getEnv("PATTERNVEC_CORPUS_ROOT", cfg.Corpus.Root)
	cfg.Corpus.Extension = getEnv("PATTERNVEC_EXTENSION", cfg.Corpus.Extension)
	cfg.Corpus.OutputDir = getEnv("PATTERNVEC_OUTPUT_DIR", cfg.Corpus.OutputDir)
	cfg.Corpus.OutputPrefix = getEnv("PATTERNVEC_OUTPUT_PREFIX", cfg.Corpus.OutputPrefix)
	cfg.Corpus.Workers = getEnvAsInt("PATTERNVEC_WORKERS", cfg.Corpus.Workers, &errs)
	cfg.Corpus.IgnoreFile = getEnv("PATTERNVEC_IGNORE_FILE", cfg.Corpus.IgnoreFile)

	cfg.Clone.ReposFile = getEnv("PATTERNVEC_REPOS_FILE", cfg.Clone.ReposFile)
	cfg.Clone.DestDir = getEnv("PATTERNVEC_CLONE_DIR", cfg.Clone.DestDir)
	cfg.Clone.UseExec = getEnvAsBool("PATTERNVEC_CLONE_EXEC", cfg.Clone.UseExec, &errs)
	cfg.Clone.Depth = getEnvAsInt("PATTERNVEC_CLONE_DEPTH", cfg.Clone.Depth, &errs)

	cfg.Storage.DBPath = getEnv("PATTERNVEC_DB_PATH", cfg.Storage.DBPath)

	cfg.Log.Level = getEnv("PATTERNVEC_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("PATTERNVEC_LOG_FORMAT", cfg.Log.Format)

	return errors.Join(errs...)
}

// Validate rejects settings that would fail mid-run
func (c *Config) Validate() error {
	var errs []error

	if c.Window.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("chunk_size must be >= 1, got %d", c.Window.ChunkSize))
	}
	if c.Window.Stride < 1 || c.Window.Stride > c.Window.ChunkSize {
		errs = append(errs, fmt.Errorf("stride must be in [1, chunk_size], got %d", c.Window.Stride))
	}
	if c.Window.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cache_size must be >= 0, got %d", c.Window.CacheSize))
	}
	if c.Encoder.HiddenSize < 1 {
		errs = append(errs, fmt.Errorf("hidden_size must be >= 1, got %d", c.Encoder.HiddenSize))
	}
	switch strings.ToLower(c.Encoder.Provider) {
	case "", "local":
	case "remote":
		if c.Encoder.Endpoint == "" {
			errs = append(errs, errors.New("remote encoder requires an inference endpoint"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown encoder provider %q", c.Encoder.Provider))
	}
	if c.Corpus.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Corpus.Workers))
	}
	if c.Corpus.Extension == "" {
		errs = append(errs, errors.New("extension cannot be empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// getEnv returns the variable or the default when unset or empty
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getEnvAsBool(key string, defaultValue bool, errs *[]error) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return b
}

func getEnvAsDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}
