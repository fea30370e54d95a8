package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/julianshen/worldforge/internal/logger"
)

// Environment variables read by ApplyEnv.
const (
	EnvReportsDir = "REPORTS_DIR"
	EnvOutDir     = "OUT_DIR"
	EnvAssetsDir  = "DL_ASSETS_DIR"
	EnvAPIKey     = "OPENAI_API_KEY"
	EnvModel      = "OPENAI_MODEL"
	EnvBaseURL    = "OPENAI_BASE_URL"
)

// Config represents the top-level pipeline configuration.
type Config struct {
	Paths    PathsConfig    `toml:"paths"`
	Analysis AnalysisConfig `toml:"analysis"`
	LLM      LLMConfig      `toml:"llm"`
	Logging  LoggingConfig  `toml:"logging"`
}

// PathsConfig locates the inputs and outputs of a run. Empty derived paths
// resolve relative to OutDir.
type PathsConfig struct {
	Snapshot     string `toml:"snapshot"`
	Dictionaries string `toml:"dictionaries"`
	AnalysisDir  string `toml:"analysis_dir"`
	OutDir       string `toml:"out_dir"`
	ReportsDir   string `toml:"reports_dir"`
	SeedsDir     string `toml:"seeds_dir"`
	ModelsDir    string `toml:"models_dir"`
	Manifest     string `toml:"manifest"`
	CacheDB      string `toml:"cache_db"`
	GameDB       string `toml:"game_db"`
	PlayerDB     string `toml:"player_db"`
	// AssetsDir is passed through to the runtime; the pipeline never reads it.
	AssetsDir string `toml:"assets_dir"`

	// ModelsExclude are glob patterns of model paths never staged.
	ModelsExclude []string `toml:"models_exclude"`
}

// AnalysisConfig tunes pattern analysis and cross-validation.
type AnalysisConfig struct {
	SampleCap      int     `toml:"sample_cap"`
	ReadyThreshold float64 `toml:"ready_threshold"`
	Strict         bool    `toml:"strict"`
}

// LLMConfig holds settings for the OpenAI-compatible model client.
type LLMConfig struct {
	Enabled            bool          `toml:"enabled"`
	Model              string        `toml:"model"`
	BaseURL            string        `toml:"base_url"`
	APIKeySource       string        `toml:"api_key_source"`
	APIKey             string        `toml:"api_key"`
	SamplesPerCategory int           `toml:"samples_per_category"`
	RequestsPerMinute  int           `toml:"requests_per_minute"`
	Timeout            time.Duration `toml:"timeout"`
	Concurrency        int           `toml:"concurrency"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns a Config populated with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			OutDir:      "build",
			ReportsDir:  filepath.Join("build", "reports"),
			AnalysisDir: filepath.Join("build", "analysis"),
			SeedsDir:    filepath.Join("build", "seeds"),
		},
		Analysis: AnalysisConfig{
			SampleCap:      5,
			ReadyThreshold: 0.7,
		},
		LLM: LLMConfig{
			Enabled:            true,
			Model:              "gpt-4o-mini",
			APIKeySource:       "env",
			SamplesPerCategory: 3,
			RequestsPerMinute:  30,
			Timeout:            2 * time.Minute,
			Concurrency:        2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the TOML file at path over the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		logger.Warn("unknown config keys", "path", path, "keys", strings.Join(keys, ","))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment. Variables that
// are already set win. Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			logger.Debug("no env file loaded", "file", f)
		}
	}
}

// ApplyEnv overrides paths and model settings from the environment.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvOutDir); ok && v != "" {
		c.Paths.OutDir = v
	}
	if v, ok := os.LookupEnv(EnvReportsDir); ok && v != "" {
		c.Paths.ReportsDir = v
	}
	if v, ok := os.LookupEnv(EnvAssetsDir); ok && v != "" {
		c.Paths.AssetsDir = v
	}
	if v, ok := os.LookupEnv(EnvModel); ok && v != "" {
		c.LLM.Model = v
	}
	if v, ok := os.LookupEnv(EnvBaseURL); ok && v != "" {
		c.LLM.BaseURL = v
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Paths.OutDir == "" {
		return fmt.Errorf("paths.out_dir is required")
	}
	if c.Analysis.ReadyThreshold <= 0 || c.Analysis.ReadyThreshold > 1 {
		return fmt.Errorf("analysis.ready_threshold must be in (0,1], got %v", c.Analysis.ReadyThreshold)
	}
	if c.Analysis.SampleCap < 0 {
		return fmt.Errorf("analysis.sample_cap must not be negative")
	}
	if c.LLM.Concurrency < 1 {
		return fmt.Errorf("llm.concurrency must be at least 1")
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute must not be negative")
	}
	return nil
}

// ManifestPath is the manifest location, defaulting into OutDir.
func (p PathsConfig) ManifestPath() string {
	return p.orOut(p.Manifest, "manifest.json")
}

// CacheDBPath is the LLM response cache location.
func (p PathsConfig) CacheDBPath() string {
	return p.orOut(p.CacheDB, "llm_cache.db")
}

// GameDBPath is the game-content database location.
func (p PathsConfig) GameDBPath() string {
	return p.orOut(p.GameDB, "game_content.db")
}

// PlayerDBPath is the player-state database location.
func (p PathsConfig) PlayerDBPath() string {
	return p.orOut(p.PlayerDB, "player_state.db")
}

func (p PathsConfig) orOut(v, name string) string {
	if v != "" {
		return v
	}
	return filepath.Join(p.OutDir, name)
}
