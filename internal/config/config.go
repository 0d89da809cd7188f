// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for clepho.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed prices.yaml
var pricesYAML []byte

const appName = "clepho"

// Config is the top-level configuration structure, loaded from
// ~/.config/clepho/config.toml (or $CLEPHO_CONFIG).
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Scanner   ScannerConfig   `toml:"scanner"`
	Preview   PreviewConfig   `toml:"preview"`
	Thumbnail ThumbnailConfig `toml:"thumbnails"`
	Trash     TrashConfig     `toml:"trash"`
	Schedule  ScheduleConfig  `toml:"schedule"`
	LLM       LLMConfig       `toml:"llm"`

	// Prices is not part of the TOML surface; it is loaded from the
	// embedded prices.yaml the way the teacher embeds its model pricing.
	Prices PricesConfig `toml:"-"`
}

// DatabaseConfig selects and configures the Store backend (§4.1, §6.2).
type DatabaseConfig struct {
	Backend        string `toml:"backend"` // "sqlite" | "postgresql"
	SQLitePath     string `toml:"sqlite_path"`
	PostgreSQLURL  string `toml:"postgresql_url"`
	PoolSize       int    `toml:"pool_size"`
}

// ScannerConfig controls ingestion classification and dedup sensitivity.
type ScannerConfig struct {
	ImageExtensions     []string `toml:"image_extensions"`
	SimilarityThreshold int      `toml:"similarity_threshold"`
	IncludeDotfiles     bool     `toml:"include_dotfiles"`
	Workers             int      `toml:"workers"`
	WriterBatchSize     int      `toml:"writer_batch_size"`
}

// PreviewConfig is delegated entirely to the (out-of-scope) UI layer; the
// core only needs to round-trip it unmodified.
type PreviewConfig struct {
	Protocol string `toml:"protocol"`
}

// ThumbnailConfig configures ThumbnailCache (§4.4).
type ThumbnailConfig struct {
	Path string `toml:"path"`
	Size int    `toml:"size"`
}

// TrashConfig configures TrashManager (§4.8).
type TrashConfig struct {
	Path        string `toml:"path"`
	MaxAgeDays  int    `toml:"max_age_days"`
	MaxSizeByte int64  `toml:"max_size_bytes"`
}

// ScheduleConfig configures Scheduler defaults (§4.9).
type ScheduleConfig struct {
	CheckOverdueOnStartup bool `toml:"check_overdue_on_startup"`
	DefaultHoursStart     int  `toml:"default_hours_start"`
	DefaultHoursEnd       int  `toml:"default_hours_end"`
	DaemonIntervalSeconds int  `toml:"daemon_interval_seconds"`
}

// LLMConfig configures the vision/embedding external collaborator (§6.5).
type LLMConfig struct {
	Provider      string `toml:"provider"` // "openai" | "gemini" | "ollama" | "llamacpp"
	Endpoint      string `toml:"endpoint"`
	Model         string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	APIKey        string `toml:"api_key"`
	Prompt        string `toml:"prompt"`
	BatchMode     bool   `toml:"batch_mode"`
}

// PricesConfig holds per-model LLM pricing for usage/cost tracking.
type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Standard RequestPricing `yaml:"standard"`
	Batch    RequestPricing `yaml:"batch"`
}

type RequestPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Defaults applies the implied defaults of §6.2 to a zero-value Config.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", appName)
	cacheDir := filepath.Join(home, ".cache", appName)

	return &Config{
		Database: DatabaseConfig{
			Backend:    "sqlite",
			SQLitePath: filepath.Join(dataDir, "clepho.db"),
			PoolSize:   10,
		},
		Scanner: ScannerConfig{
			ImageExtensions:     []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".heic", ".tiff"},
			SimilarityThreshold: 10,
			Workers:             0, // 0 means "use NumCPU"
			WriterBatchSize:     64,
		},
		Thumbnail: ThumbnailConfig{
			Path: filepath.Join(cacheDir, "thumbnails"),
			Size: 256,
		},
		Trash: TrashConfig{
			Path:        filepath.Join(dataDir, ".trash"),
			MaxAgeDays:  30,
			MaxSizeByte: 5 * 1024 * 1024 * 1024,
		},
		Schedule: ScheduleConfig{
			CheckOverdueOnStartup: true,
			DefaultHoursStart:     0,
			DefaultHoursEnd:       0,
			DaemonIntervalSeconds: 60,
		},
	}
}

// ConfigPath resolves the effective config file path: $CLEPHO_CONFIG
// overrides ~/.config/clepho/config.toml.
func ConfigPath() string {
	if p := os.Getenv("CLEPHO_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName, "config.toml")
}

// Load reads the TOML config at ConfigPath(), overlaying it onto Defaults().
// A missing config file is not an error: Defaults() alone is a valid config.
// A .env file (if present) is loaded first so LLM secrets can be supplied
// via environment without editing the TOML file, mirroring the teacher's
// godotenv.Load() in cmd/root.go.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	path := ConfigPath()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	if key := os.Getenv("CLEPHO_LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}

	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		return nil, fmt.Errorf("parsing embedded prices.yaml: %w", err)
	}
	cfg.Prices = prices

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces the invariants spec.md §9 calls out explicitly: a
// similarity_threshold documented up to 256 but only meaningful up to 64
// for a 64-bit signature is a configuration warning, not a validation
// error, so it is left for dup.Engine.FindGroups to clamp and slog.Warn
// at the point it's actually used; Validate only rejects negative values.
func (c *Config) Validate() error {
	if c.Database.Backend != "sqlite" && c.Database.Backend != "postgresql" {
		return fmt.Errorf("database.backend must be \"sqlite\" or \"postgresql\", got %q", c.Database.Backend)
	}
	if c.Database.Backend == "postgresql" && c.Database.PostgreSQLURL == "" {
		return fmt.Errorf("database.postgresql_url is required when database.backend = \"postgresql\"")
	}
	if c.Scanner.SimilarityThreshold < 0 {
		return fmt.Errorf("scanner.similarity_threshold must be >= 0")
	}
	return nil
}

// GetModelPricing returns pricing for a specific model, with zero-value
// fallback defaults, matching the teacher's GetModelPricing.
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	return ModelPricing{}
}
