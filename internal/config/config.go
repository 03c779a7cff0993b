// Package config loads application configuration from config.yaml and the
// environment and owns global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Dataset   DatasetConfig   `yaml:"dataset" mapstructure:"dataset"`
	Registry  RegistryConfig  `yaml:"registry" mapstructure:"registry"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Region    RegionConfig    `yaml:"region" mapstructure:"region"`
	Wikidata  WikidataConfig  `yaml:"wikidata" mapstructure:"wikidata"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Trust     TrustConfig     `yaml:"trust" mapstructure:"trust"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run-tracking database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DatasetConfig locates the museum dataset on disk.
type DatasetConfig struct {
	Dir     string `yaml:"dir" mapstructure:"dir"`
	RunsDir string `yaml:"runs_dir" mapstructure:"runs_dir"`
}

// RegistryConfig locates the official museum directory workbook. When
// WorkbookURL is set the workbook is downloaded to WorkbookPath before each
// run; http(s) and ftp URLs are supported.
type RegistryConfig struct {
	WorkbookPath string `yaml:"workbook_path" mapstructure:"workbook_path"`
	WorkbookURL  string `yaml:"workbook_url" mapstructure:"workbook_url"`
}

// GeocodeConfig configures the geocoding clients.
type GeocodeConfig struct {
	GoogleKey string `yaml:"google_key" mapstructure:"google_key"`
	RateLimit int    `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RegionConfig configures the region boundary lookup. An empty shapefile
// path disables the spatial lookup, leaving the state table fallback. When
// ShapefileURL is set the zipped shapefile is downloaded and extracted on
// demand.
type RegionConfig struct {
	ShapefilePath string `yaml:"shapefile_path" mapstructure:"shapefile_path"`
	ShapefileURL  string `yaml:"shapefile_url" mapstructure:"shapefile_url"`
	NameField     string `yaml:"name_field" mapstructure:"name_field"`
}

// WikidataConfig configures the Wikidata API client.
type WikidataConfig struct {
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit int    `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// AnthropicConfig holds Anthropic API settings and the run budget ceiling.
type AnthropicConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	Model     string  `yaml:"model" mapstructure:"model"`
	BudgetUSD float64 `yaml:"budget_usd" mapstructure:"budget_usd"`
}

// NotionConfig holds Notion API credentials and the overrides database ID.
type NotionConfig struct {
	Token       string `yaml:"token" mapstructure:"token"`
	OverridesDB string `yaml:"overrides_db" mapstructure:"overrides_db"`
}

// TrustConfig points at an optional placeholder vocabulary file.
type TrustConfig struct {
	PlaceholderFile string `yaml:"placeholder_file" mapstructure:"placeholder_file"`
}

// PipelineConfig configures orchestrator behavior.
type PipelineConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MUSEUMSPARK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "museumspark.db")
	v.SetDefault("dataset.dir", "data/museums")
	v.SetDefault("dataset.runs_dir", "data/runs")
	v.SetDefault("registry.workbook_path", "data/registry/museums.xlsx")
	v.SetDefault("registry.workbook_url", "")
	v.SetDefault("geocode.rate_limit", 5)
	v.SetDefault("region.name_field", "NAME")
	v.SetDefault("region.shapefile_url", "")
	v.SetDefault("wikidata.user_agent", "museumspark/1.0 (https://github.com/markhazleton/MuseumSpark-sub000)")
	v.SetDefault("wikidata.rate_limit", 10)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.budget_usd", 25.0)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is sufficient for the given mode.
// Modes map to command entry points: "enrich", "serve", "score".
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "enrich":
		check(c.Dataset.Dir != "", "dataset.dir is required")
		check(c.Registry.WorkbookPath != "", "registry.workbook_path is required")
		check(c.Pipeline.Workers >= 1 && c.Pipeline.Workers <= 32, "pipeline.workers must be between 1 and 32")
		check(c.Anthropic.BudgetUSD >= 0, "anthropic.budget_usd must be >= 0")
		if c.Notion.Token != "" {
			check(c.Notion.OverridesDB != "", "notion.overrides_db is required when notion.token is set")
		}
	case "score":
		check(c.Dataset.Dir != "", "dataset.dir is required")
	case "serve":
		check(c.Server.Port > 0, "server.port must be > 0")
		check(c.Dataset.Dir != "", "dataset.dir is required")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
