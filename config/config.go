package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"hermannm.dev/wrap"
)

type Config struct {
	BaseConfig
	ClickHouse    ClickHouse
	Elasticsearch Elasticsearch
}

type BaseConfig struct {
	IsProduction bool               `env:"PRODUCTION"        envDefault:"false"`
	LogLevel     string             `env:"LOG_LEVEL"         envDefault:"INFO"`
	Warehouse    SupportedWarehouse `env:"WAREHOUSE"         envDefault:"clickhouse"`
	API          API
	LLM          LLM
	Cube         Cube
	WarehouseSQL WarehouseSQL
	Execution    Execution
	Cache        Cache
	Demo         Demo
}

type API struct {
	Port               string        `env:"API_PORT"             envDefault:"8000"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"   envSeparator:","`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT"      envDefault:"90s"`
}

type LLM struct {
	// Optional: without it, the model is reported as disconnected and every question yields an
	// error plan.
	APIKey      string        `env:"ANTHROPIC_API_KEY" envDefault:""`
	BaseURL     string        `env:"LLM_BASE_URL"      envDefault:""`
	Model       string        `env:"LLM_MODEL"         envDefault:"claude-sonnet-4-5"`
	MaxTokens   int64         `env:"LLM_MAX_TOKENS"    envDefault:"1024"`
	Temperature float64       `env:"LLM_TEMPERATURE"   envDefault:"0.1"`
	Timeout     time.Duration `env:"LLM_TIMEOUT"       envDefault:"30s"`
}

type Cube struct {
	// Optional: without it, the metrics service is reported as unavailable.
	APIURL      string        `env:"CUBE_API_URL"      envDefault:""`
	APISecret   string        `env:"CUBEJS_API_SECRET" envDefault:""`
	TokenExpiry time.Duration `env:"CUBE_TOKEN_EXPIRY" envDefault:"1h"`
	Timeout     time.Duration `env:"CUBE_TIMEOUT"      envDefault:"30s"`
}

// WarehouseSQL holds the settings that shape generated warehouse queries, independent of which
// warehouse engine runs them.
type WarehouseSQL struct {
	Project string        `env:"WAREHOUSE_PROJECT" envDefault:""`
	Dataset string        `env:"WAREHOUSE_DATASET" envDefault:"retail_marts"`
	Timeout time.Duration `env:"WAREHOUSE_TIMEOUT" envDefault:"30s"`
}

type Execution struct {
	MaxAttempts   uint          `env:"RETRY_MAX_ATTEMPTS" envDefault:"2"`
	RetryDelay    time.Duration `env:"RETRY_DELAY"        envDefault:"500ms"`
	RetryDelayInc time.Duration `env:"RETRY_DELAY_STEP"   envDefault:"500ms"`
	MaxResultRows int           `env:"MAX_RESULT_ROWS"    envDefault:"100"`
}

type Cache struct {
	TTL      time.Duration `env:"CACHE_TTL"       envDefault:"5m"`
	StaleTTL time.Duration `env:"CACHE_STALE_TTL" envDefault:"24h"`
	Capacity uint64        `env:"CACHE_CAPACITY"  envDefault:"1000"`
}

type Demo struct {
	FallbackEnabled bool   `env:"DEMO_FALLBACK_ENABLED" envDefault:"true"`
	DataPath        string `env:"DEMO_DATA_PATH"        envDefault:""`
}

type ClickHouse struct {
	Address      string `env:"CLICKHOUSE_ADDRESS"`
	DatabaseName string `env:"CLICKHOUSE_DB_NAME"`
	Username     string `env:"CLICKHOUSE_USERNAME"`
	Password     string `env:"CLICKHOUSE_PASSWORD"`
	Debug        bool   `env:"CLICKHOUSE_DEBUG_ENABLED" envDefault:"false"`
}

type Elasticsearch struct {
	Address string `env:"ELASTICSEARCH_ADDRESS"`
	Debug   bool   `env:"ELASTICSEARCH_DEBUG_ENABLED" envDefault:"false"`
}

type SupportedWarehouse string

const (
	WarehouseClickHouse    SupportedWarehouse = "clickhouse"
	WarehouseElasticsearch SupportedWarehouse = "elasticsearch"
	WarehouseNone          SupportedWarehouse = "none"
)

func ReadFromEnv() (Config, error) {
	// The .env file is a development convenience; in deployments variables come from the
	// environment itself.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, wrap.Error(err, "failed to load .env file")
	}

	parseOptions := env.Options{RequiredIfNoDef: true}

	var config Config

	if err := env.ParseWithOptions(&config.BaseConfig, parseOptions); err != nil {
		return Config{}, err
	}

	switch config.Warehouse {
	case WarehouseClickHouse:
		if err := env.ParseWithOptions(&config.ClickHouse, parseOptions); err != nil {
			return Config{}, err
		}
	case WarehouseElasticsearch:
		if err := env.ParseWithOptions(&config.Elasticsearch, parseOptions); err != nil {
			return Config{}, err
		}
	case WarehouseNone:
	default:
		err := fmt.Errorf(
			"must be one of: '%s', '%s', '%s'",
			WarehouseClickHouse,
			WarehouseElasticsearch,
			WarehouseNone,
		)
		return Config{}, wrap.Errorf(err, "unsupported value '%s' for WAREHOUSE in env", config.Warehouse)
	}

	if errs := config.Validate(); len(errs) != 0 {
		return Config{}, wrap.Errors("invalid config", errs...)
	}

	return config, nil
}

func (config Config) Validate() (errs []error) {
	if config.Cube.APIURL != "" && config.Cube.APISecret == "" {
		errs = append(errs, errors.New("CUBEJS_API_SECRET is required when CUBE_API_URL is set"))
	}
	if config.Execution.MaxAttempts == 0 {
		errs = append(errs, errors.New("RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if config.Execution.MaxResultRows <= 0 {
		errs = append(errs, errors.New("MAX_RESULT_ROWS must be positive"))
	}
	if config.Cache.StaleTTL < config.Cache.TTL {
		errs = append(errs, errors.New("CACHE_STALE_TTL must not be shorter than CACHE_TTL"))
	}
	if config.LLM.MaxTokens <= 0 {
		errs = append(errs, errors.New("LLM_MAX_TOKENS must be positive"))
	}
	if _, err := config.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func (config Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(config.LogLevel))); err != nil {
		return 0, wrap.Errorf(err, "invalid LOG_LEVEL '%s'", config.LogLevel)
	}
	return level, nil
}
