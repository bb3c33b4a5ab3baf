package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFromEnvDefaults(t *testing.T) {
	t.Setenv("WAREHOUSE", "none")

	config, err := ReadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8000", config.API.Port)
	assert.Equal(t, []string{"*"}, config.API.CORSAllowedOrigins)
	assert.Equal(t, uint(2), config.Execution.MaxAttempts)
	assert.Equal(t, 100, config.Execution.MaxResultRows)
	assert.Equal(t, time.Hour, config.Cube.TokenExpiry)
	assert.Equal(t, 0.1, config.LLM.Temperature)
	assert.True(t, config.Demo.FallbackEnabled)

	level, err := config.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestReadFromEnvRequiresWarehouseSettings(t *testing.T) {
	t.Setenv("WAREHOUSE", "clickhouse")

	_, err := ReadFromEnv()
	assert.ErrorContains(t, err, "CLICKHOUSE_ADDRESS")
}

func TestReadFromEnvClickHouse(t *testing.T) {
	t.Setenv("WAREHOUSE", "clickhouse")
	t.Setenv("CLICKHOUSE_ADDRESS", "localhost:9000")
	t.Setenv("CLICKHOUSE_DB_NAME", "retail_marts")
	t.Setenv("CLICKHOUSE_USERNAME", "default")
	t.Setenv("CLICKHOUSE_PASSWORD", "")

	config, err := ReadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", config.ClickHouse.Address)
}

func TestReadFromEnvRejectsUnknownWarehouse(t *testing.T) {
	t.Setenv("WAREHOUSE", "bigtable")

	_, err := ReadFromEnv()
	assert.ErrorContains(t, err, "unsupported value 'bigtable'")
}

func TestValidate(t *testing.T) {
	t.Setenv("WAREHOUSE", "none")
	t.Setenv("CUBE_API_URL", "http://localhost:4000/cubejs-api/v1")
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")
	t.Setenv("LOG_LEVEL", "LOUD")

	_, err := ReadFromEnv()
	require.Error(t, err)
	assert.ErrorContains(t, err, "CUBEJS_API_SECRET")
	assert.ErrorContains(t, err, "RETRY_MAX_ATTEMPTS")
	assert.ErrorContains(t, err, "LOG_LEVEL")
}
