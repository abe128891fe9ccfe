package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "diffbridge", cfg.Service.Name)
	assert.Equal(t, "8080", cfg.API.Port)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "task-changes", cfg.Kafka.TaskChangesTopic)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  port: "9090"
jenkins:
  base_url: https://ci.internal
kafka:
  enabled: true
  brokers:
    - kafka-1:9092
    - kafka-2:9092
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.API.Port)
	assert.Equal(t, "https://ci.internal", cfg.Jenkins.BaseURL)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DIFFBRIDGE_API_PORT", "7070")
	t.Setenv("DIFFBRIDGE_JENKINS_API_TOKEN", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.API.Port)
	assert.Equal(t, "secret", cfg.Jenkins.APIToken)
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{
		Host: "db", Port: "5432", User: "u", Password: "p", Database: "d",
	}
	assert.Equal(t, "postgres://u:p@db:5432/d?sslmode=disable", cfg.DSN())
}
