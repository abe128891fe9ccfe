package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the given YAML file, then applies environment
// overrides of the form DIFFBRIDGE_SECTION_KEY, e.g. DIFFBRIDGE_API_PORT or
// DIFFBRIDGE_JENKINS_API_TOKEN. The path may be empty, in which case only
// defaults and environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("service.name", "diffbridge")
	v.SetDefault("service.env", "dev")
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", "8080")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "diffbridge")
	v.SetDefault("postgres.database", "diffbridge")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.task_changes_topic", "task-changes")
	v.SetDefault("kafka.group_id", "diffbridge")
	v.SetDefault("kafka.client_id", "diffbridge-server")
	v.SetDefault("jenkins.base_url", "")
	v.SetDefault("jenkins.username", "")
	v.SetDefault("jenkins.api_token", "")
	v.SetDefault("jenkins.generate_job_name", "generate-diff")
	v.SetDefault("jenkins.integration_job_name", "run-integration")
	// Registering every key, even empty ones, lets AutomaticEnv overrides
	// reach Unmarshal.
	v.SetDefault("postgres.password", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("blob.dir", "/var/lib/diffbridge/blobs")

	v.SetEnvPrefix("DIFFBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
