// Package config defines the service configuration and its loading from file
// and environment.
package config

// Config represents the top-level configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service" mapstructure:"service"`
	API      APIConfig      `yaml:"api" mapstructure:"api"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka" mapstructure:"kafka"`
	Jenkins  JenkinsConfig  `yaml:"jenkins" mapstructure:"jenkins"`
	Blob     BlobConfig     `yaml:"blob" mapstructure:"blob"`
}

// ServiceConfig identifies this instance in logs and traces.
type ServiceConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	Env  string `yaml:"env" mapstructure:"env"`
}

// APIConfig holds the HTTP listener settings.
type APIConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port string `yaml:"port" mapstructure:"port"`
}

// PostgresConfig holds the database connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     string `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode" mapstructure:"ssl_mode"`
}

// DSN renders the settings as a pgx connection string.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port +
		"/" + c.Database + "?sslmode=" + sslMode
}

// KafkaConfig holds the change notification stream settings. When Enabled is
// false the service runs with an in-memory bus.
type KafkaConfig struct {
	Enabled          bool     `yaml:"enabled" mapstructure:"enabled"`
	Brokers          []string `yaml:"brokers" mapstructure:"brokers"`
	TaskChangesTopic string   `yaml:"task_changes_topic" mapstructure:"task_changes_topic"`
	GroupID          string   `yaml:"group_id" mapstructure:"group_id"`
	ClientID         string   `yaml:"client_id" mapstructure:"client_id"`
}

// JenkinsConfig holds the CI connection settings.
type JenkinsConfig struct {
	BaseURL            string `yaml:"base_url" mapstructure:"base_url"`
	Username           string `yaml:"username" mapstructure:"username"`
	APIToken           string `yaml:"api_token" mapstructure:"api_token"`
	GenerateJobName    string `yaml:"generate_job_name" mapstructure:"generate_job_name"`
	IntegrationJobName string `yaml:"integration_job_name" mapstructure:"integration_job_name"`
}

// BlobConfig holds the artifact storage settings.
type BlobConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}
