// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Vetting       VettingConfig           `mapstructure:"vetting"`
	Scheduler     SchedulerConfig         `mapstructure:"scheduler"`
	Bulk          BulkConfig              `mapstructure:"bulk"`
	Audit         AuditConfig             `mapstructure:"audit"`
	Security      SecurityConfig          `mapstructure:"security"`
	Server        ServerConfig            `mapstructure:"server"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetAddresses returns Addresses, or URL as a single address.
func (e ElasticsearchConfig) GetAddresses() []string {
	if len(e.Addresses) > 0 {
		return e.Addresses
	}
	if e.URL != "" {
		return []string{e.URL}
	}
	return nil
}

type RedisConfig struct {
	Address          string `mapstructure:"address"`
	Password         string `mapstructure:"password"`
	DB               int    `mapstructure:"db"`
	PoolSize         int    `mapstructure:"pool_size"`
	OperationTimeout int    `mapstructure:"operation_timeout"` // milliseconds
}

// WorkerConfig holds the core settings applicable to every job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// --- Vetting domain ---

// NotificationConfig holds mail transport, alerting and retry policy settings.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	Alerts struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"alerts"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	MaxRetries      int    `mapstructure:"max_retries"`
	BaseBackoff     int    `mapstructure:"base_backoff"` // milliseconds
	MaxBackoff      int    `mapstructure:"max_backoff"`  // milliseconds
	BatchSize       int    `mapstructure:"batch_size"`
	ContactEmail    string `mapstructure:"contact_email"`
	ResponseBaseURL string `mapstructure:"response_base_url"`
}

// VettingConfig holds application and reference workflow policy.
type VettingConfig struct {
	ApplicationExpiryDays int    `mapstructure:"application_expiry_days"`
	MinReferences         int    `mapstructure:"min_references"`
	MaxReferences         int    `mapstructure:"max_references"`
	ReminderDays          []int  `mapstructure:"reminder_days"`
	ReferenceResponseDays int    `mapstructure:"reference_response_days"`
	AssignmentAttempts    int    `mapstructure:"assignment_attempts"`
	LockTimeout           int    `mapstructure:"lock_timeout"` // milliseconds
	AutoContactReferences bool   `mapstructure:"auto_contact_references"`
	SchedulerBatchSize    int    `mapstructure:"scheduler_batch_size"`
	AnswersSchemaPath     string `mapstructure:"answers_schema_path"`
}

type SchedulerConfig struct {
	TickInterval int  `mapstructure:"tick_interval"` // milliseconds
	LeaderLock   bool `mapstructure:"leader_lock"`
}

type BulkConfig struct {
	MaxWorkers  int `mapstructure:"max_workers"`
	ItemTimeout int `mapstructure:"item_timeout"` // milliseconds
	RetryDelay  int `mapstructure:"retry_delay"`  // milliseconds
	MaxAttempts int `mapstructure:"max_attempts"`
}

type AuditConfig struct {
	BufferSize           int    `mapstructure:"buffer_size"`
	ElasticsearchEnabled bool   `mapstructure:"elasticsearch_enabled"`
	ElasticsearchIndex   string `mapstructure:"elasticsearch_index"`
}

type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"` // hex encoded, 32 bytes
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
