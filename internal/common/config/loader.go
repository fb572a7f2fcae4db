// internal/common/config/loader.go
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges configs/config.<env>.yaml and applies
// environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// bool defaults cannot be told apart from "unset" after unmarshal
	v.SetDefault("vetting.auto_contact_references", true)
	v.SetDefault("notifications.email.enabled", true)
	v.SetDefault("scheduler.leader_lock", true)
	v.SetDefault("camunda.enabled", true)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env", "../../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders left in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
	if cfg.Security.EncryptionKey == "" {
		cfg.Security.EncryptionKey = os.Getenv("VETTING_ENCRYPTION_KEY")
	}
	if cfg.Notifications.Alerts.TopicARN == "" {
		cfg.Notifications.Alerts.TopicARN = os.Getenv("VETTING_ALERT_TOPIC_ARN")
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "vetting-engine"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	n := &cfg.Notifications
	if n.MaxRetries == 0 {
		n.MaxRetries = 5
	}
	if n.BaseBackoff == 0 {
		n.BaseBackoff = 5 * 60 * 1000
	}
	if n.MaxBackoff == 0 {
		n.MaxBackoff = 24 * 60 * 60 * 1000
	}
	if n.BatchSize == 0 {
		n.BatchSize = 50
	}
	if n.AWS.Region == "" {
		n.AWS.Region = "us-east-1"
	}

	vc := &cfg.Vetting
	if vc.ApplicationExpiryDays == 0 {
		vc.ApplicationExpiryDays = 90
	}
	if vc.MinReferences == 0 {
		vc.MinReferences = 2
	}
	if vc.MaxReferences == 0 {
		vc.MaxReferences = 3
	}
	if len(vc.ReminderDays) == 0 {
		vc.ReminderDays = []int{3, 7, 12}
	}
	if vc.ReferenceResponseDays == 0 {
		vc.ReferenceResponseDays = 14
	}
	if vc.AssignmentAttempts == 0 {
		vc.AssignmentAttempts = 3
	}
	if vc.LockTimeout == 0 {
		vc.LockTimeout = 5000
	}
	if vc.SchedulerBatchSize == 0 {
		vc.SchedulerBatchSize = 100
	}

	if cfg.Scheduler.TickInterval == 0 {
		cfg.Scheduler.TickInterval = 60000
	}

	if cfg.Bulk.MaxWorkers == 0 {
		cfg.Bulk.MaxWorkers = 4
	}
	if cfg.Bulk.ItemTimeout == 0 {
		cfg.Bulk.ItemTimeout = 30000
	}
	if cfg.Bulk.RetryDelay == 0 {
		cfg.Bulk.RetryDelay = 5 * 60 * 1000
	}
	if cfg.Bulk.MaxAttempts == 0 {
		cfg.Bulk.MaxAttempts = 3
	}

	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = 1024
	}
	if cfg.Audit.ElasticsearchIndex == "" {
		cfg.Audit.ElasticsearchIndex = "vetting-audit"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Audit.ElasticsearchEnabled && len(cfg.Database.Elasticsearch.GetAddresses()) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses or url is required when audit indexing is enabled")
	}

	if key, err := hex.DecodeString(cfg.Security.EncryptionKey); err != nil || len(key) != 32 {
		return fmt.Errorf("security.encryption_key must be 32 hex-encoded bytes")
	}

	if cfg.Notifications.Email.Enabled && cfg.Notifications.Email.FromEmail == "" {
		return fmt.Errorf("notifications.email.from_email is required when email is enabled")
	}
	if cfg.Notifications.Alerts.Enabled && cfg.Notifications.Alerts.TopicARN == "" {
		return fmt.Errorf("notifications.alerts.topic_arn is required when alerts are enabled")
	}

	return validateVetting(cfg.Vetting)
}

func validateVetting(vc VettingConfig) error {
	if vc.MinReferences < 0 || vc.MaxReferences < vc.MinReferences {
		return fmt.Errorf("vetting.min_references/max_references out of range: %d..%d", vc.MinReferences, vc.MaxReferences)
	}
	if len(vc.ReminderDays) != 3 {
		return fmt.Errorf("vetting.reminder_days must list exactly three stages, got %d", len(vc.ReminderDays))
	}
	prev := 0
	for _, d := range vc.ReminderDays {
		if d <= prev {
			return fmt.Errorf("vetting.reminder_days must be strictly increasing and positive: %v", vc.ReminderDays)
		}
		prev = d
	}
	if vc.ReferenceResponseDays <= prev {
		return fmt.Errorf("vetting.reference_response_days (%d) must be after the final reminder (%d)", vc.ReferenceResponseDays, prev)
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// Days converts a day count from config to time.Duration.
func Days(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}
