package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Config holds all configuration for one of the three daemon binaries
// (orchestrator, actionworker, instanceworker).
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	S3        S3Config        `mapstructure:"s3"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Version   string          `mapstructure:"version"`
}

// ServiceConfig holds service-specific configuration.
type ServiceConfig struct {
	Name        string `mapstructure:"name" envconfig:"SERVICE_NAME"`
	Environment string `mapstructure:"environment" envconfig:"ENVIRONMENT" default:"development"`
}

// DaemonConfig carries the runtime knobs from spec.md §4.3–§4.5 that the
// teacher's HTTP/GRPC/Auth sections had no equivalent for.
type DaemonConfig struct {
	Queues                        []string      `mapstructure:"queues" envconfig:"DAEMON_QUEUES"`
	NumActionWorkers              int           `mapstructure:"num_action_workers" envconfig:"DAEMON_NUM_ACTION_WORKERS" default:"4"`
	MaxInstanceWorkers            int           `mapstructure:"max_instance_workers" envconfig:"DAEMON_MAX_INSTANCE_WORKERS" default:"2"`
	ThreadsPerActionWorker        int           `mapstructure:"threads_per_action_worker" envconfig:"DAEMON_THREADS_PER_ACTION_WORKER" default:"8"`
	MaxInstancesPerWorker         int           `mapstructure:"max_instances_per_worker" envconfig:"DAEMON_MAX_INSTANCES_PER_WORKER" default:"256"`
	PingInterval                  time.Duration `mapstructure:"ping_interval" envconfig:"DAEMON_PING_INTERVAL" default:"30s"`
	WorkerTimeout                 time.Duration `mapstructure:"worker_timeout" envconfig:"DAEMON_WORKER_TIMEOUT" default:"5m"`
	UpdateScheduledRefresh        time.Duration `mapstructure:"update_scheduled_refresh" envconfig:"DAEMON_UPDATE_SCHEDULED_REFRESH" default:"2s"`
	UpdateTimedOutWorkersRefresh  time.Duration `mapstructure:"update_timed_out_workers_refresh" envconfig:"DAEMON_UPDATE_TIMED_OUT_WORKERS_REFRESH" default:"15s"`
	HealthCheckInterval           time.Duration `mapstructure:"health_check_interval" envconfig:"DAEMON_HEALTH_CHECK_INTERVAL" default:"5s"`
	TasksBeforeRecycle            int           `mapstructure:"tasks_before_recycle" envconfig:"DAEMON_TASKS_BEFORE_RECYCLE" default:"0"`
	DrainGracePeriod              time.Duration `mapstructure:"drain_grace_period" envconfig:"DAEMON_DRAIN_GRACE_PERIOD" default:"30s"`
	LargePayloadThresholdBytes    int           `mapstructure:"large_payload_threshold_bytes" envconfig:"DAEMON_LARGE_PAYLOAD_THRESHOLD_BYTES" default:"262144"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" envconfig:"DB_HOST" default:"localhost"`
	Port            int           `mapstructure:"port" envconfig:"DB_PORT" default:"5432"`
	User            string        `mapstructure:"user" envconfig:"DB_USER" default:"postgres"`
	Password        string        `mapstructure:"password" envconfig:"DB_PASSWORD" default:"postgres"`
	Database        string        `mapstructure:"database" envconfig:"DB_NAME" default:"daemonflow"`
	SSLMode         string        `mapstructure:"ssl_mode" envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" envconfig:"DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig holds the optional cross-process transport tier config
// (Design Note §9).
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled" envconfig:"REDIS_ENABLED" default:"false"`
	Host         string        `mapstructure:"host" envconfig:"REDIS_HOST" default:"localhost"`
	Port         int           `mapstructure:"port" envconfig:"REDIS_PORT" default:"6379"`
	Password     string        `mapstructure:"password" envconfig:"REDIS_PASSWORD"`
	DB           int           `mapstructure:"db" envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `mapstructure:"pool_size" envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// KafkaConfig holds the results-event-bus configuration.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled" envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `mapstructure:"brokers" envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	Topic   string   `mapstructure:"topic" envconfig:"KAFKA_TOPIC" default:"workflow.results"`
}

// MongoConfig holds execution-log archive configuration.
type MongoConfig struct {
	Enabled    bool   `mapstructure:"enabled" envconfig:"MONGO_ENABLED" default:"false"`
	URI        string `mapstructure:"uri" envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	Database   string `mapstructure:"database" envconfig:"MONGO_DATABASE" default:"daemonflow_archive"`
	Collection string `mapstructure:"collection" envconfig:"MONGO_COLLECTION" default:"execution_log"`
}

// S3Config holds large-payload offload configuration.
type S3Config struct {
	Enabled bool   `mapstructure:"enabled" envconfig:"S3_ENABLED" default:"false"`
	Bucket  string `mapstructure:"bucket" envconfig:"S3_BUCKET"`
	Region  string `mapstructure:"region" envconfig:"S3_REGION" default:"us-east-1"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format     string `mapstructure:"format" envconfig:"LOG_FORMAT" default:"json"`
	OutputPath string `mapstructure:"output_path" envconfig:"LOG_OUTPUT_PATH" default:"stdout"`
}

// TelemetryConfig holds telemetry configuration.
type TelemetryConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
	TracingEnabled bool   `mapstructure:"tracing_enabled" envconfig:"TRACING_ENABLED" default:"true"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint" envconfig:"JAEGER_ENDPOINT" default:"http://localhost:14268/api/traces"`
	ServiceName    string `mapstructure:"service_name" envconfig:"TELEMETRY_SERVICE_NAME"`
}

// AdminConfig holds the orchestrator's admin HTTP surface (/health,
// /metrics, /ws) — the only HTTP server any daemon binary runs.
type AdminConfig struct {
	Port         int           `mapstructure:"port" envconfig:"ADMIN_PORT" default:"9000"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"ADMIN_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"ADMIN_WRITE_TIMEOUT" default:"10s"`
}

// Load loads configuration from files and environment, mirroring the
// layering the rest of this codebase uses: an optional YAML file under
// ./configs, then global env vars, then service-prefixed env vars.
func Load(serviceName string) (*Config, error) {
	var cfg Config

	cfg.Service.Name = serviceName
	cfg.Telemetry.ServiceName = serviceName

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("./configs/services/" + serviceName)
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	envPrefix := fmt.Sprintf("%s_", toEnvPrefix(serviceName))
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process service env vars: %w", err)
	}

	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "workflow.results"
	}

	if version := os.Getenv("VERSION"); version != "" {
		cfg.Version = version
	} else {
		cfg.Version = "dev"
	}

	return &cfg, nil
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func toEnvPrefix(name string) string {
	result := ""
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result += "_"
		}
		if r >= 'a' && r <= 'z' {
			result += string(r - 32)
		} else {
			result += string(r)
		}
	}
	return result
}
