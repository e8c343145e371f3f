package config

import (
	"time"

	"github.com/caarlos0/env"
)

type Config struct {
	MetricsUrl               string        `env:"METRICS_URL" envDefault:"http://localhost:8000/metrics"`
	SnapshotPollInterval     time.Duration `env:"SNAPSHOT_POLL_INTERVAL" envDefault:"2s"`
	SnapshotMaxAge           time.Duration `env:"SNAPSHOT_MAX_AGE" envDefault:"5s"`
	SnapshotFetchTimeout     time.Duration `env:"SNAPSHOT_FETCH_TIME_OUT" envDefault:"5s"`
	SnapshotFetchRetries     int           `env:"SNAPSHOT_FETCH_RETRIES" envDefault:"1"`
	SnapshotWorkers          int           `env:"SNAPSHOT_WORKERS" envDefault:"2"`
	SessionIdleTimeout       time.Duration `env:"SESSION_IDLE_TIME_OUT" envDefault:"5m"`
	MatchTolerance           time.Duration `env:"MATCH_TOLERANCE" envDefault:"5s"`
	SessionMatchTolerance    time.Duration `env:"SESSION_MATCH_TOLERANCE" envDefault:"30s"`
	ServerLogPath            string        `env:"SERVER_LOG_PATH"`
	StatsLogPath             string        `env:"STATS_LOG_PATH"`
	ServerPort               string        `env:"SERVER_PORT" envDefault:"8011"`
	AdminPass                string        `env:"ADMIN_PASS" envDefault:""`
	PostgresqlEnabled        bool          `env:"POSTGRESQL_ENABLED" envDefault:"false"`
	PostgresqlHosts          string        `env:"POSTGRESQL_HOSTS" envSeparator:":" envDefault:"localhost"`
	PostgresqlUsername       string        `env:"POSTGRESQL_USERNAME"`
	PostgresqlPassword       string        `env:"POSTGRESQL_PASSWORD"`
	PostgresqlSslEnabled     bool          `env:"POSTGRESQL_SSL_ENABLED" envDefault:"false"`
	PostgresqlPort           string        `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgresqlReadTimeout    time.Duration `env:"POSTGRESQL_READ_TIME_OUT" envDefault:"2s"`
	PostgresqlWriteTimeout   time.Duration `env:"POSTGRESQL_WRITE_TIME_OUT" envDefault:"1s"`
	RedisEnabled             bool          `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHosts               string        `env:"REDIS_HOSTS" envSeparator:":" envDefault:"localhost"`
	RedisPort                string        `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword            string        `env:"REDIS_PASSWORD"`
	RedisReadTimeout         time.Duration `env:"REDIS_READ_TIME_OUT" envDefault:"1s"`
	RedisWriteTimeout        time.Duration `env:"REDIS_WRITE_TIME_OUT" envDefault:"500ms"`
	TelemetryProvider        string        `env:"TELEMETRY_PROVIDER" envDefault:"statsd"`
	StatsEnabled             bool          `env:"STATS_ENABLED" envDefault:"false"`
	StatsAddress             string        `env:"STATS_ADDRESS" envDefault:"127.0.0.1:8125"`
	PrometheusEnabled        bool          `env:"PROMETHEUS_ENABLED" envDefault:"false"`
	PrometheusPort           string        `env:"PROMETHEUS_PORT" envDefault:"2112"`
	OpenTelemetryEnabled     bool          `env:"OPENTELEMETRY_ENABLED" envDefault:"false"`
	OpenTelemetryEndpoint    string        `env:"OPENTELEMETRY_ENDPOINT" envDefault:"localhost:4318"`
	OpenTelemetryServiceName string        `env:"OPENTELEMETRY_SERVICE_NAME" envDefault:"reqlens"`
}

func ParseEnvVariables() (*Config, error) {
	cfg := &Config{}
	err := env.Parse(cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}
