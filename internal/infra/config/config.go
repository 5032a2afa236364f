package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/arklim/auth-service/internal/core/domain"
)

const envPrefix = "AUTH"

// Storage drivers accepted for the credential store.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	HTTP      HTTPSettings      `mapstructure:"http"`
	Storage   StorageSettings   `mapstructure:"storage"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	SQLite    SQLiteSettings    `mapstructure:"sqlite"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Password  PasswordSettings  `mapstructure:"password"`
}

type AppSettings struct {
	Name            string        `mapstructure:"name"`
	Env             string        `mapstructure:"env"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HTTPSettings configures the HTTP server and browser-facing behaviour.
type HTTPSettings struct {
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	CORSAllowOrigins  []string      `mapstructure:"cors_allow_origins"`
}

// StorageSettings selects the credential store backend.
type StorageSettings struct {
	Driver      string `mapstructure:"driver"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// DSN renders the connection string understood by pgx.
func (p PostgresSettings) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// SQLiteSettings configures the embedded credential store.
type SQLiteSettings struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	DB             int    `mapstructure:"db"`
	Password       string `mapstructure:"password"`
	TLSEnabled     bool   `mapstructure:"tls_enabled"`
	DenylistPrefix string `mapstructure:"denylist_prefix"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// JWTSettings holds the token signing configuration. Token lifetimes are
// fixed by the service and intentionally not configurable.
type JWTSettings struct {
	Secret       string `mapstructure:"secret"`
	Algorithm    string `mapstructure:"algorithm"`
	CookieSecure bool   `mapstructure:"cookie_secure"`
	CookieDomain string `mapstructure:"cookie_domain"`
}

type TelemetrySettings struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	Enabled             bool          `mapstructure:"enabled"`
	WindowDuration      time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts    int           `mapstructure:"login_max_attempts"`
	RegisterMaxAttempts int           `mapstructure:"register_max_attempts"`
	RefreshMaxAttempts  int           `mapstructure:"refresh_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// PasswordSettings configures the registration password policy. Zero disables a rule.
type PasswordSettings struct {
	MinLength           int `mapstructure:"min_length"`
	MinCharacterClasses int `mapstructure:"min_character_classes"`
	MinStrengthScore    int `mapstructure:"min_strength_score"`
}

var envKeys = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"app.log_level",
	"app.shutdown_timeout",
	"http.read_header_timeout",
	"http.cors_allow_origins",
	"storage.driver",
	"storage.auto_migrate",
	"postgres.host",
	"postgres.port",
	"postgres.user",
	"postgres.password",
	"postgres.database",
	"postgres.ssl_mode",
	"postgres.max_conns",
	"postgres.min_conns",
	"postgres.max_conn_lifetime",
	"postgres.max_conn_idle_time",
	"postgres.health_check_period",
	"sqlite.path",
	"sqlite.busy_timeout",
	"redis.host",
	"redis.port",
	"redis.db",
	"redis.password",
	"redis.tls_enabled",
	"redis.denylist_prefix",
	"kafka.enabled",
	"kafka.brokers",
	"kafka.topic_prefix",
	"jwt.secret",
	"jwt.algorithm",
	"jwt.cookie_secure",
	"jwt.cookie_domain",
	"telemetry.tracing_enabled",
	"telemetry.otlp_endpoint",
	"telemetry.service_name",
	"telemetry.sampling_rate",
	"rate_limit.enabled",
	"rate_limit.window_duration",
	"rate_limit.login_max_attempts",
	"rate_limit.register_max_attempts",
	"rate_limit.refresh_max_attempts",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
	"password.min_length",
	"password.min_character_classes",
	"password.min_strength_score",
}

// Load reads configuration from defaults and AUTH_ prefixed environment variables.
func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, envKeys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("%w: jwt.secret is required", domain.ErrConfiguration)
	}
	if !slices.Contains([]string{"HS256", "HS384", "HS512"}, strings.ToUpper(c.JWT.Algorithm)) {
		return fmt.Errorf("%w: unsupported jwt.algorithm %q", domain.ErrConfiguration, c.JWT.Algorithm)
	}
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverSQLite:
	default:
		return fmt.Errorf("%w: unknown storage.driver %q", domain.ErrConfiguration, c.Storage.Driver)
	}
	if c.RateLimit.Enabled && c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("%w: rate_limit.window_duration must be positive", domain.ErrConfiguration)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "auth-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.log_level", "")
	v.SetDefault("app.shutdown_timeout", "15s")

	v.SetDefault("http.read_header_timeout", "5s")
	v.SetDefault("http.cors_allow_origins", []string{})

	v.SetDefault("storage.driver", StorageDriverPostgres)
	v.SetDefault("storage.auto_migrate", true)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "auth")
	v.SetDefault("postgres.password", "auth_password")
	v.SetDefault("postgres.database", "auth")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("sqlite.path", "./data/auth.db")
	v.SetDefault("sqlite.busy_timeout", "5s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.denylist_prefix", "auth:denylist")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "auth")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.algorithm", "HS256")
	v.SetDefault("jwt.cookie_secure", true)
	v.SetDefault("jwt.cookie_domain", "")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "auth-service")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.register_max_attempts", 3)
	v.SetDefault("rate_limit.refresh_max_attempts", 10)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("password.min_length", 0)
	v.SetDefault("password.min_character_classes", 0)
	v.SetDefault("password.min_strength_score", 0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
