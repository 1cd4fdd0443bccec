package adelauth

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the environment-driven deployment configuration used when
// the engine is embedded in a service. It covers connection endpoints;
// behavioral tuning stays in [Config].
type Settings struct {
	App      AppSettings      `mapstructure:"app"`
	Postgres PostgresSettings `mapstructure:"postgres"`
	Redis    RedisSettings    `mapstructure:"redis"`
	Kafka    KafkaSettings    `mapstructure:"kafka"`
	Token    TokenSettings    `mapstructure:"token"`
}

// AppSettings identifies the deployment.
type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// PostgresSettings configures the relational store connection.
type PostgresSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// DSN renders the pgx connection string.
func (p PostgresSettings) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// RedisSettings configures the cache connection.
type RedisSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// Addr renders the host:port address.
func (r RedisSettings) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaSettings configures the event broker.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// TokenSettings carries the signing secret and TTL overrides.
type TokenSettings struct {
	Secret     string        `mapstructure:"secret"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

// LoadSettings reads deployment settings from the environment with the
// ADELA prefix (ADELA_POSTGRES_HOST, ADELA_TOKEN_SECRET, ...).
func LoadSettings() (*Settings, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("ADELA")

	setDefaults(v)

	keys := []string{
		"app.name",
		"app.env",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"kafka.brokers",
		"kafka.topic_prefix",
		"token.secret",
		"token.access_ttl",
		"token.refresh_ttl",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "adela-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "adela")
	v.SetDefault("postgres.database", "adela_auth")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.topic_prefix", "adela")
	v.SetDefault("token.access_ttl", 15*time.Minute)
	v.SetDefault("token.refresh_ttl", 7*24*time.Hour)
}

// ApplySettings folds deployment settings into a behavioral [Config].
func (s *Settings) ApplySettings(cfg Config) Config {
	if s.Token.Secret != "" {
		cfg.Token.Secret = []byte(s.Token.Secret)
	}
	if s.Token.AccessTTL > 0 {
		cfg.Token.AccessTTL = s.Token.AccessTTL
	}
	if s.Token.RefreshTTL > 0 {
		cfg.Token.RefreshTTL = s.Token.RefreshTTL
	}
	return cfg
}
