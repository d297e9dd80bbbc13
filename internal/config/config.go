package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fundify-chat/internal/logger"
)

type Config struct {
	Server ServerConfig    `mapstructure:"server"`
	Store  StoreConfig     `mapstructure:"store"`
	Mongo  MongoConfig     `mapstructure:"mongo"`
	DB     PostgresConfig  `mapstructure:"postgres"`
	Badger BadgerConfig    `mapstructure:"badger"`
	Redis  RedisConfig     `mapstructure:"redis"`
	Auth   AuthConfig      `mapstructure:"auth"`
	Chat   ChatConfig      `mapstructure:"chat"`
	WS     WebSocketConfig `mapstructure:"ws"`
	Log    logger.Config   `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=0,max=65535"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StoreConfig struct {
	Driver  string        `mapstructure:"driver" validate:"oneof=mongo postgres badger"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type BadgerConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

func (a AuthConfig) Enabled() bool { return a.JWTSecret != "" }

type ChatConfig struct {
	StrictAddresses bool `mapstructure:"strict_addresses"`
}

type WebSocketConfig struct {
	MaxMessageSize int64         `mapstructure:"max_message_size" validate:"gt=0"`
	WriteWait      time.Duration `mapstructure:"write_wait" validate:"gt=0"`
	PongWait       time.Duration `mapstructure:"pong_wait" validate:"gt=0"`
	SendBuffer     int           `mapstructure:"send_buffer" validate:"gt=0"`
}

// PingPeriod must stay below PongWait.
func (w WebSocketConfig) PingPeriod() time.Duration {
	return (w.PongWait * 9) / 10
}

var validate = validator.New()

// Load reads .env (if present), then the optional YAML file at path, then the
// environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// ALLOWED_ORIGINS arrives as a comma-separated string.
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		cfg.Server.AllowedOrigins = splitList(raw)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5001)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("store.driver", "mongo")
	v.SetDefault("store.timeout", "30s")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "campaigns")
	v.SetDefault("mongo.timeout", "30s")

	v.SetDefault("badger.path", "./data/badger")
	v.SetDefault("badger.in_memory", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "fundify:chat")

	v.SetDefault("auth.issuer", "fundify-chat")

	v.SetDefault("chat.strict_addresses", false)

	v.SetDefault("ws.max_message_size", 4096)
	v.SetDefault("ws.write_wait", "10s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.send_buffer", 256)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service", "fundify-chat")
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("store.driver", "STORE_DRIVER")
	_ = v.BindEnv("mongo.uri", "MONGO_URI", "MONGODB_URL")
	_ = v.BindEnv("mongo.database", "MONGO_DATABASE")
	_ = v.BindEnv("postgres.dsn", "DB_DSN")
	_ = v.BindEnv("badger.path", "BADGER_PATH")
	_ = v.BindEnv("redis.enabled", "REDIS_ENABLED")
	_ = v.BindEnv("redis.address", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("chat.strict_addresses", "STRICT_ADDRESSES")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.pretty", "LOG_PRETTY")
}

// Validate checks field ranges and that the chosen store driver has what it
// needs to connect.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Store.Driver {
	case "mongo":
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return errors.New("invalid config: mongo.uri and mongo.database are required for the mongo driver")
		}
	case "postgres":
		if c.DB.DSN == "" {
			return errors.New("invalid config: DB_DSN is required for the postgres driver")
		}
	case "badger":
		if !c.Badger.InMemory && c.Badger.Path == "" {
			return errors.New("invalid config: badger.path is required unless badger.in_memory is set")
		}
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("invalid config: REDIS_ADDR is required when redis is enabled")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
