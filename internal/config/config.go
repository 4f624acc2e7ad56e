package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

type Config struct {
	LogLevel string  `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort string  `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	Storage  string  `yaml:"storage" env:"STORAGE" env-default:"memory"`
	Redis    Redis   `yaml:"redis"`
	Session  Session `yaml:"session"`
	Client   Client  `yaml:"client"`
}

type Redis struct {
	Host string        `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string        `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	TTL  time.Duration `yaml:"ttl" env:"REDIS_TTL" env-default:"24h"`
}

type Session struct {
	CookieName string        `yaml:"cookie-name" env:"SESSION_COOKIE_NAME" env-default:"session_id"`
	MaxAge     time.Duration `yaml:"max-age" env:"SESSION_MAX_AGE" env-default:"24h"`
}

type Client struct {
	ServerURL      string        `yaml:"server-url" env:"CLIENT_SERVER_URL" env-default:"http://localhost:9090"`
	RequestTimeout time.Duration `yaml:"request-timeout" env:"CLIENT_REQUEST_TIMEOUT" env-default:"5s"`
	ResyncRetries  uint64        `yaml:"resync-retries" env:"CLIENT_RESYNC_RETRIES" env-default:"5"`
	LogFile        string        `yaml:"log-file" env:"CLIENT_LOG_FILE" env-default:"tictactoe-client.log"`
}

// MustLoad - load all configurations from an optional .env file, the config file at path
// (if it exists) and the environment.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := &Config{}

	if _, err := os.Stat(path); err != nil {
		if err = cleanenv.ReadEnv(config); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}

		return config, config.validate()
	}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return config, config.validate()
}

func (that *Config) validate() error {
	switch that.Storage {
	case StorageMemory, StorageRedis:
		return nil
	default:
		return fmt.Errorf("unknown storage %q", that.Storage)
	}
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
