// Package config loads worker and producer settings from the environment.
package config

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

var (
	ErrParsingConfig   = errors.New("failed to parse configuration")
	ErrParsingRedisURL = errors.New("failed to parse redis connection string")
	ErrRedisNotReady   = errors.New("redis did not become ready within the given time period")
)

// Config is the process configuration shared by the example binaries.
type Config struct {
	RedisURL            string        `env:"TASKHIVE_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisRetryAttempts  int           `env:"TASKHIVE_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RedisRetryInterval  time.Duration `env:"TASKHIVE_REDIS_RETRY_INTERVAL" envDefault:"2s"`
	RedisConnectTimeout time.Duration `env:"TASKHIVE_REDIS_CONNECT_TIMEOUT" envDefault:"30s"`

	Namespace         string        `env:"TASKHIVE_NAMESPACE" envDefault:"default"`
	Profiles          []string      `env:"TASKHIVE_PROFILES" envSeparator:","`
	Concurrency       int           `env:"TASKHIVE_CONCURRENCY" envDefault:"4"`
	MaxRetries        int           `env:"TASKHIVE_MAX_RETRIES" envDefault:"3"`
	RetryDelay        time.Duration `env:"TASKHIVE_RETRY_DELAY" envDefault:"10s"`
	IdleInterval      time.Duration `env:"TASKHIVE_IDLE_INTERVAL" envDefault:"1s"`
	BusyPause         time.Duration `env:"TASKHIVE_BUSY_PAUSE" envDefault:"10ms"`
	RecoverAfter      time.Duration `env:"TASKHIVE_RECOVER_AFTER" envDefault:"0s"`
	FinishedLogLimit  int64         `env:"TASKHIVE_FINISHED_LOG_LIMIT" envDefault:"10000"`
	LogLevel          string        `env:"TASKHIVE_LOG_LEVEL" envDefault:"info"`
	TelemetryStdout   bool          `env:"TASKHIVE_OTEL_STDOUT" envDefault:"false"`
	MaintenanceTicker time.Duration `env:"TASKHIVE_MAINTENANCE_INTERVAL" envDefault:"1s"`
}

// Load reads the given .env files (".env" when none is given) into the environment and
// parses Config from it. Missing .env files are ignored; variables already set win.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Join(ErrParsingConfig, err)
		}
	}
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return c, nil
}

// Connect dials Redis and pings it until it answers, the attempts run out or the
// connect timeout expires.
func Connect(ctx context.Context, c Config) (*redis.Client, error) {
	if c.RedisConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.RedisConnectTimeout)
		defer cancel()
	}
	opt, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, errors.Join(ErrParsingRedisURL, err)
	}

	attempts := max(c.RedisRetryAttempts, 1)
	var lastErr error
	for i := range attempts {
		rdb := redis.NewClient(opt)
		if lastErr = rdb.Ping(ctx).Err(); lastErr == nil {
			return rdb, nil
		}
		_ = rdb.Close()
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(c.RedisRetryInterval):
		}
	}
	return nil, errors.Join(ErrRedisNotReady, lastErr)
}
