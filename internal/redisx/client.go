package redisx

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures the Redis client.
type Config struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	TLSEnabled  bool
	TLSInsecure bool
	// PingTimeout bounds the startup connectivity check. Zero means 5s.
	PingTimeout time.Duration
}

// NewClient returns a configured Redis client or nil when no address is provided.
// Addr may also be a redis:// or rediss:// URL.
func NewClient(cfg Config) (redis.UniversalClient, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func options(cfg Config) (*redis.Options, error) {
	var opts *redis.Options
	if isURL(cfg.Addr) {
		parsed, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Addr, DB: cfg.DB}
	}
	if cfg.Username != "" {
		opts.Username = cfg.Username
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLSEnabled && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{}
	}
	if opts.TLSConfig != nil && cfg.TLSInsecure {
		opts.TLSConfig.InsecureSkipVerify = true // #nosec G402 – intentional opt-in
	}
	return opts, nil
}

func isURL(addr string) bool {
	return strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://")
}
