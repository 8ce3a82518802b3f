package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTLSConfig enables TLS for the shared signin throttle. CAFile points at
// a PEM bundle used to verify the Redis endpoint.
type RedisTLSConfig struct {
	CAFile     string
	ServerName string
}

type redisStoreConfig struct {
	Addr     string
	Password string
	TLS      RedisTLSConfig
	Timeout  time.Duration
}

// redisStore counts signin attempts in Redis so the throttle holds across
// replicas of the API server.
type redisStore struct {
	client *redis.Client
}

func newRedisStore(cfg redisStoreConfig) (*redisStore, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if cfg.TLS.CAFile != "" {
		pem, err := os.ReadFile(cfg.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read redis CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("redis CA file %s contains no certificates", cfg.TLS.CAFile)
		}
		opts.TLSConfig = &tls.Config{
			RootCAs:    pool,
			ServerName: cfg.TLS.ServerName,
			MinVersion: tls.VersionTLS12,
		}
	}
	return &redisStore{client: redis.NewClient(opts)}, nil
}

func (s *redisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if window < time.Second {
			window = time.Second
		}
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= int64(limit) {
		return true, 0, nil
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl < 0 {
		return false, window, nil
	}
	return false, ttl, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
