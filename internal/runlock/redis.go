package runlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisPrefix = "feedsync:lock:"
	DefaultRedisTTL    = 2 * time.Minute
)

var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisConfig configures the Redis connection and lock keys.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr" toml:"addr"`
	Password string        `mapstructure:"password" yaml:"password" toml:"password"`
	DB       int           `mapstructure:"db" yaml:"db" toml:"db"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix" toml:"prefix"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl" toml:"ttl"`
}

// Redis is a Locker shared by every process using the same Redis.
// Held locks are extended in the background until released.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *log.Logger
}

// NewRedis connects to Redis and verifies connectivity.
func NewRedis(cfg RedisConfig, logger *log.Logger) (*Redis, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultRedisTTL
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[runlock] ", log.LstdFlags)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return &Redis{client: client, prefix: cfg.Prefix, ttl: cfg.TTL, logger: logger}, nil
}

// Close closes the underlying Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Acquire(ctx context.Context, name string) (func(), error) {
	key := r.prefix + name
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
				r.logger.Printf("Failed to release lock %s: %v", name, err)
			}
		})
	}, nil
}

// keepAlive extends the lock every third of its TTL while it is held.
func (r *Redis) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := extendScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				r.logger.Printf("Failed to extend lock %s: %v", key, err)
			} else if n == 0 {
				r.logger.Printf("Lock %s was lost", key)
				return
			}
		}
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
