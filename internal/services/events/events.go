// Package events publishes episode status changes so clients can follow a
// run without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/killallgit/audiolingu-api/pkg/config"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

type Type string

const (
	TypeRunStarted    Type = "run_started"
	TypeStepCompleted Type = "step_completed"
	TypeStepSkipped   Type = "step_skipped"
	TypeEpisodeReady  Type = "episode_ready"
	TypeEpisodeFailed Type = "episode_failed"
)

// Event is one status change of a generation run
type Event struct {
	Type      Type      `json:"type"`
	JobID     uint      `json:"job_id,omitempty"`
	UserID    uint      `json:"user_id"`
	EpisodeID uint      `json:"episode_id,omitempty"`
	Step      string    `json:"step,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, ev Event) error { return nil }

// RedisPublisher publishes events as JSON on a Redis channel
type RedisPublisher struct {
	rdb     goredis.UniversalClient
	channel string
	log     *logger.Logger
}

// NewRedisPublisher connects to Redis and verifies the connection
func NewRedisPublisher(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*RedisPublisher, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisPublisherWithClient(rdb, cfg.Channel, log), nil
}

// NewRedisPublisherWithClient wraps an existing client
func NewRedisPublisherWithClient(rdb goredis.UniversalClient, channel string, log *logger.Logger) *RedisPublisher {
	if channel == "" {
		channel = "episodes.events"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisPublisher{rdb: rdb, channel: channel, log: log.With("service", "redis-events")}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.channel, raw).Err(); err != nil {
		return fmt.Errorf("publishing %s event: %w", ev.Type, err)
	}
	return nil
}

// Client exposes the underlying Redis client so other components can share it
func (p *RedisPublisher) Client() goredis.UniversalClient {
	return p.rdb
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// New returns a Redis publisher when an address is configured and a no-op
// publisher otherwise
func New(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (Publisher, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return NopPublisher{}, nil
	}
	return NewRedisPublisher(ctx, cfg, log)
}
