package presence

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/RadEZorack/augmego-core/pkg/config"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Mirror publishes which users are online on this node so that other services can see
// them. The coordinator never reads it back.
type Mirror interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
	// Refresh renews the TTL of every listed user.
	Refresh(ctx context.Context, userIDs []string) error
	Close() error
}

// NopMirror is used when no Redis is configured.
type NopMirror struct{}

func (NopMirror) Online(context.Context, string) error { return nil }
func (NopMirror) Offline(context.Context, string) error { return nil }
func (NopMirror) Refresh(context.Context, []string) error { return nil }
func (NopMirror) Close() error { return nil }

// key: augmego:presence:<userId>, value: node id
func presenceKey(userID string) string { return "augmego:presence:" + userID }

type RedisMirror struct {
	client *redis.Client
	nodeID string
	ttl    time.Duration
	logger *slog.Logger
}

// NewMirror returns a RedisMirror when cfg.Addr is set and a NopMirror otherwise.
func NewMirror(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (Mirror, error) {
	logger = logger.With(slog.String("component", "presence_mirror"))
	if cfg.Addr == "" {
		logger.Info("Redis presence mirror disabled")
		return NopMirror{}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", cfg.Addr)
	}

	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID, _ = os.Hostname()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	logger.Info("Redis presence mirror enabled", slog.String("addr", cfg.Addr), slog.String("nodeID", nodeID), slog.Duration("ttl", ttl))
	return &RedisMirror{client: client, nodeID: nodeID, ttl: ttl, logger: logger}, nil
}

func (m *RedisMirror) Online(ctx context.Context, userID string) error {
	return errors.Wrap(m.client.Set(ctx, presenceKey(userID), m.nodeID, m.ttl).Err(), "presence online")
}

func (m *RedisMirror) Offline(ctx context.Context, userID string) error {
	return errors.Wrap(m.client.Del(ctx, presenceKey(userID)).Err(), "presence offline")
}

func (m *RedisMirror) Refresh(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := m.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range userIDs {
			p.Set(ctx, presenceKey(id), m.nodeID, m.ttl)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "presence refresh")
	}
	m.logger.Debug("Presence refreshed", slog.Int("users", len(userIDs)))
	return nil
}

func (m *RedisMirror) Close() error { return m.client.Close() }
