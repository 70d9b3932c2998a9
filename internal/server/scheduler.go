package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/RadEZorack/augmego-core/internal/engine"
	"github.com/RadEZorack/augmego-core/pkg/config"
	"github.com/go-co-op/gocron"
)

const statsInterval = time.Minute

// newScheduler registers the housekeeping jobs. Jobs run once StartAsync is called.
func newScheduler(logger *slog.Logger, eng *engine.Engine, cfg *config.Config) *gocron.Scheduler {
	logger = logger.With(slog.String("component", "scheduler"))
	s := gocron.NewScheduler(time.Local)
	s.SingletonModeAll()

	if _, err := s.Every(cfg.Party.SweepInterval).Do(eng.Sweep); err != nil {
		logger.Error("Failed to schedule invite sweep", slog.Any("error", err))
	}

	if cfg.Presence.Redis.Addr != "" && cfg.Presence.Redis.TTL > 0 {
		_, err := s.Every(cfg.Presence.Redis.TTL / 2).Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := eng.RefreshPresence(ctx); err != nil {
				logger.Warn("Presence refresh failed", slog.Any("error", err))
			}
		})
		if err != nil {
			logger.Error("Failed to schedule presence refresh", slog.Any("error", err))
		}
	}

	if _, err := s.Every(statsInterval).Do(func() {
		st := eng.Stats()
		logger.Info("World stats",
			slog.Int("connections", st.Connections),
			slog.Int("onlineUsers", st.OnlineUsers),
			slog.Int("players", st.Players),
			slog.Int("pendingInvites", st.PendingInvites),
			slog.Int("partyChatLogs", st.PartyChatLogs),
		)
	}); err != nil {
		logger.Error("Failed to schedule stats log", slog.Any("error", err))
	}
	return s
}
