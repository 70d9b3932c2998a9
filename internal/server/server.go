package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/RadEZorack/augmego-core/internal/auth"
	"github.com/RadEZorack/augmego-core/internal/engine"
	"github.com/RadEZorack/augmego-core/internal/presence"
	"github.com/RadEZorack/augmego-core/internal/router"
	"github.com/RadEZorack/augmego-core/internal/server/middleware"
	"github.com/RadEZorack/augmego-core/internal/store"
	"github.com/RadEZorack/augmego-core/pkg/config"
	"github.com/RadEZorack/augmego-core/pkg/transport"
	"github.com/coder/websocket"
	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

var errShutdown = errors.New("graceful shutdown")

type App struct {
	logger      *slog.Logger
	engine      *engine.Engine
	eventRouter *router.EventRouter
	store       store.Store
	mirror      presence.Mirror
	scheduler   *gocron.Scheduler
	wg          sync.WaitGroup
	handler     http.Handler
	http        *http.Server
	config      *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, st store.Store, mirror presence.Mirror, resolver auth.Resolver) *App {
	eng := engine.New(logger, engine.Options{
		Store:  st,
		Mirror: mirror,
		Party:  cfg.Party,
		Chat:   cfg.Chat,
	})
	registry := eng.Registry()

	app := &App{
		logger:      logger,
		engine:      eng,
		eventRouter: router.NewEventRouter(logger, registry, eng),
		store:       st,
		mirror:      mirror,
		config:      cfg,
		ctx:         rootCtx,
	}
	app.scheduler = newScheduler(logger, eng, cfg)

	connCycler := func(userID string) {
		oldest, found := registry.FindOldestUserConnection(userID)
		if found {
			logger.Info("Cycling connection: closing oldest", slog.String("userID", userID), slog.String("connID", oldest.ID.String()))
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	r := mux.NewRouter()
	r.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewAuthMiddleware(logger, resolver),
			middleware.NewConnectionLimiter(
				logger,
				registry.GetUserConnectionCount,
				connCycler,
				cfg.Server.ConnectionLimit,
			),
		),
	).Methods(http.MethodGet)
	r.HandleFunc("/healthz", app.healthHandler).Methods(http.MethodGet)
	app.handler = r

	app.http = &http.Server{Addr: cfg.Server.Address, Handler: r, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}
	return app
}

// Handler exposes the routes without a listener, for tests.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Engine() *engine.Engine { return a.engine }

func (a *App) Run() error {
	a.scheduler.StartAsync()
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID()),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: a.config.Server.AllowedOrigins,
	})
	if err != nil {
		connLogger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		nil,
		nil,
		connLogger,
	)
	// set before Connect: a close during registration must still deregister.
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("Deregistering connection due to closure", slog.String("connID", id.String()))
		a.engine.Disconnect(context.Background(), id)
	})
	conn.SetOnMessageHandler(a.eventRouter.HandleMessage)
	if _, err := a.engine.Connect(r.Context(), conn, reqMeta.IP, reqMeta.User); err != nil {
		connLogger.Error("Failed to register connection", slog.Any("error", err))
		conn.Close(err)
		return
	}
	select {
	case <-conn.Done():
		// closed before registration finished
		a.engine.Disconnect(context.Background(), conn.ID())
		return
	default:
	}

	connLogger.Info("Connection fully established", slog.String("connID", conn.ID().String()))
	conn.Run()
	<-conn.Done()
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": a.engine.Stats().Connections,
	})
}

// graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	a.scheduler.Stop()

	timeout := a.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// hijacked WebSocket connections are not closed by http.Server.Shutdown.
	a.logger.Info("Closing all active connections...")
	a.engine.CloseAll(errShutdown)

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()

	if err := a.mirror.Close(); err != nil {
		a.logger.Warn("Failed to close presence mirror", slog.Any("error", err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store", slog.Any("error", err))
	}
	a.logger.Info("Server shut down gracefully.")
	return nil
}
