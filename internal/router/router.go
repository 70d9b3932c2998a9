package router

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type EventRouter struct {
	logger   *slog.Logger
	registry state.Registry
	handler  Handler
}

func NewEventRouter(logger *slog.Logger, registry state.Registry, handler Handler) *EventRouter {
	return &EventRouter{
		logger:   logger.With(slog.String("component", "event_router")),
		registry: registry,
		handler:  handler,
	}
}

// HandleMessage is the transport's message callback. Every failure, including a panic in
// a handler, is answered with an error event; the connection stays open.
func (r *EventRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	conn, ok := r.registry.GetConnection(connID)
	if !ok {
		r.logger.Warn("Message from unregistered connection", slog.String("connID", connID.String()))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Handler panicked",
				slog.String("connID", connID.String()),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			r.handler.SendError(conn, state.Reject(state.CodeInternal, "internal error"))
		}
	}()

	kind, err := r.dispatch(ctx, conn, msg)
	if err == nil {
		return
	}
	var rej *state.Rejection
	if errors.As(err, &rej) {
		r.logger.Warn("Message rejected", slog.String("type", kind), slog.String("connID", connID.String()), slog.String("code", string(rej.Code)))
		r.handler.SendError(conn, rej)
		return
	}
	r.logger.Error("Message handler failed", slog.String("type", kind), slog.String("connID", connID.String()), slog.Any("error", err))
	r.handler.SendError(conn, state.Reject(state.CodeInternal, "internal error"))
}
