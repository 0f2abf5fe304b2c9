package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/danghamo/deskd/internal/api/jsonrpcx"
	"github.com/danghamo/deskd/internal/events"
	"github.com/danghamo/deskd/pkg/logger"
)

// SSEBroadcaster interface for broadcasting SSE messages
type SSEBroadcaster interface {
	BroadcastToAll(notification jsonrpcx.Notification)
}

// DeskEventHandler converts desk domain events into SSE notifications
type DeskEventHandler struct {
	broadcaster SSEBroadcaster
	logger      *logger.Logger
}

// NewDeskEventHandler creates a new desk event handler
func NewDeskEventHandler(broadcaster SSEBroadcaster, log *logger.Logger) *DeskEventHandler {
	return &DeskEventHandler{
		broadcaster: broadcaster,
		logger:      log.WithComponent("desk-event-handler"),
	}
}

// HandlePositionChangedEvent broadcasts position changes to SSE clients
func (h *DeskEventHandler) HandlePositionChangedEvent(ctx context.Context, event *events.PositionChangedEvent) error {
	h.logger.Debug("Handling position changed event",
		zap.String("position", event.Position),
		zap.String("source", event.Source))

	h.broadcaster.BroadcastToAll(jsonrpcx.Notification{
		Jsonrpc: "2.0",
		Method:  "desk.position.changed",
		Params: map[string]interface{}{
			"position":  event.Position,
			"previous":  event.Previous,
			"source":    event.Source,
			"nag_in":    event.NagIn,
			"timestamp": event.Timestamp.Format(time.RFC3339),
		},
	})

	return nil
}

// HandleNagFiredEvent broadcasts dwell expiries to SSE clients
func (h *DeskEventHandler) HandleNagFiredEvent(ctx context.Context, event *events.NagFiredEvent) error {
	h.logger.Debug("Handling nag fired event",
		zap.String("position", event.Position),
		zap.String("next", event.Next))

	h.broadcaster.BroadcastToAll(jsonrpcx.Notification{
		Jsonrpc: "2.0",
		Method:  "desk.nag.fired",
		Params: map[string]interface{}{
			"position":  event.Position,
			"next":      event.Next,
			"timestamp": event.Timestamp.Format(time.RFC3339),
		},
	})

	return nil
}
