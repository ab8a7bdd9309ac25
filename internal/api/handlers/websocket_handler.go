package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/medterm/backend/pkg/logger"
)

type WebSocketHandler struct {
	metrics  *MetricsHandler
	interval time.Duration
}

// NewWebSocketHandler streams the metrics snapshot to dashboard clients at
// the given interval.
func NewWebSocketHandler(metrics *MetricsHandler, interval time.Duration) *WebSocketHandler {
	if interval == 0 {
		interval = 5 * time.Second
	}
	return &WebSocketHandler{
		metrics:  metrics,
		interval: interval,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("Metrics stream connected")

	defer func() {
		c.Close()
		logger.Info("Metrics stream closed")
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reads only serve to detect the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.send(ctx, c); err != nil {
		logger.Error("Failed to send metrics snapshot", zap.Error(err))
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.send(ctx, c); err != nil {
				logger.Error("Failed to send metrics snapshot", zap.Error(err))
				return
			}
		}
	}
}

func (h *WebSocketHandler) send(ctx context.Context, c *websocket.Conn) error {
	snapshot := h.metrics.Snapshot(ctx)
	snapshot["type"] = "metrics"
	return c.WriteJSON(snapshot)
}
