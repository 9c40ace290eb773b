package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for MVP
	},
}

// Handler handles WebSocket connections streaming job lifecycle events
type Handler struct {
	bus    ports.MessageBus
	logger *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(bus ports.MessageBus, logger *zap.Logger) *Handler {
	return &Handler{
		bus:    bus,
		logger: logger,
	}
}

// HandleJobStream streams the lifecycle events of one job. Events published
// on the job events topic are filtered by conversation id, which equals the
// job id for every message in a job's conversation.
func (h *Handler) HandleJobStream(c *gin.Context) {
	jobID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("job_id", jobID),
		zap.String("client", c.ClientIP()))

	eventChan := make(chan *domain.Message, 10)
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go h.subscribeToEvents(ctx, eventChan)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-eventChan:
			if msg == nil {
				continue
			}

			if msg.Correlation.ConversationID != jobID {
				continue
			}

			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}

			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Error("failed to write message", zap.Error(err))
				return
			}

			// Terminal event closes the stream.
			if msg.IsTerminal() {
				return
			}
		}
	}
}

// subscribeToEvents subscribes to the job events topic
func (h *Handler) subscribeToEvents(ctx context.Context, ch chan<- *domain.Message) {
	handler := func(ctx context.Context, msg *domain.Message) error {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Channel full, skip event
			h.logger.Warn("event channel full, dropping event",
				zap.String("message_id", msg.ID),
				zap.String("type", string(msg.Type)))
		}
		return nil
	}

	if err := h.bus.Subscribe(ctx, domain.JobEventsTopic, handler); err != nil {
		h.logger.Error("failed to subscribe to job events",
			zap.String("topic", domain.JobEventsTopic),
			zap.Error(err))
	}
}
