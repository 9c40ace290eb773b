package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

// Listener is the single subscriber for agent replies. Every reply published
// to the reply topic flows through HandleReply: terminal replies resolve an
// outstanding request in the correlator, non-terminal informs are logged as
// progress, and everything that cannot be delivered is dropped with a counted
// reason.
type Listener struct {
	correlator *Correlator
	metrics    ports.MetricsCollector
	logger     *zap.Logger
}

// NewListener creates a reply listener bound to the given correlation table.
func NewListener(correlator *Correlator, metrics ports.MetricsCollector, logger *zap.Logger) *Listener {
	return &Listener{
		correlator: correlator,
		metrics:    metrics,
		logger:     logger,
	}
}

// Start subscribes the listener to the reply topic on the bus.
func (l *Listener) Start(ctx context.Context, bus ports.MessageBus) error {
	return bus.Subscribe(ctx, domain.ReplyTopic, l.HandleReply)
}

// HandleReply processes one inbound reply envelope. It always returns nil:
// a bad reply is the sender's problem, not a transport failure, so the bus
// must never redeliver it.
func (l *Listener) HandleReply(ctx context.Context, msg *domain.Message) error {
	if err := msg.Validate(); err != nil {
		l.drop(msg, DropMalformed, err.Error())
		return nil
	}

	if !msg.IsTerminal() {
		// Progress traffic (inform, agree, ...) carries no resolution.
		l.logger.Debug("progress reply",
			zap.String("message_id", msg.ID),
			zap.String("type", string(msg.Type)),
			zap.String("sender", msg.Sender),
			zap.String("conversation_id", msg.Correlation.ConversationID))
		return nil
	}

	resolved, reason := l.correlator.Resolve(msg)
	if !resolved {
		l.drop(msg, reason, "")
		return nil
	}

	l.logger.Debug("reply resolved",
		zap.String("message_id", msg.ID),
		zap.String("in_reply_to", msg.Correlation.InReplyTo),
		zap.String("type", string(msg.Type)),
		zap.String("sender", msg.Sender))
	return nil
}

func (l *Listener) drop(msg *domain.Message, reason, detail string) {
	l.metrics.RecordMessageDropped(reason)
	l.logger.Warn("dropping reply",
		zap.String("message_id", msg.ID),
		zap.String("in_reply_to", msg.Correlation.InReplyTo),
		zap.String("type", string(msg.Type)),
		zap.String("sender", msg.Sender),
		zap.String("reason", reason),
		zap.String("detail", detail))
}
