package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType is one of the closed set of protocol message kinds exchanged
// between the orchestrator, agents, and the registry.
type MessageType string

const (
	MessageRequest  MessageType = "request"  // orchestrator -> agent: perform a task
	MessageInform   MessageType = "inform"   // agent -> orchestrator: non-terminal progress
	MessagePropose  MessageType = "propose"  // negotiation before committing (optional)
	MessageAgree    MessageType = "agree"    // negotiation: accept
	MessageRefuse   MessageType = "refuse"   // negotiation: decline
	MessageConfirm  MessageType = "confirm"  // acknowledge acceptance of a proposal
	MessageDone     MessageType = "done"     // agent -> orchestrator: task succeeded
	MessageFailure  MessageType = "failure"  // agent -> orchestrator: task terminally failed
	MessageDiscover MessageType = "discover" // capability lookup
	MessageOffer    MessageType = "offer"    // capability offer
	MessageAssign   MessageType = "assign"   // task assignment handshake
)

// IsValidMessageType checks membership in the closed kind set.
func IsValidMessageType(t MessageType) bool {
	switch t {
	case MessageRequest, MessageInform, MessagePropose, MessageAgree, MessageRefuse,
		MessageConfirm, MessageDone, MessageFailure, MessageDiscover, MessageOffer, MessageAssign:
		return true
	default:
		return false
	}
}

// replyKinds are message types that must correlate to an outstanding
// request/assign via correlation.inReplyTo.
func (t MessageType) isReplyKind() bool {
	switch t {
	case MessageInform, MessageAgree, MessageRefuse, MessageConfirm, MessageDone, MessageFailure:
		return true
	default:
		return false
	}
}

// Correlation links a message to its conversation (the owning job) and, for
// replies, to the originating request.
type Correlation struct {
	ConversationID string `json:"conversationId,omitempty"`
	InReplyTo      string `json:"inReplyTo,omitempty"`
}

// Expectation is an optional deadline and response-format hint attached to a
// request.
type Expectation struct {
	Deadline *time.Time `json:"deadline,omitempty"`
	Format   string     `json:"format,omitempty"`
}

// MessageStatus carries a machine-readable outcome code on terminal replies.
type MessageStatus struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Message is the versioned wire envelope of the agent communication protocol.
// It is transport-agnostic: REST, gRPC, or a message bus all carry the same
// JSON object. Payload and Context are opaque to the core.
type Message struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"ts"`
	Type        MessageType     `json:"type"`
	Sender      string          `json:"sender"`
	Recipients  []string        `json:"to,omitempty"`
	Intent      string          `json:"intent,omitempty"`
	Task        string          `json:"task,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Context     json.RawMessage `json:"context,omitempty"`
	Correlation Correlation     `json:"correlation"`
	Expected    *Expectation    `json:"expected,omitempty"`
	Status      *MessageStatus  `json:"status,omitempty"`
}

// NewRequest builds a task request addressed to a single agent, correlated to
// the owning job via conversationId, with an explicit reply deadline.
func NewRequest(sender, agentID, jobID, taskID, intent string, payload json.RawMessage, deadline time.Time) *Message {
	return &Message{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		Type:       MessageRequest,
		Sender:     sender,
		Recipients: []string{agentID},
		Intent:     intent,
		Task:       taskID,
		Payload:    payload,
		Correlation: Correlation{
			ConversationID: jobID,
		},
		Expected: &Expectation{
			Deadline: &deadline,
			Format:   "json",
		},
	}
}

// Reply builds a response to m, carrying inReplyTo = m.ID and the same
// conversation id.
func (m *Message) Reply(t MessageType, sender string, payload json.RawMessage) *Message {
	return &Message{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		Type:       t,
		Sender:     sender,
		Recipients: []string{m.Sender},
		Intent:     m.Intent,
		Task:       m.Task,
		Payload:    payload,
		Correlation: Correlation{
			ConversationID: m.Correlation.ConversationID,
			InReplyTo:      m.ID,
		},
	}
}

// IsTerminal reports whether the message closes a request: a request has
// exactly one terminal reply, done or failure.
func (m *Message) IsTerminal() bool {
	return m.Type == MessageDone || m.Type == MessageFailure
}

// Validate checks the envelope invariants. Messages that fail validation are
// dropped by the listener, never processed.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message id is required")
	}
	if !IsValidMessageType(m.Type) {
		return fmt.Errorf("unknown message type: %q", m.Type)
	}
	if m.Sender == "" {
		return fmt.Errorf("message sender is required")
	}
	if m.Type.isReplyKind() && m.Correlation.InReplyTo == "" {
		return fmt.Errorf("%s message requires correlation.inReplyTo", m.Type)
	}
	return nil
}

// ErrorText extracts the human-readable failure detail from a failure reply,
// preferring the status block over the raw payload.
func (m *Message) ErrorText() string {
	if m.Status != nil && m.Status.Message != "" {
		return m.Status.Message
	}
	if len(m.Payload) > 0 {
		return string(m.Payload)
	}
	return "task failed"
}

// Topic names used by the orchestrator and agents on the message bus. These
// are part of the deployment contract: agents consume their own request topic
// and publish replies to ReplyTopic.
const (
	// ReplyTopic carries agent replies back to the orchestrator.
	ReplyTopic = "orchestrator.replies"

	// JobEventsTopic carries job lifecycle announcements (started, done,
	// failed) for observers such as the WebSocket stream.
	JobEventsTopic = "jobs.events"
)

// AgentTopic returns the request topic consumed by one agent.
func AgentTopic(agentID string) string {
	return "agents." + agentID
}
