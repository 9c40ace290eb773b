package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewRequestCarriesCorrelation(t *testing.T) {
	deadline := time.Now().Add(time.Minute)
	req := NewRequest("orch", "agent-1", "job-1", "task-1", "buy milk", json.RawMessage(`{"x":1}`), deadline)

	if req.Type != MessageRequest {
		t.Errorf("type %s, want request", req.Type)
	}
	if req.Correlation.ConversationID != "job-1" {
		t.Errorf("conversationId %q, want job-1", req.Correlation.ConversationID)
	}
	if req.Correlation.InReplyTo != "" {
		t.Errorf("fresh request must not carry inReplyTo, got %q", req.Correlation.InReplyTo)
	}
	if req.Expected == nil || req.Expected.Deadline == nil {
		t.Fatal("request must carry a deadline")
	}
	if err := req.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestReplyLinksToRequest(t *testing.T) {
	req := NewRequest("orch", "agent-1", "job-1", "task-1", "intent", nil, time.Now().Add(time.Second))
	reply := req.Reply(MessageDone, "agent-1", json.RawMessage(`"ok"`))

	if reply.Correlation.InReplyTo != req.ID {
		t.Errorf("inReplyTo %q, want %q", reply.Correlation.InReplyTo, req.ID)
	}
	if reply.Correlation.ConversationID != "job-1" {
		t.Errorf("conversationId %q, want job-1", reply.Correlation.ConversationID)
	}
	if !reply.IsTerminal() {
		t.Error("done reply must be terminal")
	}
	if err := reply.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateRejectsUncorrelatedReplies(t *testing.T) {
	for _, kind := range []MessageType{MessageInform, MessageAgree, MessageRefuse, MessageConfirm, MessageDone, MessageFailure} {
		msg := &Message{ID: "m1", Timestamp: time.Now(), Type: kind, Sender: "agent-1"}
		if err := msg.Validate(); err == nil {
			t.Errorf("%s without inReplyTo passed validation", kind)
		}
	}
}

func TestValidateRejectsUnknownType(t *testing.T) {
	msg := &Message{ID: "m1", Type: MessageType("shout"), Sender: "agent-1"}
	if err := msg.Validate(); err == nil {
		t.Error("unknown message type passed validation")
	}
}

func TestRequestDoesNotNeedInReplyTo(t *testing.T) {
	for _, kind := range []MessageType{MessageRequest, MessagePropose, MessageDiscover, MessageOffer, MessageAssign} {
		msg := &Message{ID: "m1", Type: kind, Sender: "orch"}
		if err := msg.Validate(); err != nil {
			t.Errorf("%s: %v", kind, err)
		}
	}
}

func TestErrorTextPrefersStatus(t *testing.T) {
	msg := &Message{
		Payload: json.RawMessage(`{"raw":"detail"}`),
		Status:  &MessageStatus{Code: "ELEMENT_NOT_FOUND", Message: "selector not found"},
	}
	if got := msg.ErrorText(); got != "selector not found" {
		t.Errorf("ErrorText %q, want status message", got)
	}

	msg.Status = nil
	if got := msg.ErrorText(); got != `{"raw":"detail"}` {
		t.Errorf("ErrorText %q, want raw payload", got)
	}
}

func TestEnvelopeJSONFieldNames(t *testing.T) {
	deadline := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	req := NewRequest("orch", "agent-1", "job-1", "task-1", "intent", json.RawMessage(`{}`), deadline)
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, field := range []string{"id", "ts", "type", "sender", "to", "task", "payload", "correlation", "expected"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("envelope is missing wire field %q", field)
		}
	}
	var corr map[string]string
	if err := json.Unmarshal(raw["correlation"], &corr); err != nil {
		t.Fatalf("correlation block: %v", err)
	}
	if corr["conversationId"] != "job-1" {
		t.Errorf("correlation.conversationId %q, want job-1", corr["conversationId"])
	}
}
