package memory

import (
	"context"
	"testing"
	"time"

	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

func TestListAgentsCapabilityFilter(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(time.Minute)

	agents := []ports.AgentInfo{
		{ID: "nav", Capabilities: []string{"navigate", "click"}},
		{ID: "msg", Capabilities: []string{"send-message"}},
	}
	for _, a := range agents {
		if err := reg.Register(ctx, a); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	got, err := reg.ListAgents(ctx, "navigate")
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(got) != 1 || got[0].ID != "nav" {
		t.Errorf("got %v, want [nav]", got)
	}

	got, err = reg.ListAgents(ctx, "")
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("unfiltered list has %d agents, want 2", len(got))
	}
}

func TestListAgentsSortedByLoadThenRegistration(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(time.Minute)

	for _, id := range []string{"first", "second", "third"} {
		if err := reg.Register(ctx, ports.AgentInfo{ID: id, Capabilities: []string{"work"}}); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := reg.SetLoad(ctx, "first", 5); err != nil {
		t.Fatalf("SetLoad: %v", err)
	}

	got, err := reg.ListAgents(ctx, "work")
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	want := []string{"second", "third", "first"}
	if len(got) != len(want) {
		t.Fatalf("got %d agents, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestStaleHeartbeatIsOffline(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(10 * time.Millisecond)

	if err := reg.Register(ctx, ports.AgentInfo{ID: "flaky", Capabilities: []string{"work"}}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	online, err := reg.IsOnline(ctx, "flaky")
	if err != nil || !online {
		t.Fatalf("IsOnline = %v, %v; want true", online, err)
	}

	time.Sleep(20 * time.Millisecond)

	online, err = reg.IsOnline(ctx, "flaky")
	if err != nil {
		t.Fatalf("IsOnline: %v", err)
	}
	if online {
		t.Error("agent with stale heartbeat reported online")
	}

	got, err := reg.ListAgents(ctx, "work")
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("stale agent still listed: %v", got)
	}

	if err := reg.Heartbeat(ctx, "flaky"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	online, _ = reg.IsOnline(ctx, "flaky")
	if !online {
		t.Error("agent offline after fresh heartbeat")
	}
}

func TestDeregister(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(time.Minute)

	if err := reg.Register(ctx, ports.AgentInfo{ID: "gone"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Deregister(ctx, "gone"); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	online, err := reg.IsOnline(ctx, "gone")
	if err != nil {
		t.Fatalf("IsOnline: %v", err)
	}
	if online {
		t.Error("deregistered agent reported online")
	}
}
