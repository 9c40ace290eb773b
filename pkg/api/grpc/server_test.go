package grpc

import (
	"context"
	"testing"

	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthServiceRegistered(t *testing.T) {
	s, err := NewServer(&Config{Port: 0, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer s.listener.Close()

	if _, ok := s.server.GetServiceInfo()["grpc.health.v1.Health"]; !ok {
		t.Fatal("health service not registered")
	}

	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %s, want SERVING", resp.Status)
	}
}

func TestShutdownMarksNotServing(t *testing.T) {
	s, err := NewServer(&Config{Port: 0, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer s.listener.Close()

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %s, want NOT_SERVING", resp.Status)
	}
}
