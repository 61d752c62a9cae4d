package services_test

import (
	"context"
	"testing"

	"datahandler/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithCycleID(ctx, "cycle-1")
	ctx = services.WithPhase(ctx, "fetch")
	ctx = services.WithDriver(ctx, "modis")
	ctx = services.WithJobID(ctx, 42)

	if id, ok := services.CycleIDFromContext(ctx); !ok || id != "cycle-1" {
		t.Fatalf("unexpected cycle id: %v %v", id, ok)
	}
	if phase, ok := services.PhaseFromContext(ctx); !ok || phase != "fetch" {
		t.Fatalf("unexpected phase: %v %v", phase, ok)
	}
	if driver, ok := services.DriverFromContext(ctx); !ok || driver != "modis" {
		t.Fatalf("unexpected driver: %v %v", driver, ok)
	}
	if id, ok := services.JobIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
}

func TestPhaseBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPhase(ctx, "")
	if _, ok := services.PhaseFromContext(ctx); ok {
		t.Fatal("expected no phase value")
	}
}
