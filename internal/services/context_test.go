package services_test

import (
	"context"
	"testing"

	"tunedrop/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithDeviceID(ctx, "dev-42")
	ctx = services.WithStage(ctx, "transfer")
	ctx = services.WithFile(ctx, "/music/a.mp3")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if id, ok := services.DeviceIDFromContext(ctx); !ok || id != "dev-42" {
		t.Fatalf("unexpected device id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "transfer" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if path, ok := services.FileFromContext(ctx); !ok || path != "/music/a.mp3" {
		t.Fatalf("unexpected file: %v %v", path, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
