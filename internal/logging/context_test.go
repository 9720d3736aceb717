package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext_NoLogger(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("Expected no-op logger when none exists in context")
	}

	// Should not panic
	logger.Info("test message")
}

func TestWithLogger_RoundTrip(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))

	FromContext(ctx).Info("hello")

	if logs.Len() != 1 {
		t.Fatalf("Expected 1 log entry, got %d", logs.Len())
	}
}

func TestAddFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))

	ctx = AddFields(ctx, zap.String("key", "value"))
	FromContext(ctx).Info("with fields")

	entry := logs.All()[0]
	if entry.ContextMap()["key"] != "value" {
		t.Errorf("Expected field key=value, got %v", entry.ContextMap())
	}
}

func TestForDatacenter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	ctx, logger := ForDatacenter(context.Background(), zap.New(core), "dc-1")
	logger.Info("direct")
	FromContext(ctx).Info("from context")

	if logs.Len() != 2 {
		t.Fatalf("Expected 2 log entries, got %d", logs.Len())
	}
	for _, entry := range logs.All() {
		if entry.ContextMap()[FieldDatacenterID] != "dc-1" {
			t.Errorf("Expected datacenter_id on %q, got %v", entry.Message, entry.ContextMap())
		}
	}
}
