package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInfoJ_RecordsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := Replace(zap.New(core))
	defer restore()

	InfoJ("relay", map[string]any{"op": "forward", "result": "ok"})
	ErrorJ("relay", map[string]any{"op": "verify", "result": "error"})

	entries := logs.FilterMessage("relay").All()
	if len(entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(entries))
	}
	f, ok := entries[0].ContextMap()["fields"].(map[string]any)
	if !ok || f["op"] != "forward" {
		t.Fatalf("unexpected fields: %#v", entries[0].ContextMap())
	}
	if entries[1].Level != zap.ErrorLevel {
		t.Fatalf("want error level, got %v", entries[1].Level)
	}
}

func TestSetLevel_RejectsUnknown(t *testing.T) {
	if err := SetLevel("loud"); err == nil {
		t.Fatalf("want error for unknown level")
	}
	if err := SetLevel("warn"); err != nil {
		t.Fatalf("warn: %v", err)
	}
	defer func() { _ = SetLevel("info") }()
	if err := Configure("xml", ""); err == nil {
		t.Fatalf("want error for unknown format")
	}
}
