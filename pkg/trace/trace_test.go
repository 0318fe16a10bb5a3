package trace

import (
	"context"
	"testing"
)

func TestEnsure_KeepsExisting(t *testing.T) {
	ctx := WithTraceID(context.Background(), "abc")
	_, id := Ensure(ctx)
	if id != "abc" {
		t.Fatalf("want abc, got %q", id)
	}
	ctx2, id2 := Ensure(context.Background())
	if id2 == "" {
		t.Fatalf("want minted id")
	}
	if got, ok := FromContext(ctx2); !ok || got != id2 {
		t.Fatalf("context lost id: %q %v", got, ok)
	}
}
