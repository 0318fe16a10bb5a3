//go:build !p2p

package p2p

import (
	"context"
	"testing"
)

func TestBuildTransport_NoopWithoutTag(t *testing.T) {
	tr, err := BuildTransport(NetConfig{Enable: true})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, ok := tr.(*NoopTransport); !ok {
		t.Fatalf("want NoopTransport, got %T", tr)
	}
	svc := NewNetService(tr)
	if svc.Name() != "p2p-transport" || svc.Start(context.Background()) != nil {
		t.Fatalf("service wrapper broken")
	}
}
