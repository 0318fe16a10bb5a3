package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInc_AppearsInDump(t *testing.T) {
	Reset()
	Inc("relay_forward_total", map[string]string{"result": "ok"})
	Inc("relay_forward_total", map[string]string{"result": "ok"})
	Inc("board_posts_total", nil)
	dump := DumpProm()
	if !strings.Contains(dump, `relay_forward_total{result="ok"} 2`) {
		t.Fatalf("missing counter: %s", dump)
	}
	if !strings.Contains(dump, "board_posts_total 1") {
		t.Fatalf("missing unlabelled counter: %s", dump)
	}
}

func TestGaugeAndSummary(t *testing.T) {
	Reset()
	AddGauge("relay_inflight", nil, 2)
	AddGauge("relay_inflight", nil, -1)
	SetGauge("board_entries", nil, 7)
	ObserveSummary("relay_verify_ms", map[string]string{"kind": "hop"}, 3)
	dump := DumpProm()
	for _, want := range []string{"relay_inflight 1", "board_entries 7", `relay_verify_ms_count{kind="hop"} 1`} {
		if !strings.Contains(dump, want) {
			t.Fatalf("missing %q in %s", want, dump)
		}
	}
}

func TestHandler_ServesText(t *testing.T) {
	Reset()
	Inc("healthz_total", nil)
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "healthz_total 1") {
		t.Fatalf("unexpected response %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCounter_ReadsSeries(t *testing.T) {
	Reset()
	Inc("relay_entries_total", map[string]string{"result": "forwarded"})
	Add("relay_entries_total", map[string]string{"result": "forwarded"}, 2)
	Inc("relay_entries_total", map[string]string{"result": "rejected"})
	if v := Counter("relay_entries_total", map[string]string{"result": "forwarded"}); v != 3 {
		t.Fatalf("forwarded=%v", v)
	}
	if v := Counter("relay_entries_total", map[string]string{"result": "delivered"}); v != 0 {
		t.Fatalf("delivered=%v", v)
	}
	if v := Counter("missing_total", nil); v != 0 {
		t.Fatalf("missing=%v", v)
	}
}
