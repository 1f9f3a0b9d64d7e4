package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServer_Health(t *testing.T) {
	srv := NewServer("127.0.0.1:0", "/metrics", func() any {
		return map[string]int{"sessions": 3}
	}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Status string         `json:"status"`
		Relay  map[string]int `json:"relay"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Relay["sessions"] != 3 {
		t.Errorf("relay.sessions = %d, want 3", body.Relay["sessions"])
	}
}

func TestServer_Metrics(t *testing.T) {
	TotalConnections.Inc()

	srv := NewServer("127.0.0.1:0", "/metrics", nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mist_connections_total") {
		t.Error("metrics output missing mist_connections_total")
	}
}
