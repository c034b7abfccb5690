package management

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_BearerAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"total_requests": 3}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithManagementKey("secret"))
	stats, err := c.UsageStats(context.Background())
	if err != nil {
		t.Fatalf("UsageStats() error = %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer secret")
	}
	if stats.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", stats.TotalRequests)
	}
}

func TestClient_NoKeyMeansUnauthenticated(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"requests": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.RequestHistory(context.Background(), 100); err != nil {
		t.Fatalf("RequestHistory() error = %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
}

func TestClient_UsageEventsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("since_seq"); got != "42" {
			t.Errorf("since_seq = %q, want %q", got, "42")
		}
		if got := r.URL.Query().Get("limit"); got != "1000" {
			t.Errorf("limit = %q, want %q", got, "1000")
		}
		w.Write([]byte(`{"events": [{"type": "request", "seq": 43, "request_id": "r1"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	events, err := c.UsageEvents(context.Background(), 42, 1000)
	if err != nil {
		t.Fatalf("UsageEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].Seq != 43 {
		t.Errorf("UsageEvents() = %+v, want one event with seq 43", events)
	}
}

func TestClient_StreamURL(t *testing.T) {
	c := NewClient("http://localhost:8317")

	u, ok := c.StreamURL(0)
	if !ok || u != "http://localhost:8317/v0/management/usage/stream" {
		t.Errorf("StreamURL(0) = %q, %v", u, ok)
	}

	u, ok = c.StreamURL(7)
	if !ok || u != "http://localhost:8317/v0/management/usage/stream?since_seq=7" {
		t.Errorf("StreamURL(7) = %q, %v", u, ok)
	}

	if _, ok := NewClient("").StreamURL(0); ok {
		t.Errorf("StreamURL() ok = true with no base URL, want false")
	}
}

func TestClient_ExportImportRoundTrip(t *testing.T) {
	payload := `{"version": 1, "requests": []}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v0/management/usage/export":
			w.Write([]byte(payload))
		case "/v0/management/usage/import":
			if r.Method != http.MethodPost {
				t.Errorf("import method = %s, want POST", r.Method)
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	data, err := c.ExportUsage(context.Background())
	if err != nil {
		t.Fatalf("ExportUsage() error = %v", err)
	}
	if string(data) != payload {
		t.Errorf("ExportUsage() = %q, want %q", data, payload)
	}
	if err := c.ImportUsage(context.Background(), data); err != nil {
		t.Fatalf("ImportUsage() error = %v", err)
	}
}

func TestClient_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.AuthAccounts(context.Background()); err == nil {
		t.Errorf("AuthAccounts() error = nil, want error on 403")
	}
	if err := c.ImportUsage(context.Background(), []byte("{}")); err == nil {
		t.Errorf("ImportUsage() error = nil, want error on 403")
	}
}
