package orchestrator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestServerStartAcceptsValidSubmission(t *testing.T) {
	f, _ := newTestFacade(10)
	f.Register("cash_application", instantCompleteFactory)
	srv := httptest.NewServer(NewServer(f))
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{
		"name": "cash_application", "id": "pay-1", "value_date": time.Now().Format(time.RFC3339),
	})
	res, err := http.Post(srv.URL+"/runs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /runs: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("want 202 accepted, got %d", res.StatusCode)
	}

	var decoded map[string]string
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if decoded["run_id"] == "" {
		t.Fatal("expected a non-empty run_id")
	}
}

func TestServerStartRejectsMissingRequiredFields(t *testing.T) {
	f, _ := newTestFacade(10)
	f.Register("cash_application", instantCompleteFactory)
	srv := httptest.NewServer(NewServer(f))
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"name": "cash_application"})
	res, err := http.Post(srv.URL+"/runs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /runs: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 for missing id/value_date, got %d", res.StatusCode)
	}
}

func TestServerStatusReturnsNotFoundForUnknownRun(t *testing.T) {
	f, _ := newTestFacade(10)
	srv := httptest.NewServer(NewServer(f))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/runs/does-not-exist")
	if err != nil {
		t.Fatalf("GET /runs/{id}: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %d", res.StatusCode)
	}
}

func TestServerStatsReturnsOK(t *testing.T) {
	f, _ := newTestFacade(10)
	srv := httptest.NewServer(NewServer(f))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", res.StatusCode)
	}
}
