package collaborators

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/zoobzio/cashapp/internal/domain"
)

func TestHTTPERPFetchInvoicesDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/invoices/lookup" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			IDs           []string `json:"ids"`
			CorrelationID string   `json:"correlation_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.IDs) != 2 || body.CorrelationID != "corr-1" {
			t.Fatalf("unexpected request body: %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"invoices": []domain.Invoice{{ID: "inv-1"}, {ID: "inv-2"}},
		})
	}))
	defer srv.Close()

	erp := NewHTTPERP(srv.URL, zap.NewNop())
	invoices, err := erp.FetchInvoices(context.Background(), []string{"inv-1", "inv-2"}, "corr-1")
	if err != nil {
		t.Fatalf("FetchInvoices: %v", err)
	}
	if len(invoices) != 2 || invoices[0].ID != "inv-1" {
		t.Fatalf("unexpected invoices: %+v", invoices)
	}
}

func TestHTTPERPPostCashApplicationPropagatesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	erp := NewHTTPERP(srv.URL, zap.NewNop())
	_, err := erp.PostCashApplication(context.Background(), domain.Match{}, domain.Payment{})
	if err == nil {
		t.Fatal("expected an error on a 500 response")
	}
}
