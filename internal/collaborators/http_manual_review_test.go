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

func TestHTTPManualReviewCreateDecodesTicket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Reason != "no_invoice_ids" {
			t.Fatalf("unexpected reason %q", body.Reason)
		}
		json.NewEncoder(w).Encode(ReviewTicket{ReviewID: "rev-1", AssignedTo: "ar-team"})
	}))
	defer srv.Close()

	mr := NewHTTPManualReview(srv.URL, zap.NewNop())
	ticket, err := mr.Create(context.Background(), domain.Payment{ID: "pay-1"}, "no_invoice_ids", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ticket.ReviewID != "rev-1" {
		t.Fatalf("unexpected ticket: %+v", ticket)
	}
}
