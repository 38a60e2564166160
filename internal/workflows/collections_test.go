package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/zoobzio/cashapp/internal/collaborators"
	"github.com/zoobzio/cashapp/internal/domain"
	"github.com/zoobzio/cashapp/internal/engine"
)

type failingNotify struct{ failFor map[string]bool }

func (f failingNotify) Send(_ context.Context, _ collaborators.NotifyEventKind, recipients []string, payload map[string]string) (collaborators.SendResult, error) {
	if f.failFor[payload["invoice_id"]] {
		return collaborators.SendResult{}, errors.New("notify unreachable")
	}
	return collaborators.SendResult{Sent: []collaborators.ChannelReceipt{{Channel: "test"}}}, nil
}

func TestCollectionsSendsOneNoticePerInvoice(t *testing.T) {
	overdue := []domain.Invoice{
		{ID: "inv-1", CustomerRef: "cust-1", AmountDue: domain.Money{Minor: 5000, Currency: "EUR"}},
	}
	def := Collections(overdue, CollectionsDeps{Notify: failingNotify{failFor: map[string]bool{}}})

	result := runEngine(def)
	if result.Kind != domain.OutcomeCompleted {
		t.Fatalf("want completed, got %s", result.Kind)
	}
	if result.Data["inv-1"] != "sent" {
		t.Fatalf("want inv-1 recorded as sent, got %q", result.Data["inv-1"])
	}
}

func TestCollectionsRecordsPerInvoiceFailureWithoutStoppingOthers(t *testing.T) {
	overdue := []domain.Invoice{
		{ID: "inv-1", CustomerRef: "cust-1"},
		{ID: "inv-2", CustomerRef: "cust-2"},
	}
	def := Collections(overdue, CollectionsDeps{Notify: failingNotify{failFor: map[string]bool{"inv-1": true}}})

	store := newTestStore()
	eng := engine.New(store, testLease{}, nil)
	run, _ := store.CreateRun(context.Background(), domain.WorkflowRun{ID: "run-collections", Name: def.Name})
	result := eng.Execute(context.Background(), run, def)

	if result.Kind != domain.OutcomeCompleted {
		t.Fatalf("want completed (per-invoice failures don't fail the run), got %s", result.Kind)
	}
	if result.Data["inv-1"] == "sent" {
		t.Fatalf("want inv-1 recorded as failed, got %q", result.Data["inv-1"])
	}
	if result.Data["inv-2"] != "sent" {
		t.Fatalf("want inv-2 still sent after inv-1 failed, got %q", result.Data["inv-2"])
	}
}
