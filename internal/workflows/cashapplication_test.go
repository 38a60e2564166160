package workflows

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/cashapp/internal/collaborators"
	"github.com/zoobzio/cashapp/internal/domain"
	"github.com/zoobzio/cashapp/internal/engine"
	"github.com/zoobzio/cashapp/internal/matcher"
	"github.com/zoobzio/cashapp/internal/resolver"
)

type fakeOCR struct {
	ids      []string
	warnings []string
	err      error
}

func (f fakeOCR) ExtractInvoiceIDs(_ context.Context, _ string) ([]string, []string, error) {
	return f.ids, f.warnings, f.err
}

type fakeERP struct {
	invoices []domain.Invoice
	receipt  collaborators.PostReceipt
	postErr  error
}

func (f fakeERP) FetchInvoices(_ context.Context, _ []string, _ string) ([]domain.Invoice, error) {
	return f.invoices, nil
}

func (f fakeERP) PostCashApplication(_ context.Context, _ domain.Match, _ domain.Payment) (collaborators.PostReceipt, error) {
	return f.receipt, f.postErr
}

type fakeNotify struct{ sent []collaborators.NotifyEventKind }

func (f *fakeNotify) Send(_ context.Context, kind collaborators.NotifyEventKind, _ []string, _ map[string]string) (collaborators.SendResult, error) {
	f.sent = append(f.sent, kind)
	return collaborators.SendResult{Sent: []collaborators.ChannelReceipt{{Channel: "test"}}}, nil
}

type fakeManualReview struct{ reasons []string }

func (f *fakeManualReview) Create(_ context.Context, _ domain.Payment, reason string, _ map[string]string) (collaborators.ReviewTicket, error) {
	f.reasons = append(f.reasons, reason)
	return collaborators.ReviewTicket{ReviewID: "rev-1"}, nil
}

func testResolver() *resolver.Resolver {
	n := resolver.NewNormalizer(resolver.DefaultStopwords, resolver.DefaultSuffixEquivalences)
	return resolver.New("v1", []domain.Customer{{ID: "cust-1", CanonicalName: "ACME"}}, n,
		resolver.CountryRule{CountryCode: "254", NationalLength: 9})
}

func runEngine(def engine.WorkflowDef) domain.RunResult {
	store := newTestStore()
	eng := engine.New(store, testLease{}, nil)
	run, _ := store.CreateRun(context.Background(), domain.WorkflowRun{ID: "run-1", Name: def.Name})
	return eng.Execute(context.Background(), run, def)
}

func TestCashApplicationCompletesOnExactMatch(t *testing.T) {
	day := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	payment := domain.Payment{
		ID: "pay-1", Amount: domain.Money{Minor: 150000, Currency: "EUR"}, ValueDate: day,
		Reference: "Payment for INV-12345", Counterparty: domain.Counterparty{Name: "ACME"},
		RawRemittance: "remit-1",
	}
	notify := &fakeNotify{}
	deps := Deps{
		OCR: fakeOCR{ids: []string{"inv-1"}},
		ERP: fakeERP{invoices: []domain.Invoice{
			{ID: "inv-1", InvoiceNumber: "INV-12345", CustomerRef: "cust-1",
				AmountDue: domain.Money{Minor: 150000, Currency: "EUR"}, IssueDate: day},
		}},
		Notify:       notify,
		ManualReview: &fakeManualReview{},
		Resolver:     testResolver(),
		Rules:        matcher.DefaultRules,
	}

	result := runEngine(CashApplication(payment, deps))
	if result.Kind != domain.OutcomeCompleted {
		t.Fatalf("want completed, got %s (%s)", result.Kind, result.Error)
	}
	if len(notify.sent) != 1 || notify.sent[0] != collaborators.NotifyCompleted {
		t.Fatalf("want one completed notification, got %v", notify.sent)
	}
}

func TestCashApplicationRoutesToManualReviewWhenOCRFindsNoInvoiceIDs(t *testing.T) {
	payment := domain.Payment{ID: "pay-1", RawRemittance: "illegible"}
	review := &fakeManualReview{}
	deps := Deps{
		OCR:          fakeOCR{ids: nil},
		ERP:          fakeERP{},
		Notify:       &fakeNotify{},
		ManualReview: review,
		Resolver:     testResolver(),
		Rules:        matcher.DefaultRules,
	}

	result := runEngine(CashApplication(payment, deps))
	if result.Kind != domain.OutcomeManualReview || result.Reason != "no_invoice_ids" {
		t.Fatalf("want manual_review{no_invoice_ids}, got %s{%s}", result.Kind, result.Reason)
	}
	if len(review.reasons) != 1 || review.reasons[0] != "no_invoice_ids" {
		t.Fatalf("want one review ticket filed, got %v", review.reasons)
	}
}

func TestCashApplicationRoutesToManualReviewWhenNoInvoicesMatch(t *testing.T) {
	payment := domain.Payment{
		ID: "pay-1", Amount: domain.Money{Minor: 99, Currency: "EUR"},
		RawRemittance: "remit-1", Reference: "unrelated",
	}
	review := &fakeManualReview{}
	deps := Deps{
		OCR: fakeOCR{ids: []string{"inv-1"}},
		ERP: fakeERP{invoices: []domain.Invoice{
			{ID: "inv-1", InvoiceNumber: "INV-99999", CustomerRef: "cust-2",
				AmountDue: domain.Money{Minor: 5000000, Currency: "USD"}},
		}},
		Notify:       &fakeNotify{},
		ManualReview: review,
		Resolver:     testResolver(),
		Rules:        matcher.DefaultRules,
	}

	result := runEngine(CashApplication(payment, deps))
	if result.Kind != domain.OutcomeManualReview || result.Reason != "matching_failed" {
		t.Fatalf("want manual_review{matching_failed}, got %s{%s}", result.Kind, result.Reason)
	}
}
