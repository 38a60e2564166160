package matcher

import (
	"strings"
	"testing"
	"time"

	"github.com/zoobzio/cashapp/internal/domain"
	"github.com/zoobzio/cashapp/internal/resolver"
)

func eur(cents int64) domain.Money { return domain.Money{Minor: cents, Currency: "EUR"} }

func newResolverWithCustomer(id, name string) *resolver.Resolver {
	n := resolver.NewNormalizer(resolver.DefaultStopwords, resolver.DefaultSuffixEquivalences)
	return resolver.New("v1", []domain.Customer{{ID: id, CanonicalName: name}}, n, resolver.CountryRule{CountryCode: "254", NationalLength: 9})
}

func TestMatchPerfectMatch(t *testing.T) {
	day := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	res := newResolverWithCustomer("cust-1", "ACME")
	payments := []domain.Payment{
		{ID: "p1", Amount: eur(150000), ValueDate: day, Reference: "Payment for INV-12345", Counterparty: domain.Counterparty{Name: "ACME"}},
	}
	invoices := []domain.Invoice{
		{ID: "i1", InvoiceNumber: "INV-12345", CustomerRef: "cust-1", AmountDue: eur(150000), IssueDate: day},
	}

	got := New(DefaultRules, res).Match(payments, invoices)
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	m := got[0]
	if m.AmountToApply != eur(150000) {
		t.Errorf("amount = %+v", m.AmountToApply)
	}
	if m.RemainingPayment.Minor != 0 || m.RemainingInvoice.Minor != 0 {
		t.Errorf("expected zero residuals, got payment=%v invoice=%v", m.RemainingPayment, m.RemainingInvoice)
	}
	if m.Confidence < 0.9 {
		t.Errorf("confidence = %v, want >= 0.9", m.Confidence)
	}
}

func TestMatchPartialPayment(t *testing.T) {
	day := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	res := newResolverWithCustomer("cust-1", "ACME")
	payments := []domain.Payment{
		{ID: "p3", Amount: eur(80000), ValueDate: day, Reference: "Partial payment for INV-C", Counterparty: domain.Counterparty{Name: "ACME"}},
	}
	invoices := []domain.Invoice{
		{ID: "iC", InvoiceNumber: "INV-C", CustomerRef: "cust-1", AmountDue: eur(100000), IssueDate: day},
	}

	got := New(DefaultRules, res).Match(payments, invoices)
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	if got[0].RemainingInvoice.Minor != 20000 {
		t.Errorf("remaining invoice = %v, want 20000", got[0].RemainingInvoice)
	}
}

func TestMatchUnmatchedYieldsNoMatches(t *testing.T) {
	day := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	res := newResolverWithCustomer("cust-1", "ACME")
	payments := []domain.Payment{
		{ID: "p4", Amount: eur(100000), ValueDate: day, Reference: "UNKNOWN-999", Counterparty: domain.Counterparty{Name: "NOBODY"}},
	}
	invoices := []domain.Invoice{
		{ID: "iC", InvoiceNumber: "INV-C", CustomerRef: "cust-1", AmountDue: eur(100000), IssueDate: day},
	}

	got := New(DefaultRules, res).Match(payments, invoices)
	if len(got) != 0 {
		t.Fatalf("expected no matches, got %d", len(got))
	}
}

func TestMatchEmptyInputs(t *testing.T) {
	res := newResolverWithCustomer("cust-1", "ACME")
	got := New(DefaultRules, res).Match(nil, nil)
	if len(got) != 0 {
		t.Fatalf("expected no matches for empty input, got %d", len(got))
	}
}

func TestMatchCurrencyMismatchFailsAmountFactor(t *testing.T) {
	day := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	res := newResolverWithCustomer("cust-1", "ACME")
	payments := []domain.Payment{
		{ID: "p1", Amount: domain.Money{Minor: 150000, Currency: "USD"}, ValueDate: day, Reference: "INV-12345", Counterparty: domain.Counterparty{Name: "ACME"}},
	}
	invoices := []domain.Invoice{
		{ID: "i1", InvoiceNumber: "INV-12345", CustomerRef: "cust-1", AmountDue: eur(150000), IssueDate: day},
	}
	got := New(DefaultRules, res).Match(payments, invoices)
	if len(got) != 0 {
		t.Fatalf("expected currency mismatch to block matching, got %d matches", len(got))
	}
}

func TestMatchOverpaymentSplitsAcrossTwoInvoices(t *testing.T) {
	day := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	res := newResolverWithCustomer("cust-1", "ACME")
	payments := []domain.Payment{
		{ID: "p2", Amount: eur(250000), ValueDate: day, Reference: "INV-A INV-B", Counterparty: domain.Counterparty{Name: "ACME"}},
	}
	invoices := []domain.Invoice{
		{ID: "iA", InvoiceNumber: "INV-A", CustomerRef: "cust-1", AmountDue: eur(100000), IssueDate: day},
		{ID: "iB", InvoiceNumber: "INV-B", CustomerRef: "cust-1", AmountDue: eur(120000), IssueDate: day},
	}

	got := New(DefaultRules, res).Match(payments, invoices)
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(got), got)
	}

	var total int64
	var sawSplit bool
	for _, m := range got {
		total += m.AmountToApply.Minor
		if m.RemainingPayment.Minor != 30000 {
			t.Errorf("remaining payment = %v, want 30000", m.RemainingPayment)
		}
		if strings.HasSuffix(m.RuleName, "_split") {
			sawSplit = true
		}
	}
	if total != 220000 {
		t.Errorf("total applied = %d, want 220000", total)
	}
	if !sawSplit {
		t.Errorf("expected at least one match's rule name to carry a _split suffix, got %+v", got)
	}
}

func TestMatchConsolidatesTwoPaymentsOntoOneInvoice(t *testing.T) {
	day := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	res := newResolverWithCustomer("cust-1", "ACME")
	payments := []domain.Payment{
		{ID: "pA", Amount: eur(120000), ValueDate: day, Reference: "partial settlement", Counterparty: domain.Counterparty{Name: "ACME"}},
		{ID: "pB", Amount: eur(80000), ValueDate: day, Reference: "partial settlement", Counterparty: domain.Counterparty{Name: "ACME"}},
	}
	invoices := []domain.Invoice{
		{ID: "iX", InvoiceNumber: "INV-X", CustomerRef: "cust-1", AmountDue: eur(200000), IssueDate: day},
	}

	got := New(DefaultRules, res).Match(payments, invoices)
	if len(got) != 1 {
		t.Fatalf("expected the two payments to consolidate onto one match, got %d: %+v", len(got), got)
	}
	m := got[0]
	if m.RuleName != "consolidated" {
		t.Errorf("rule name = %q, want %q", m.RuleName, "consolidated")
	}
	if len(m.PaymentRefs) != 2 || m.PaymentRefs[0] != "pA" || m.PaymentRefs[1] != "pB" {
		t.Errorf("payment refs = %v, want [pA pB]", m.PaymentRefs)
	}
	if m.AmountToApply != eur(200000) {
		t.Errorf("amount applied = %v, want 200000", m.AmountToApply)
	}
	if m.RemainingInvoice.Minor != 0 {
		t.Errorf("remaining invoice = %v, want 0", m.RemainingInvoice)
	}
	if m.Details["consolidated_from"] != "2" {
		t.Errorf("consolidated_from = %q, want %q", m.Details["consolidated_from"], "2")
	}
}

func TestMatchDeterministicUnderShuffle(t *testing.T) {
	day := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	res := newResolverWithCustomer("cust-1", "ACME")
	payments := []domain.Payment{
		{ID: "p2", Amount: eur(100000), ValueDate: day, Reference: "INV-B", Counterparty: domain.Counterparty{Name: "ACME"}},
		{ID: "p1", Amount: eur(150000), ValueDate: day, Reference: "INV-A", Counterparty: domain.Counterparty{Name: "ACME"}},
	}
	invoices := []domain.Invoice{
		{ID: "iB", InvoiceNumber: "INV-B", CustomerRef: "cust-1", AmountDue: eur(100000), IssueDate: day},
		{ID: "iA", InvoiceNumber: "INV-A", CustomerRef: "cust-1", AmountDue: eur(150000), IssueDate: day},
	}

	m := New(DefaultRules, res)
	a := m.Match(payments, invoices)
	reversed := []domain.Payment{payments[1], payments[0]}
	b := m.Match(reversed, invoices)

	if len(a) != len(b) {
		t.Fatalf("non-deterministic match count: %d vs %d", len(a), len(b))
	}
}
