package resolver

import (
	"testing"

	"github.com/zoobzio/cashapp/internal/domain"
)

var kenyaRule = CountryRule{CountryCode: "254", NationalLength: 9}

func newTestResolver(customers []domain.Customer) *Resolver {
	n := NewNormalizer(DefaultStopwords, DefaultSuffixEquivalences)
	return New("v1", customers, n, kenyaRule)
}

func TestResolvePhoneExact(t *testing.T) {
	customers := []domain.Customer{
		{ID: "c1", CanonicalName: "ACME LIMITED", Phones: []string{"0712345678"}},
	}
	r := newTestResolver(customers)

	got := r.Resolve(domain.Counterparty{Phone: "+254712345678"})
	if !got.Matched || got.CustomerID != "c1" || got.Method != MethodPhoneExact {
		t.Fatalf("got %+v", got)
	}
	if got.Confidence != 0.98 {
		t.Errorf("confidence = %v, want 0.98", got.Confidence)
	}
}

func TestResolveNameExactAfterNormalization(t *testing.T) {
	customers := []domain.Customer{{ID: "c1", CanonicalName: "ACME LIMITED"}}
	r := newTestResolver(customers)

	got := r.Resolve(domain.Counterparty{Name: "acme ltd"})
	if !got.Matched || got.Method != MethodNameExact {
		t.Fatalf("got %+v", got)
	}
}

func TestResolveAliasFuzzy(t *testing.T) {
	customers := []domain.Customer{{ID: "c1", CanonicalName: "ACME LIMITED", Aliases: []string{"ACME CORP LTD"}}}
	r := newTestResolver(customers)

	got := r.Resolve(domain.Counterparty{Name: "ACME CORPORATON LTD"})
	if !got.Matched {
		t.Fatalf("expected fuzzy match, got %+v", got)
	}
	if got.Confidence < fuzzyThreshold {
		t.Errorf("confidence %v below threshold", got.Confidence)
	}
}

func TestResolveBelowThresholdNoMatch(t *testing.T) {
	customers := []domain.Customer{{ID: "c1", CanonicalName: "ACME LIMITED"}}
	r := newTestResolver(customers)

	got := r.Resolve(domain.Counterparty{Name: "COMPLETELY DIFFERENT ENTITY"})
	if got.Matched {
		t.Fatalf("expected no match, got %+v", got)
	}
}

func TestCollisionDetection(t *testing.T) {
	customers := []domain.Customer{
		{ID: "c1", CanonicalName: "A", Phones: []string{"0712345678"}},
		{ID: "c2", CanonicalName: "B", Phones: []string{"0712345678"}},
	}
	r := newTestResolver(customers)
	if len(r.Warnings()) == 0 {
		t.Fatalf("expected a phone_collision warning")
	}

	got := r.Resolve(domain.Counterparty{Phone: "0712345678"})
	if got.CustomerID != "c1" {
		t.Errorf("collision should resolve to ascending id, got %s", got.CustomerID)
	}
}
