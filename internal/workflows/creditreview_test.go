package workflows

import (
	"context"
	"testing"

	"github.com/zoobzio/cashapp/internal/domain"
)

type fakeCreditAssessor struct {
	assessment CreditAssessment
	updated    bool
}

func (f *fakeCreditAssessor) AssessRisk(_ context.Context, _ string) (CreditAssessment, error) {
	return f.assessment, nil
}

func (f *fakeCreditAssessor) UpdateLimits(_ context.Context, _ string, _ CreditAssessment) error {
	f.updated = true
	return nil
}

func TestCreditReviewSkipsUpdateWhenNotRequired(t *testing.T) {
	assessor := &fakeCreditAssessor{assessment: CreditAssessment{UpdateRequired: false}}
	def := CreditReview("cust-1", CreditReviewDeps{Assessor: assessor})

	result := runEngine(def)
	if result.Kind != domain.OutcomeCompleted {
		t.Fatalf("want completed, got %s", result.Kind)
	}
	if result.Data["update_required"] != "false" {
		t.Fatalf("want update_required=false, got %q", result.Data["update_required"])
	}
	if assessor.updated {
		t.Fatal("UpdateLimits must not be called when no update is required")
	}
}

func TestCreditReviewUpdatesLimitsWhenRequired(t *testing.T) {
	assessor := &fakeCreditAssessor{assessment: CreditAssessment{
		UpdateRequired: true, NewLimitMinor: 500000, Currency: "EUR", Reason: "improved payment history",
	}}
	def := CreditReview("cust-1", CreditReviewDeps{Assessor: assessor})

	result := runEngine(def)
	if result.Kind != domain.OutcomeCompleted {
		t.Fatalf("want completed, got %s", result.Kind)
	}
	if result.Data["update_required"] != "true" {
		t.Fatalf("want update_required=true, got %q", result.Data["update_required"])
	}
	if !assessor.updated {
		t.Fatal("UpdateLimits must be called when an update is required")
	}
}
