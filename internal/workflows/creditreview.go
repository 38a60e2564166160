package workflows

import (
	"context"
	"time"

	"github.com/zoobzio/cashapp/internal/activity"
	"github.com/zoobzio/cashapp/internal/domain"
	"github.com/zoobzio/cashapp/internal/engine"
	"github.com/zoobzio/cashapp/internal/policy"
)

// CreditAssessor assesses a customer's credit risk and decides whether a
// limit update is required.
type CreditAssessor interface {
	AssessRisk(ctx context.Context, customerID string) (CreditAssessment, error)
	UpdateLimits(ctx context.Context, customerID string, assessment CreditAssessment) error
}

// CreditAssessment is the assessor's verdict.
type CreditAssessment struct {
	UpdateRequired bool
	NewLimitMinor  int64
	Currency       string
	Reason         string
}

// CreditReviewDeps bundles CreditReviewWorkflow's one collaborator.
type CreditReviewDeps struct {
	Assessor CreditAssessor
}

// CreditReview implements `assess_credit_risk` -> conditionally
// `update_credit_limits`, per §4.7.
func CreditReview(customerID string, deps CreditReviewDeps) engine.WorkflowDef {
	return engine.WorkflowDef{
		Name: "credit_review",
		Body: func(rc *engine.RunContext) (*domain.RunResult, error) {
			assessInvoker := activity.New[string, CreditAssessment]("assess_credit_risk",
				activity.Spec{StartToCloseTimeout: 5 * time.Minute},
				func(ctx context.Context, key domain.IdempotencyKey, hb activity.HeartbeatFunc, cid string) (CreditAssessment, error) {
					return deps.Assessor.AssessRisk(ctx, cid)
				})

			assessResult, err := rc.Do(engine.Step{
				ID: "assess_credit_risk", Policy: policy.ReadPolicy, Timeout: 5 * time.Minute,
				Run: func(ctx context.Context, key domain.IdempotencyKey) (domain.AttemptOutcome, map[string]string, error) {
					out, outcome, ierr := assessInvoker.Invoke(ctx, key, customerID)
					return outcome, marshalResult(out), ierr
				},
			})
			if err != nil {
				return &domain.RunResult{Kind: domain.OutcomeFailed, Error: err.Error()}, nil
			}
			var assessment CreditAssessment
			unmarshalResult(assessResult, &assessment)

			if !assessment.UpdateRequired {
				return &domain.RunResult{Kind: domain.OutcomeCompleted, Data: map[string]string{"update_required": "false"}}, nil
			}

			updateInvoker := activity.New[CreditAssessment, struct{}]("update_credit_limits",
				activity.Spec{StartToCloseTimeout: 5 * time.Minute},
				func(ctx context.Context, key domain.IdempotencyKey, hb activity.HeartbeatFunc, a CreditAssessment) (struct{}, error) {
					return struct{}{}, deps.Assessor.UpdateLimits(ctx, customerID, a)
				})

			_, err = rc.Do(engine.Step{
				ID: "update_credit_limits", Policy: policy.WritePolicy, Timeout: 5 * time.Minute,
				Run: func(ctx context.Context, key domain.IdempotencyKey) (domain.AttemptOutcome, map[string]string, error) {
					out, outcome, ierr := updateInvoker.Invoke(ctx, key, assessment)
					return outcome, marshalResult(out), ierr
				},
			})
			if err != nil {
				return &domain.RunResult{Kind: domain.OutcomeFailed, Error: err.Error()}, nil
			}

			return &domain.RunResult{Kind: domain.OutcomeCompleted, Data: map[string]string{"update_required": "true"}}, nil
		},
	}
}
