// Package workflows holds the three concrete workflow definitions (C7):
// CashApplicationWorkflow, CollectionsWorkflow, CreditReviewWorkflow.
// Each is a plain engine.WorkflowBody built from engine.Step calls, so
// every observable effect funnels through RunContext and stays durable
// and replay-safe.
package workflows

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zoobzio/cashapp/internal/activity"
	"github.com/zoobzio/cashapp/internal/collaborators"
	"github.com/zoobzio/cashapp/internal/domain"
	"github.com/zoobzio/cashapp/internal/engine"
	"github.com/zoobzio/cashapp/internal/matcher"
	"github.com/zoobzio/cashapp/internal/policy"
	"github.com/zoobzio/cashapp/internal/resolver"
)

// Deps bundles the collaborators and matching state a CashApplication run
// needs; the orchestrator constructs one per payment submission.
type Deps struct {
	OCR          collaborators.OCR
	ERP          collaborators.ERP
	Notify       collaborators.Notify
	ManualReview collaborators.ManualReview
	Resolver     *resolver.Resolver
	Rules        []matcher.Rule
}

// CashApplication builds the WorkflowDef for one payment, implementing
// the six steps from §4.7.
func CashApplication(payment domain.Payment, deps Deps) engine.WorkflowDef {
	return engine.WorkflowDef{
		Name: "cash_application",
		Body: func(rc *engine.RunContext) (*domain.RunResult, error) {
			ocrInvoker := activity.New[string, ocrResult]("extract_invoice_ids",
				activity.Spec{StartToCloseTimeout: 5 * time.Minute},
				func(ctx context.Context, key domain.IdempotencyKey, hb activity.HeartbeatFunc, documentRef string) (ocrResult, error) {
					ids, warnings, err := deps.OCR.ExtractInvoiceIDs(ctx, documentRef)
					return ocrResult{IDs: ids, Warnings: warnings}, err
				})

			extractResult, err := rc.Do(engine.Step{
				ID: "extract_invoice_ids", Policy: policy.ReadPolicy, Timeout: 5 * time.Minute,
				Run: func(ctx context.Context, key domain.IdempotencyKey) (domain.AttemptOutcome, map[string]string, error) {
					out, outcome, ierr := ocrInvoker.Invoke(ctx, key, payment.RawRemittance)
					return outcome, marshalResult(out), ierr
				},
			})
			if err != nil {
				return routeForManualReview(rc, deps, payment, "workflow_error", map[string]string{"error": err.Error()})
			}
			var ocrOut ocrResult
			unmarshalResult(extractResult, &ocrOut)
			if len(ocrOut.IDs) == 0 {
				return routeForManualReview(rc, deps, payment, "no_invoice_ids", nil)
			}

			erpInvoker := activity.New[erpFetchInput, erpFetchOutput]("fetch_invoice_details",
				activity.Spec{StartToCloseTimeout: 10 * time.Minute},
				func(ctx context.Context, key domain.IdempotencyKey, hb activity.HeartbeatFunc, in erpFetchInput) (erpFetchOutput, error) {
					invoices, err := deps.ERP.FetchInvoices(ctx, in.IDs, in.CorrelationID)
					return erpFetchOutput{Invoices: invoices}, err
				})

			fetchResult, err := rc.Do(engine.Step{
				ID: "fetch_invoice_details", Policy: policy.FetchPolicy, Timeout: 10 * time.Minute,
				Run: func(ctx context.Context, key domain.IdempotencyKey) (domain.AttemptOutcome, map[string]string, error) {
					out, outcome, ierr := erpInvoker.Invoke(ctx, key, erpFetchInput{IDs: ocrOut.IDs, CorrelationID: rc.RunID()})
					return outcome, marshalResult(out), ierr
				},
			})
			if err != nil {
				return routeForManualReview(rc, deps, payment, "workflow_error", map[string]string{"error": err.Error()})
			}
			var fetchOut erpFetchOutput
			unmarshalResult(fetchResult, &fetchOut)

			matchResult, err := rc.Do(engine.Step{
				ID: "match_payment_to_invoices", Policy: matchPolicy, Timeout: 3 * time.Minute,
				Run: func(ctx context.Context, key domain.IdempotencyKey) (domain.AttemptOutcome, map[string]string, error) {
					m := matcher.New(deps.Rules, deps.Resolver)
					matches := m.Match([]domain.Payment{payment}, fetchOut.Invoices)
					return domain.AttemptOK, marshalResult(matchOutput{Matches: matches}), nil
				},
			})
			if err != nil {
				return routeForManualReview(rc, deps, payment, "workflow_error", map[string]string{"error": err.Error()})
			}
			var matchOut matchOutput
			unmarshalResult(matchResult, &matchOut)

			if len(matchOut.Matches) == 0 {
				return routeForManualReview(rc, deps, payment, "matching_failed", nil)
			}

			bestMatch := matchOut.Matches[0]
			postInvoker := activity.New[domain.Match, collaborators.PostReceipt]("update_erp_systems",
				activity.Spec{StartToCloseTimeout: 15 * time.Minute},
				func(ctx context.Context, key domain.IdempotencyKey, hb activity.HeartbeatFunc, match domain.Match) (collaborators.PostReceipt, error) {
					return deps.ERP.PostCashApplication(ctx, match, payment)
				})

			_, err = rc.Do(engine.Step{
				ID: "update_erp_systems", Policy: policy.WritePolicy, Timeout: 15 * time.Minute,
				Run: func(ctx context.Context, key domain.IdempotencyKey) (domain.AttemptOutcome, map[string]string, error) {
					out, outcome, ierr := postInvoker.Invoke(ctx, key, bestMatch)
					return outcome, marshalResult(out), ierr
				},
			})
			if err != nil {
				return routeForManualReview(rc, deps, payment, "workflow_error", map[string]string{"error": err.Error()})
			}

			notifyInvoker := activity.New[map[string]string, collaborators.SendResult]("send_notifications",
				activity.Spec{StartToCloseTimeout: 5 * time.Minute},
				func(ctx context.Context, key domain.IdempotencyKey, hb activity.HeartbeatFunc, payloadIn map[string]string) (collaborators.SendResult, error) {
					return deps.Notify.Send(ctx, collaborators.NotifyCompleted, []string{payment.ClientID}, payloadIn)
				})

			_, err = rc.Do(engine.Step{
				ID: "send_notifications", Policy: policy.NotifyPolicy, Timeout: 5 * time.Minute,
				Run: func(ctx context.Context, key domain.IdempotencyKey) (domain.AttemptOutcome, map[string]string, error) {
					out, outcome, ierr := notifyInvoker.Invoke(ctx, key, map[string]string{"payment_id": payment.ID, "invoice_id": bestMatch.InvoiceRefs[0]})
					return outcome, marshalResult(out), ierr
				},
			})
			if err != nil {
				return routeForManualReview(rc, deps, payment, "workflow_error", map[string]string{"error": err.Error()})
			}

			return &domain.RunResult{Kind: domain.OutcomeCompleted}, nil
		},
	}
}

var matchPolicy = policy.RetryPolicy{
	InitialInterval:    time.Second,
	MaxInterval:        time.Minute,
	BackoffCoefficient: 2,
	MaxAttempts:        2,
}

var reviewPolicy = policy.RetryPolicy{
	InitialInterval:    2 * time.Second,
	MaxInterval:        30 * time.Second,
	BackoffCoefficient: 2,
	MaxAttempts:        2,
}

// routeForManualReview files a review ticket and reports the run as
// manual_review{reason}. A workflow_error reason instead reports the run
// as failed{error}, per §4.7 step 6 — the ticket is filed either way so a
// human sees both outcomes.
func routeForManualReview(rc *engine.RunContext, deps Deps, payment domain.Payment, reason string, details map[string]string) (*domain.RunResult, error) {
	reviewInvoker := activity.New[reviewInput, collaborators.ReviewTicket]("route_for_manual_review",
		activity.Spec{StartToCloseTimeout: 2 * time.Minute},
		func(ctx context.Context, key domain.IdempotencyKey, hb activity.HeartbeatFunc, in reviewInput) (collaborators.ReviewTicket, error) {
			return deps.ManualReview.Create(ctx, in.Payment, in.Reason, in.Details)
		})

	_, err := rc.Do(engine.Step{
		ID: "route_for_manual_review", Policy: reviewPolicy, Timeout: 2 * time.Minute,
		Run: func(ctx context.Context, key domain.IdempotencyKey) (domain.AttemptOutcome, map[string]string, error) {
			out, outcome, ierr := reviewInvoker.Invoke(ctx, key, reviewInput{Payment: payment, Reason: reason, Details: details})
			return outcome, marshalResult(out), ierr
		},
	})
	if err != nil {
		return nil, err
	}
	if reason == "workflow_error" {
		return &domain.RunResult{Kind: domain.OutcomeFailed, Reason: reason, Error: details["error"]}, nil
	}
	return &domain.RunResult{Kind: domain.OutcomeManualReview, Reason: reason}, nil
}

type reviewInput struct {
	Payment domain.Payment
	Reason  string
	Details map[string]string
}

type ocrResult struct {
	IDs      []string `json:"ids"`
	Warnings []string `json:"warnings"`
}

type erpFetchInput struct {
	IDs           []string
	CorrelationID string
}

type erpFetchOutput struct {
	Invoices []domain.Invoice `json:"invoices"`
}

type matchOutput struct {
	Matches []domain.Match `json:"matches"`
}

func marshalResult(v any) map[string]string {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return map[string]string{"data": string(b)}
}

func unmarshalResult(m map[string]string, out any) {
	raw, ok := m["data"]
	if !ok {
		return
	}
	_ = json.Unmarshal([]byte(raw), out)
}
