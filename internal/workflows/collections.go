package workflows

import (
	"context"
	"time"

	"github.com/zoobzio/cashapp/internal/activity"
	"github.com/zoobzio/cashapp/internal/collaborators"
	"github.com/zoobzio/cashapp/internal/domain"
	"github.com/zoobzio/cashapp/internal/engine"
	"github.com/zoobzio/cashapp/internal/policy"
)

// CollectionsDeps is what CollectionsWorkflow needs to send notices.
type CollectionsDeps struct {
	Notify collaborators.Notify
}

// noticePacing is the minimum rest between successive collection notices
// (§4.7 rate limiting / §5 inter-iteration suspension point).
const noticePacing = time.Second

// Collections iterates overdue invoices, sending a notice per invoice
// with its own retry budget and recording a per-invoice outcome. One
// invoice's exhausted retries does not stop the others.
func Collections(overdue []domain.Invoice, deps CollectionsDeps) engine.WorkflowDef {
	return engine.WorkflowDef{
		Name: "collections",
		Body: func(rc *engine.RunContext) (*domain.RunResult, error) {
			outcomes := map[string]string{}

			for i, inv := range overdue {
				notifyInvoker := activity.New[domain.Invoice, collaborators.SendResult]("send_collection_notice",
					activity.Spec{StartToCloseTimeout: 3 * time.Minute},
					func(ctx context.Context, key domain.IdempotencyKey, hb activity.HeartbeatFunc, invoice domain.Invoice) (collaborators.SendResult, error) {
						return deps.Notify.Send(ctx, collaborators.NotifyCollectionDue, []string{invoice.CustomerRef}, map[string]string{
							"invoice_id": invoice.ID,
							"amount_due": itoaMinor(invoice.AmountDue.Minor),
						})
					})

				stepID := "send_collection_notice:" + inv.ID
				_, err := rc.Do(engine.Step{
					ID: stepID, Policy: collectionsRetryPolicy, Timeout: 3 * time.Minute,
					Run: func(ctx context.Context, key domain.IdempotencyKey) (domain.AttemptOutcome, map[string]string, error) {
						out, outcome, ierr := notifyInvoker.Invoke(ctx, key, inv)
						return outcome, marshalResult(out), ierr
					},
				})
				if err != nil {
					outcomes[inv.ID] = "failed: " + err.Error()
				} else {
					outcomes[inv.ID] = "sent"
				}

				if i < len(overdue)-1 {
					if sleepErr := rc.Sleep(noticePacing); sleepErr != nil {
						return nil, sleepErr
					}
				}
			}

			return &domain.RunResult{Kind: domain.OutcomeCompleted, Data: outcomes}, nil
		},
	}
}

var collectionsRetryPolicy = policy.RetryPolicy{
	InitialInterval:    2 * time.Second,
	MaxInterval:        time.Minute,
	BackoffCoefficient: 2,
	MaxAttempts:        3,
}

func itoaMinor(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [24]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
