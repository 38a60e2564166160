// Package domain holds the typed envelopes the cash-application core
// operates on. Nothing here reaches outside the process; collaborators
// speak these types at their boundary and nothing dirtier leaks in.
package domain

import "time"

// Money avoids float drift on amounts that get summed and compared for
// equality throughout matching. Amounts are stored as integer minor units
// (cents) alongside an ISO 4217 currency code.
type Money struct {
	Minor    int64
	Currency string
}

// Float64 returns the major-unit value, for scoring formulas that are
// defined in terms of fractional differences rather than minor units.
func (m Money) Float64() float64 {
	return float64(m.Minor) / 100
}

func (m Money) Sub(o Money) Money {
	return Money{Minor: m.Minor - o.Minor, Currency: m.Currency}
}

func (m Money) Add(o Money) Money {
	return Money{Minor: m.Minor + o.Minor, Currency: m.Currency}
}

// Counterparty is the payer-side identity fragment a bank feed carries.
type Counterparty struct {
	Name    string
	Phone   string
	Account string
	Channel string
}

// Payment is an incoming bank payment awaiting application to invoices.
type Payment struct {
	ID            string
	Amount        Money
	ValueDate     time.Time
	Counterparty  Counterparty
	Reference     string
	Memo          string
	RawRemittance string
	ClientID      string
}

// InvoiceStatus is the ERP-side lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceOpen    InvoiceStatus = "open"
	InvoicePartial InvoiceStatus = "partial"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceVoid    InvoiceStatus = "void"
)

// Invoice is an ERP-side receivable the core may apply payments against.
type Invoice struct {
	ID            string
	InvoiceNumber string
	CustomerRef   string
	TotalAmount   Money
	AmountDue     Money
	IssueDate     time.Time
	DueDate       time.Time
	Status        InvoiceStatus
	Reference     string
}

// Customer is a resolvable counterparty identity with its alias universe.
type Customer struct {
	ID            string
	CanonicalName string
	Aliases       []string
	Phones        []string
	Accounts      []string
}

// Match is the result of applying a rule to a (payment, invoice) pair, or
// the outcome of split/consolidation post-processing over several such
// results. PaymentRefs always carries every contributing payment id, even
// when there is exactly one — callers never need to special-case the
// consolidated shape.
type Match struct {
	PaymentRefs      []string
	InvoiceRefs      []string
	RuleName         string
	Confidence       float64
	AmountToApply    Money
	RemainingPayment Money
	RemainingInvoice Money
	Details          map[string]string
}

// WorkflowState is the lifecycle state of a durable workflow run.
type WorkflowState string

const (
	StatePending       WorkflowState = "pending"
	StateRunning       WorkflowState = "running"
	StateCancelling    WorkflowState = "cancelling"
	StateCompleted     WorkflowState = "completed"
	StateFailed        WorkflowState = "failed"
	StateCancelled     WorkflowState = "cancelled"
	StateAwaitingReview WorkflowState = "awaiting_manual"
)

// WorkflowRun is the durable record of one workflow execution. History is
// the source of truth; every other field is a projection maintained for
// cheap reads and is always reconstructible by replaying History.
type WorkflowRun struct {
	ID                     string
	Name                   string
	State                  WorkflowState
	CurrentStep            string
	AttemptsForCurrentStep int
	NextRetryAt            time.Time
	ResolverVersion         string
	Result                 *RunResult
	History                []Event
	CreatedAt              time.Time
	UpdatedAt              time.Time

	// Payload is the opaque JSON submission envelope CreateRun persisted
	// for this run (internal/orchestrator.Payload, marshaled). A
	// scheduler resuming a run after a crash unmarshals this to rebuild
	// the WorkflowDef through the same factory Start used; the engine
	// itself never reads it.
	Payload string
}

// RunOutcomeKind is the user-visible terminal shape of a run.
type RunOutcomeKind string

const (
	OutcomeCompleted     RunOutcomeKind = "completed"
	OutcomeManualReview  RunOutcomeKind = "manual_review"
	OutcomeFailed        RunOutcomeKind = "failed"
	OutcomeCancelled     RunOutcomeKind = "cancelled"
)

// RunResult is the terminal payload of a WorkflowRun.
type RunResult struct {
	Kind   RunOutcomeKind
	Reason string
	Error  string
	Data   map[string]string
}

// AttemptOutcome classifies how a single ActivityAttempt ended.
type AttemptOutcome string

const (
	AttemptOK               AttemptOutcome = "ok"
	AttemptTransientError   AttemptOutcome = "transient_error"
	AttemptPermanentError   AttemptOutcome = "permanent_error"
	AttemptTimeout          AttemptOutcome = "timeout"
	AttemptCancelled        AttemptOutcome = "cancelled"
)

// Heartbeat is a liveness token recorded during a long-running activity.
type Heartbeat struct {
	At   time.Time
	Note string
}

// ActivityAttempt is one invocation of one workflow step.
type ActivityAttempt struct {
	StepID     string
	Attempt    int
	StartedAt  time.Time
	EndedAt    time.Time
	Outcome    AttemptOutcome
	ErrorDetail string
	Heartbeats []Heartbeat
}

// IdempotencyKey identifies one activity attempt uniquely and
// reproducibly, for collaborator-side deduplication.
type IdempotencyKey struct {
	RunID   string
	StepID  string
	Attempt int
}

func (k IdempotencyKey) String() string {
	return k.RunID + "/" + k.StepID + "/" + itoa(k.Attempt)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
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
