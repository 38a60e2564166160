// Package collaborators defines the external-system boundary the core
// consumes (§6): OCR extraction, ERP lookups/posting, notification
// dispatch, and manual-review ticket creation. Concrete adapters (Slack,
// Kafka, ...) live alongside the interfaces; the workflows only ever see
// these interfaces.
package collaborators

import (
	"context"

	"github.com/zoobzio/cashapp/internal/domain"
)

// OCR extracts candidate invoice identifiers from a payment's remittance
// document.
type OCR interface {
	ExtractInvoiceIDs(ctx context.Context, documentRef string) (ids []string, warnings []string, err error)
}

// ERP is the system of record for invoices and the target of posted
// cash applications.
type ERP interface {
	FetchInvoices(ctx context.Context, ids []string, correlationID string) ([]domain.Invoice, error)
	PostCashApplication(ctx context.Context, match domain.Match, payment domain.Payment) (PostReceipt, error)
}

// PostReceipt records which downstream systems accepted the posting.
type PostReceipt struct {
	UpdatedSystems []string
	Receipts       []SystemReceipt
}

type SystemReceipt struct {
	System string
	ID     string
}

// NotifyEventKind names the kind of event Notify.Send delivers.
type NotifyEventKind string

const (
	NotifyCompleted     NotifyEventKind = "completed"
	NotifyManualReview  NotifyEventKind = "manual_review"
	NotifyCollectionDue NotifyEventKind = "collection_due"
)

// Notify dispatches a typed event to a set of recipients over whatever
// channel the adapter implements.
type Notify interface {
	Send(ctx context.Context, kind NotifyEventKind, recipients []string, payload map[string]string) (SendResult, error)
}

// SendResult reports per-channel delivery outcome.
type SendResult struct {
	Sent   []ChannelReceipt
	Failed []ChannelFailure
}

type ChannelReceipt struct {
	Channel string
	ID      string
}

type ChannelFailure struct {
	Channel string
	Error   string
}

// ManualReview files a human-review ticket when the workflow cannot
// complete automatically.
type ManualReview interface {
	Create(ctx context.Context, payment domain.Payment, reason string, details map[string]string) (ReviewTicket, error)
}

// ReviewTicket is the ticket handle returned by ManualReview.Create.
type ReviewTicket struct {
	ReviewID   string
	AssignedTo string
}
