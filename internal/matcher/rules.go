// Package matcher implements the Match-Rule Evaluator (C4) and the
// priority-ordered Matcher (C5): scoring a (payment, invoice) pair against
// a rule and then resolving a whole batch of payments against invoices,
// including split and consolidation handling.
package matcher

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/zoobzio/cashapp/internal/domain"
	"github.com/zoobzio/cashapp/internal/resolver"
)

// Signal is one of the factor dimensions a Rule may require.
type Signal string

const (
	SignalAmount       Signal = "amount"
	SignalCustomer     Signal = "customer"
	SignalReference    Signal = "reference"
	SignalDate         Signal = "date"
	SignalPartial      Signal = "partial"
	SignalOverpayment  Signal = "overpayment"
)

// Fixed factor weights, per §4.4. Partial/overpayment substitute for the
// amount weight when those branches fire.
const (
	weightAmount      = 0.4
	weightCustomer     = 0.3
	weightReference    = 0.2
	weightDate         = 0.05
	weightPartial      = 0.3
	weightOverpayment  = 0.25

	customerFactorMinimum  = 0.7
	referenceFactorMinimum = 0.7
)

// Rule is a named, prioritized predicate+scorer over (payment, invoice).
// Rules are data, evaluated in priority order by the Matcher — never a
// chain of if-statements.
type Rule struct {
	Name                string
	Priority            int
	ConfidenceThreshold  float64
	AmountTolerance      float64 // fraction of invoice.amount_due
	DateWindowDays       int
	RequiredSignals      []Signal
}

func (r Rule) requires(s Signal) bool {
	for _, x := range r.RequiredSignals {
		if x == s {
			return true
		}
	}
	return false
}

// DefaultRules is the priority-ordered rule set a Matcher uses absent an
// operator-supplied override, grounded on the same priority-band shape
// (highest priority first) the wider corpus uses for business rules.
var DefaultRules = []Rule{
	{
		Name: "exact_amount_and_reference", Priority: 100, ConfidenceThreshold: 0.9,
		AmountTolerance: 0.01, DateWindowDays: 60,
		RequiredSignals: []Signal{SignalAmount, SignalReference, SignalDate},
	},
	{
		Name: "exact_amount_and_customer", Priority: 90, ConfidenceThreshold: 0.85,
		AmountTolerance: 0.01, DateWindowDays: 90,
		RequiredSignals: []Signal{SignalAmount, SignalCustomer, SignalDate},
	},
	{
		Name: "fuzzy_reference", Priority: 70, ConfidenceThreshold: 0.75,
		AmountTolerance: 0.02, DateWindowDays: 90,
		RequiredSignals: []Signal{SignalAmount, SignalReference},
	},
	{
		Name: "partial_payment", Priority: 50, ConfidenceThreshold: 0.7,
		AmountTolerance: 0.5, DateWindowDays: 120,
		RequiredSignals: []Signal{SignalPartial, SignalCustomer, SignalDate},
	},
	{
		Name: "overpayment", Priority: 40, ConfidenceThreshold: 0.7,
		AmountTolerance: 0.1, DateWindowDays: 120,
		RequiredSignals: []Signal{SignalOverpayment, SignalCustomer, SignalDate},
	},
	{
		Name: "customer_and_date_only", Priority: 10, ConfidenceThreshold: 0.75,
		AmountTolerance: 0.02, DateWindowDays: 30,
		RequiredSignals: []Signal{SignalCustomer, SignalDate},
	},
}

// scoreResult carries the combined confidence plus the allocation that
// would apply if the rule wins.
type scoreResult struct {
	confidence       float64
	amountToApply    domain.Money
	remainingPayment domain.Money
	remainingInvoice domain.Money
	matched          bool
}

// Evaluate scores one (payment, invoice) pair against rule, using res to
// resolve the customer signal. A currency mismatch fails the pair outright
// regardless of which signals the rule requires — no implicit conversion
// (§9 Open Questions).
func Evaluate(rule Rule, payment domain.Payment, invoice domain.Invoice, res *resolver.Resolver) scoreResult {
	if payment.Amount.Currency != invoice.AmountDue.Currency {
		return scoreResult{}
	}

	var sumWeighted, sumWeights float64
	allocation := defaultAllocation(payment, invoice)

	if rule.requires(SignalAmount) || rule.requires(SignalPartial) || rule.requires(SignalOverpayment) {
		factor, alloc, ok := amountFactor(rule, payment, invoice)
		if !ok {
			return scoreResult{}
		}
		weight := weightAmount
		switch {
		case rule.requires(SignalPartial):
			weight = weightPartial
		case rule.requires(SignalOverpayment):
			weight = weightOverpayment
		}
		sumWeighted += factor * weight
		sumWeights += weight
		allocation = alloc
	}

	if rule.requires(SignalCustomer) {
		factor := customerFactor(payment, invoice, res)
		if factor <= customerFactorMinimum {
			return scoreResult{}
		}
		sumWeighted += factor * weightCustomer
		sumWeights += weightCustomer
	}

	if rule.requires(SignalReference) {
		factor := referenceFactor(payment, invoice)
		if factor < referenceFactorMinimum {
			return scoreResult{}
		}
		sumWeighted += factor * weightReference
		sumWeights += weightReference
	}

	if rule.requires(SignalDate) {
		factor := dateFactor(rule, payment, invoice)
		sumWeighted += factor * weightDate
		sumWeights += weightDate
	}

	if sumWeights == 0 {
		return scoreResult{}
	}
	confidence := sumWeighted / sumWeights
	if confidence < rule.ConfidenceThreshold {
		return scoreResult{}
	}

	remainingPayment := payment.Amount.Sub(allocation)
	remainingInvoice := invoice.AmountDue.Sub(allocation)
	return scoreResult{
		confidence:       confidence,
		amountToApply:    allocation,
		remainingPayment: remainingPayment,
		remainingInvoice: remainingInvoice,
		matched:          true,
	}
}

// defaultAllocation is the amount a rule applies absent an amount-shaped
// signal (SignalAmount/SignalPartial/SignalOverpayment) to refine it:
// min(payment.amount, invoice.amount_due), so a rule like
// customer_and_date_only still allocates money instead of matching for
// zero and silently dropping both sides from the pool. A currency
// mismatch allocates nothing; Evaluate rejects such pairs before any
// allocation is computed.
func defaultAllocation(payment domain.Payment, invoice domain.Invoice) domain.Money {
	if payment.Amount.Currency != invoice.AmountDue.Currency {
		return domain.Money{Currency: payment.Amount.Currency}
	}
	if payment.Amount.Minor < invoice.AmountDue.Minor {
		return payment.Amount
	}
	return invoice.AmountDue
}

func amountFactor(rule Rule, payment domain.Payment, invoice domain.Invoice) (float64, domain.Money, bool) {
	if payment.Amount.Currency != invoice.AmountDue.Currency {
		return 0, domain.Money{}, false
	}
	due := invoice.AmountDue.Float64()
	paid := payment.Amount.Float64()
	d := math.Abs(paid - due)
	tol := due * rule.AmountTolerance
	eps := 0.01

	switch {
	case d <= tol:
		factor := 1 - d/math.Max(due, eps)
		applied := payment.Amount
		if payment.Amount.Minor > invoice.AmountDue.Minor {
			applied = invoice.AmountDue
		}
		return factor, applied, true
	case rule.requires(SignalPartial) && paid < due:
		return 0.8, payment.Amount, true
	case rule.requires(SignalOverpayment) && paid > due:
		overpayRatio := (paid - due) / math.Max(due, eps)
		if overpayRatio > rule.AmountTolerance {
			return 0, domain.Money{}, false
		}
		return math.Max(0.6, 1-overpayRatio), invoice.AmountDue, true
	default:
		return 0, domain.Money{}, false
	}
}

func customerFactor(payment domain.Payment, invoice domain.Invoice, res *resolver.Resolver) float64 {
	result := res.Resolve(payment.Counterparty)
	if !result.Matched || result.CustomerID != invoice.CustomerRef {
		return 0
	}
	return result.Confidence
}

func referenceFactor(payment domain.Payment, invoice domain.Invoice) float64 {
	haystack := strings.ToUpper(payment.Reference + " " + payment.Memo)
	number := strings.ToUpper(invoice.InvoiceNumber)
	ref := strings.ToUpper(invoice.Reference)

	if number != "" && strings.Contains(haystack, number) {
		return 1.0
	}
	if ref != "" && strings.Contains(haystack, ref) {
		return 1.0
	}

	best := 0.0
	for _, candidate := range []string{number, ref} {
		if candidate == "" {
			continue
		}
		if ratio := partialRatio(haystack, candidate); ratio > best {
			best = ratio
		}
	}
	return best
}

// partialRatio finds the best Levenshtein-derived similarity of candidate
// against any substring of haystack the same length as candidate — a
// fuzzy "is candidate present somewhere in this free text" check.
func partialRatio(haystack, candidate string) float64 {
	if len(candidate) == 0 {
		return 0
	}
	if len(haystack) <= len(candidate) {
		return similarity(haystack, candidate)
	}
	best := 0.0
	for i := 0; i+len(candidate) <= len(haystack); i++ {
		window := haystack[i : i+len(candidate)]
		if r := similarity(window, candidate); r > best {
			best = r
		}
	}
	return best
}

func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	return 1 - float64(dist)/float64(maxLen)
}

func dateFactor(rule Rule, payment domain.Payment, invoice domain.Invoice) float64 {
	window := rule.DateWindowDays
	if window <= 0 {
		window = 1
	}
	days := math.Abs(payment.ValueDate.Sub(invoice.IssueDate).Hours() / 24)
	factor := 1 - days/float64(window)
	if factor < 0 {
		return 0
	}
	return factor
}
