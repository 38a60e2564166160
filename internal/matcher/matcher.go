package matcher

import (
	"sort"

	"github.com/zoobzio/cashapp/internal/domain"
	"github.com/zoobzio/cashapp/internal/resolver"
)

const splitConfidencePenalty = 0.9 // 10% penalty, applied multiplicatively

// Matcher applies a priority-ordered rule set across a batch of payments
// and invoices, resolving splits and consolidations. It is pure: the same
// (rules, payments, invoices, resolver) always yields the same matches.
type Matcher struct {
	rules    []Rule
	resolver *resolver.Resolver
}

func New(rules []Rule, res *resolver.Resolver) *Matcher {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })
	return &Matcher{rules: sorted, resolver: res}
}

type candidate struct {
	paymentID string
	invoiceID string
	score     scoreResult
	ruleName  string
}

// Match runs the full algorithm from §4.5: rule-by-rule greedy assignment,
// then split detection and consolidation post-processing. Inputs are
// sorted by id first so the result is independent of caller-supplied
// ordering (§5 ordering guarantees, §8 property 2).
func (m *Matcher) Match(payments []domain.Payment, invoices []domain.Invoice) []domain.Match {
	payments = sortedPayments(payments)
	invoices = sortedInvoices(invoices)

	remainingPayments := map[string]domain.Payment{}
	for _, p := range payments {
		remainingPayments[p.ID] = p
	}
	remainingInvoices := map[string]domain.Invoice{}
	for _, i := range invoices {
		remainingInvoices[i.ID] = i
	}
	invoiceByID := map[string]domain.Invoice{}
	for _, i := range invoices {
		invoiceByID[i.ID] = i
	}
	paymentByID := map[string]domain.Payment{}
	for _, p := range payments {
		paymentByID[p.ID] = p
	}

	var emitted []domain.Match

	for _, rule := range m.rules {
		emitted = append(emitted, m.applyRule(rule, payments, invoices, remainingPayments, remainingInvoices)...)
	}

	emitted = detectSplits(emitted, payments, invoiceByID, m)
	emitted = finalizePaymentResiduals(emitted, paymentByID)
	emitted = consolidate(emitted, invoiceByID)

	return emitted
}

// applyRule performs one priority round: score every still-live (payment,
// invoice) pair, award each invoice to its highest-scoring payment
// (breaking ties by lexicographic payment id), then re-score and repeat.
// An invoice whose award leaves amount_due > 0 stays live with its
// amount_due shrunk to the residual rather than being retired outright —
// a later award in this same round, or a later rule round entirely, can
// still land the rest of it on a different payment, which is how two
// payments end up consolidated onto one invoice (§4.5).
func (m *Matcher) applyRule(
	rule Rule,
	orderedPayments []domain.Payment,
	orderedInvoices []domain.Invoice,
	remainingPayments map[string]domain.Payment,
	remainingInvoices map[string]domain.Invoice,
) []domain.Match {
	var matches []domain.Match
	for {
		var pairs []candidate
		for _, p := range orderedPayments {
			pay, live := remainingPayments[p.ID]
			if !live {
				continue
			}
			for _, invStatic := range orderedInvoices {
				inv, live := remainingInvoices[invStatic.ID]
				if !live {
					continue
				}
				score := Evaluate(rule, pay, inv, m.resolver)
				if score.matched {
					pairs = append(pairs, candidate{paymentID: pay.ID, invoiceID: inv.ID, score: score, ruleName: rule.Name})
				}
			}
		}

		bestByInvoice := map[string]candidate{}
		for _, c := range pairs {
			cur, ok := bestByInvoice[c.invoiceID]
			if !ok || c.score.confidence > cur.score.confidence ||
				(c.score.confidence == cur.score.confidence && c.paymentID < cur.paymentID) {
				bestByInvoice[c.invoiceID] = c
			}
		}
		if len(bestByInvoice) == 0 {
			break
		}

		// Each payment may only win one invoice per scoring pass; if a
		// payment is the best claimant of several invoices, award it the
		// highest-scoring one and let the rest re-contest next pass.
		bestByPayment := map[string]candidate{}
		for _, c := range bestByInvoice {
			cur, ok := bestByPayment[c.paymentID]
			if !ok || c.score.confidence > cur.score.confidence ||
				(c.score.confidence == cur.score.confidence && c.invoiceID < cur.invoiceID) {
				bestByPayment[c.paymentID] = c
			}
		}

		for _, c := range bestByPayment {
			inv := remainingInvoices[c.invoiceID]
			matches = append(matches, domain.Match{
				PaymentRefs:      []string{c.paymentID},
				InvoiceRefs:      []string{c.invoiceID},
				RuleName:         c.ruleName,
				Confidence:       c.score.confidence,
				AmountToApply:    c.score.amountToApply,
				RemainingPayment: c.score.remainingPayment,
				RemainingInvoice: c.score.remainingInvoice,
				Details:          map[string]string{},
			})
			delete(remainingPayments, c.paymentID)
			if c.score.remainingInvoice.Minor > 0 {
				inv.AmountDue = c.score.remainingInvoice
				remainingInvoices[c.invoiceID] = inv
			} else {
				delete(remainingInvoices, c.invoiceID)
			}
		}
	}
	return matches
}

// detectSplits finds payments with a positive residual — either left over
// after a winning match, or the full amount for a payment no rule matched
// outright against any single invoice (an overpayment spread across
// several smaller invoices never clears any one of them alone) — and
// allocates that residual across still-open invoices one award at a time,
// re-evaluating the full rule set fresh on every award against whatever
// amount_due each invoice has left. Invoice residuals tracked here are
// shared across every payment processed in this pass (not reset per
// payment), so a second payment can land on the remainder an earlier
// payment's award left on the same invoice — the consolidation half of
// §4.5, symmetric with the split half this function is named for.
func detectSplits(
	matches []domain.Match,
	payments []domain.Payment,
	invoiceByID map[string]domain.Invoice,
	m *Matcher,
) []domain.Match {
	appliedMinorByPayment := map[string]int64{}
	remainingDue := map[string]int64{}
	for id, inv := range invoiceByID {
		remainingDue[id] = inv.AmountDue.Minor
	}
	for _, match := range matches {
		if len(match.PaymentRefs) == 1 {
			appliedMinorByPayment[match.PaymentRefs[0]] += match.AmountToApply.Minor
		}
		if len(match.InvoiceRefs) == 1 {
			remainingDue[match.InvoiceRefs[0]] -= match.AmountToApply.Minor
		}
	}

	invoiceIDs := make([]string, 0, len(invoiceByID))
	for id := range invoiceByID {
		invoiceIDs = append(invoiceIDs, id)
	}
	sort.Strings(invoiceIDs)

	type award struct {
		invoiceID string
		score     scoreResult
		ruleName  string
	}

	for _, payment := range payments {
		remaining := domain.Money{
			Currency: payment.Amount.Currency,
			Minor:    payment.Amount.Minor - appliedMinorByPayment[payment.ID],
		}

		for remaining.Minor > 0 {
			var best *award
			for _, invID := range invoiceIDs {
				due := remainingDue[invID]
				if due <= 0 {
					continue
				}
				invoice := invoiceByID[invID]
				invoice.AmountDue = domain.Money{Currency: invoice.AmountDue.Currency, Minor: due}
				partialPayment := payment
				partialPayment.Amount = remaining
				for _, rule := range m.rules {
					score := Evaluate(rule, partialPayment, invoice, m.resolver)
					if !score.matched {
						continue
					}
					if best == nil || score.confidence > best.score.confidence ||
						(score.confidence == best.score.confidence && invID < best.invoiceID) {
						best = &award{invoiceID: invID, score: score, ruleName: rule.Name}
					}
					break
				}
			}
			if best == nil {
				break
			}

			due := remainingDue[best.invoiceID]
			invoice := invoiceByID[best.invoiceID]
			apply := due
			if remaining.Minor < apply {
				apply = remaining.Minor
			}
			applyMoney := domain.Money{Currency: invoice.AmountDue.Currency, Minor: apply}
			matches = append(matches, domain.Match{
				PaymentRefs:      []string{payment.ID},
				InvoiceRefs:      []string{best.invoiceID},
				RuleName:         best.ruleName + "_split",
				Confidence:       best.score.confidence * splitConfidencePenalty,
				AmountToApply:    applyMoney,
				RemainingPayment: remaining.Sub(applyMoney),
				RemainingInvoice: domain.Money{Currency: invoice.AmountDue.Currency, Minor: due - apply},
				Details:          map[string]string{},
			})
			remainingDue[best.invoiceID] -= apply
			remaining = remaining.Sub(applyMoney)
		}
	}
	return matches
}

// finalizePaymentResiduals recomputes RemainingPayment on every
// single-payment match so it reflects the true total applied across all
// matches sharing that payment id (payment.amount − Σ amount_to_apply,
// §3), not just the allocation the match itself carried — a split
// payment's earlier matches would otherwise keep showing their own
// snapshot residual instead of the amount left after every split.
func finalizePaymentResiduals(matches []domain.Match, paymentByID map[string]domain.Payment) []domain.Match {
	appliedMinor := map[string]int64{}
	for _, match := range matches {
		if len(match.PaymentRefs) != 1 {
			continue
		}
		appliedMinor[match.PaymentRefs[0]] += match.AmountToApply.Minor
	}
	for i := range matches {
		if len(matches[i].PaymentRefs) != 1 {
			continue
		}
		payment := paymentByID[matches[i].PaymentRefs[0]]
		matches[i].RemainingPayment = domain.Money{
			Currency: payment.Amount.Currency,
			Minor:    payment.Amount.Minor - appliedMinor[matches[i].PaymentRefs[0]],
		}
	}
	return matches
}

// consolidate folds multiple matches against the same invoice into one,
// per §4.5. PaymentRefs always carries every contributor, Confidence is
// the arithmetic mean across the folded group, and RemainingInvoice is
// recomputed from the invoice's actual amount_due minus the group's total
// applied amount rather than reused from any one contributor's match.
func consolidate(matches []domain.Match, invoiceByID map[string]domain.Invoice) []domain.Match {
	groups := map[string][]domain.Match{}
	var order []string
	for _, match := range matches {
		key := match.InvoiceRefs[0]
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], match)
	}

	var out []domain.Match
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		var refs []string
		var sumConfidence float64
		total := domain.Money{Currency: group[0].AmountToApply.Currency}
		for _, m := range group {
			refs = append(refs, m.PaymentRefs...)
			sumConfidence += m.Confidence
			total = total.Add(m.AmountToApply)
		}
		sort.Strings(refs)
		invoice := invoiceByID[key]
		out = append(out, domain.Match{
			PaymentRefs:      refs,
			InvoiceRefs:      []string{key},
			RuleName:         "consolidated",
			Confidence:       sumConfidence / float64(len(group)),
			AmountToApply:    total,
			RemainingPayment: domain.Money{Currency: total.Currency},
			RemainingInvoice: invoice.AmountDue.Sub(total),
			Details:          map[string]string{"consolidated_from": itoaLen(len(group))},
		})
	}
	return out
}

func itoaLen(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	return string(buf)
}

func sortedPayments(in []domain.Payment) []domain.Payment {
	out := make([]domain.Payment, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedInvoices(in []domain.Invoice) []domain.Invoice {
	out := make([]domain.Invoice, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
