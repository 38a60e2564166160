package resolver

import "strings"

// Phase is one registered normalization step. New equivalences (stopwords,
// suffix pairs) are added by extending the data a phase consults, never by
// adding a new code path — keeps the resolution order in §4.3 stable as the
// alias universe grows.
type Phase interface {
	Apply(s string) string
}

// Normalizer runs an ordered list of phases over a raw counterparty name
// before it is compared against the canonical/alias universe.
type Normalizer struct {
	phases []Phase
}

// NewNormalizer builds the default case-fold -> digit-run-strip ->
// stopword-strip -> suffix-canonicalize -> whitespace-collapse pipeline.
func NewNormalizer(stopwords []string, suffixEquivalences map[string]string) *Normalizer {
	return &Normalizer{
		phases: []Phase{
			caseFold{},
			digitRunStrip{minLength: 4},
			stopwordStrip{set: toSet(stopwords)},
			suffixCanonicalize{equivalences: suffixEquivalences},
			whitespaceCollapse{},
		},
	}
}

func (n *Normalizer) Normalize(s string) string {
	for _, p := range n.phases {
		s = p.Apply(s)
	}
	return s
}

type caseFold struct{}

func (caseFold) Apply(s string) string { return strings.ToUpper(s) }

// digitRunStrip removes digit runs of MinLength or more, the pattern
// transaction ids and reference numbers show up as inside free-text names.
type digitRunStrip struct{ minLength int }

func (d digitRunStrip) Apply(s string) string {
	var b strings.Builder
	runStart := -1
	flush := func(end int) {
		if runStart == -1 {
			return
		}
		if end-runStart < d.minLength {
			b.WriteString(s[runStart:end])
		}
		runStart = -1
	}
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if runStart == -1 {
				runStart = i
			}
			continue
		}
		flush(i)
		b.WriteRune(r)
	}
	flush(len(s))
	return b.String()
}

type stopwordStrip struct{ set map[string]bool }

func (sw stopwordStrip) Apply(s string) string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		if !sw.set[f] {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}

// suffixCanonicalize rewrites business-suffix variants (LTD -> LIMITED,
// CO -> COMPANY, ...) to one canonical spelling, applied symmetrically
// so either spelling compares equal.
type suffixCanonicalize struct{ equivalences map[string]string }

func (sc suffixCanonicalize) Apply(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if canon, ok := sc.equivalences[f]; ok {
			fields[i] = canon
		}
	}
	return strings.Join(fields, " ")
}

type whitespaceCollapse struct{}

func (whitespaceCollapse) Apply(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToUpper(w)] = true
	}
	return set
}

// DefaultStopwords are remittance-channel noise tokens stripped before
// comparison.
var DefaultStopwords = []string{"MPESA", "FROM", "TO", "PAYMENT", "TRANSFER", "REF"}

// DefaultSuffixEquivalences canonicalizes common business-entity suffixes.
var DefaultSuffixEquivalences = map[string]string{
	"LTD":     "LIMITED",
	"CO":      "COMPANY",
	"CORP":    "CORPORATION",
	"INC":     "INCORPORATED",
	"INTL":    "INTERNATIONAL",
	"GRP":     "GROUP",
}
