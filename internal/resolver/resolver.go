// Package resolver implements the Customer Alias Resolver: mapping a
// payment's counterparty fragment (name/phone/account) to a canonical
// customer id with a confidence score and the method that produced it.
package resolver

import (
	"context"
	"errors"
	"sort"

	"github.com/agnivade/levenshtein"

	pipz "github.com/zoobzio/cashapp/internal/pipeline"

	"github.com/zoobzio/cashapp/internal/domain"
)

// errNoMatch signals a resolution stage found nothing, telling the
// fallback chain to try the next method down the priority order.
var errNoMatch = errors.New("resolver: no match at this stage")

// attempt carries one Resolve call through the fallback chain: the
// resolver snapshot and counterparty fragment are fixed inputs, result
// is filled in by whichever stage first succeeds.
type attempt struct {
	resolver *Resolver
	cp       domain.Counterparty
	normName string
	result   Result
}

// Method names the resolution step that produced a result, in priority
// order (lower index wins ties at equal confidence).
type Method string

const (
	MethodPhoneExact Method = "phone_exact"
	MethodAccountExact Method = "account_exact"
	MethodNameExact  Method = "name_exact"
	MethodAliasExact Method = "alias_exact"
	MethodAliasFuzzy Method = "alias_fuzzy"
	MethodNameFuzzy  Method = "name_fuzzy"
)

const fuzzyThreshold = 0.85

// Result is the resolver's verdict for one counterparty.
type Result struct {
	CustomerID string
	Confidence float64
	Method     Method
	Matched    bool
}

// Warning is emitted for data-quality conditions the resolver notices but
// does not treat as fatal, e.g. a phone or account shared by two
// customers.
type Warning struct {
	Kind    string
	Detail  string
}

// Resolver holds a versioned snapshot of the customer universe. A
// workflow run captures one Resolver at start and uses it for the whole
// run so that replay stays deterministic even if customers are edited
// concurrently (§5, resolver-version-capture-at-run-start).
type Resolver struct {
	version    string
	byPhone    map[string][]domain.Customer
	byAccount  map[string][]domain.Customer
	byName     map[string][]domain.Customer // normalized canonical name -> customers
	byAlias    map[string][]domain.Customer // normalized alias -> customers
	customers  []domain.Customer
	normalizer *Normalizer
	countryRule CountryRule
	warnings   []Warning
	chain      *pipz.Fallback[attempt]
}

// New builds a Resolver snapshot from the given customer set and
// normalization configuration.
func New(version string, customers []domain.Customer, normalizer *Normalizer, countryRule CountryRule) *Resolver {
	r := &Resolver{
		version:     version,
		byPhone:     map[string][]domain.Customer{},
		byAccount:   map[string][]domain.Customer{},
		byName:      map[string][]domain.Customer{},
		byAlias:     map[string][]domain.Customer{},
		customers:   customers,
		normalizer:  normalizer,
		countryRule: countryRule,
	}
	for _, c := range customers {
		for _, p := range c.Phones {
			norm, err := NormalizePhone(p, countryRule)
			if err != nil {
				continue
			}
			r.byPhone[norm] = append(r.byPhone[norm], c)
		}
		for _, a := range c.Accounts {
			r.byAccount[a] = append(r.byAccount[a], c)
		}
		r.byName[normalizer.Normalize(c.CanonicalName)] = append(r.byName[normalizer.Normalize(c.CanonicalName)], c)
		for _, alias := range c.Aliases {
			norm := normalizer.Normalize(alias)
			r.byAlias[norm] = append(r.byAlias[norm], c)
		}
	}
	r.detectCollisions()
	r.chain = pipz.NewFallback[attempt]("resolve-counterparty",
		pipz.Apply[attempt]("phone_exact", stagePhoneExact),
		pipz.Apply[attempt]("account_exact", stageAccountExact),
		pipz.Apply[attempt]("name_exact", stageNameExact),
		pipz.Apply[attempt]("alias_exact", stageAliasExact),
		pipz.Apply[attempt]("alias_fuzzy", stageAliasFuzzy),
		pipz.Apply[attempt]("name_fuzzy", stageNameFuzzy),
	)
	return r
}

func (r *Resolver) Version() string   { return r.version }
func (r *Resolver) Warnings() []Warning { return r.warnings }

func (r *Resolver) detectCollisions() {
	for key, group := range r.byPhone {
		if len(group) > 1 {
			r.warnings = append(r.warnings, Warning{Kind: "phone_collision", Detail: key})
		}
	}
	for key, group := range r.byAccount {
		if len(group) > 1 {
			r.warnings = append(r.warnings, Warning{Kind: "account_collision", Detail: key})
		}
	}
}

// Resolve runs the six-step resolution order from §4.3, first-hit wins,
// driven by a fallback chain: each method is tried in priority order and
// the first one that matches wins, exactly the "try A, then B, then C"
// shape pipz.Fallback models.
func (r *Resolver) Resolve(cp domain.Counterparty) Result {
	a := attempt{resolver: r, cp: cp}
	if cp.Name != "" {
		a.normName = r.normalizer.Normalize(cp.Name)
	}
	out, err := r.chain.Process(context.Background(), a)
	if err != nil {
		return Result{}
	}
	return out.result
}

func stagePhoneExact(_ context.Context, a attempt) (attempt, error) {
	if a.cp.Phone == "" {
		return a, errNoMatch
	}
	norm, err := NormalizePhone(a.cp.Phone, a.resolver.countryRule)
	if err != nil {
		return a, errNoMatch
	}
	group := a.resolver.byPhone[norm]
	if len(group) == 0 {
		return a, errNoMatch
	}
	a.result = Result{CustomerID: firstByID(group), Confidence: 0.98, Method: MethodPhoneExact, Matched: true}
	return a, nil
}

func stageAccountExact(_ context.Context, a attempt) (attempt, error) {
	if a.cp.Account == "" {
		return a, errNoMatch
	}
	group := a.resolver.byAccount[a.cp.Account]
	if len(group) == 0 {
		return a, errNoMatch
	}
	a.result = Result{CustomerID: firstByID(group), Confidence: 0.95, Method: MethodAccountExact, Matched: true}
	return a, nil
}

func stageNameExact(_ context.Context, a attempt) (attempt, error) {
	if a.normName == "" {
		return a, errNoMatch
	}
	group := a.resolver.byName[a.normName]
	if len(group) == 0 {
		return a, errNoMatch
	}
	a.result = Result{CustomerID: firstByID(group), Confidence: 0.92, Method: MethodNameExact, Matched: true}
	return a, nil
}

func stageAliasExact(_ context.Context, a attempt) (attempt, error) {
	if a.normName == "" {
		return a, errNoMatch
	}
	group := a.resolver.byAlias[a.normName]
	if len(group) == 0 {
		return a, errNoMatch
	}
	a.result = Result{CustomerID: firstByID(group), Confidence: 0.90, Method: MethodAliasExact, Matched: true}
	return a, nil
}

func stageAliasFuzzy(_ context.Context, a attempt) (attempt, error) {
	if a.normName == "" {
		return a, errNoMatch
	}
	best, ratio, ok := a.resolver.bestFuzzy(a.normName, a.resolver.byAlias)
	if !ok || ratio < fuzzyThreshold {
		return a, errNoMatch
	}
	a.result = Result{CustomerID: best, Confidence: ratio, Method: MethodAliasFuzzy, Matched: true}
	return a, nil
}

func stageNameFuzzy(_ context.Context, a attempt) (attempt, error) {
	if a.normName == "" {
		return a, errNoMatch
	}
	best, ratio, ok := a.resolver.bestFuzzy(a.normName, a.resolver.byName)
	if !ok || ratio < fuzzyThreshold {
		return a, errNoMatch
	}
	a.result = Result{CustomerID: best, Confidence: ratio, Method: MethodNameFuzzy, Matched: true}
	return a, nil
}

// bestFuzzy scans an index for the highest Levenshtein-derived similarity
// ratio against target, returning the winning customer id deterministically
// (ascending id) on ties.
func (r *Resolver) bestFuzzy(target string, index map[string][]domain.Customer) (string, float64, bool) {
	var bestID string
	var bestRatio float64
	found := false
	for key, group := range index {
		ratio := similarity(target, key)
		if ratio < fuzzyThreshold {
			continue
		}
		id := firstByID(group)
		if !found || ratio > bestRatio || (ratio == bestRatio && id < bestID) {
			bestID, bestRatio, found = id, ratio, true
		}
	}
	return bestID, bestRatio, found
}

// similarity turns edit distance into a [0,1] ratio: 1 - distance/maxlen.
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

// firstByID returns the customer id from group, breaking any tie (same
// phone/account shared by several customers) by ascending id so collision
// resolution is deterministic rather than map-iteration-order dependent.
func firstByID(group []domain.Customer) string {
	ids := make([]string, len(group))
	for i, c := range group {
		ids[i] = c.ID
	}
	sort.Strings(ids)
	return ids[0]
}

// NormalizeName exposes the normalizer for callers (e.g. the match-rule
// evaluator's reference scoring) that need the same text canonicalization
// outside of full resolution.
func (r *Resolver) NormalizeName(s string) string {
	return r.normalizer.Normalize(s)
}
