// Package filter implements FilterManager (spec.md §4.10): a typed OData
// filter AST that renders to strings only at the edge, sanitizing terms at
// construction time rather than render time, per the redesign note in
// spec.md §9. Grounded on
// original_source/enhanced_rag/ranking/filter_manager.py and
// original_source/enhanced_rag/retrieval/hybrid_searcher.py's term
// sanitization (the two real implementations disagree on where sanitization
// happens; this package unifies them at construction time as spec.md §9
// directs).
package filter

import (
	"fmt"
	"strings"
)

// Clause is the typed OData filter AST node. Clause.Render() produces the
// OData string only when called; no intermediate stringly-typed filter ever
// exists, per spec.md §9's "Stringly-typed OData filters" redesign note.
type Clause interface {
	Render() string
}

// NoMatch is the sentinel clause for rejected/suspicious input, per
// spec.md §4.9/§7 InjectionRejected.
var NoMatch Clause = rawClause("(1 eq 0)")

type rawClause string

func (r rawClause) Render() string { return string(r) }

type eqClause struct {
	field string
	value string
}

// Eq builds field eq 'value', escaping value by doubling single quotes.
func Eq(field, value string) Clause {
	return eqClause{field: field, value: escape(value)}
}

func (e eqClause) Render() string {
	return fmt.Sprintf("%s eq '%s'", e.field, e.value)
}

type isMatchClause struct {
	term  string
	field string
}

// IsMatch builds search.ismatch('term', 'field'). The term is sanitized by
// the caller (see SanitizeTerm) before this is constructed; IsMatch itself
// still escapes quotes so the AST is safe to render regardless of caller
// discipline.
func IsMatch(term, field string) Clause {
	return isMatchClause{term: escape(term), field: field}
}

func (m isMatchClause) Render() string {
	return fmt.Sprintf("search.ismatch('%s', '%s')", m.term, m.field)
}

type boolClause struct {
	op       string
	operands []Clause
}

// And ANDs non-nil clauses together. A single operand renders unwrapped.
func And(clauses ...Clause) Clause {
	return newBoolClause("and", clauses)
}

// Or ORs non-nil clauses together.
func Or(clauses ...Clause) Clause {
	return newBoolClause("or", clauses)
}

func newBoolClause(op string, clauses []Clause) Clause {
	var nonNil []Clause
	for _, c := range clauses {
		if c != nil {
			nonNil = append(nonNil, c)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	if len(nonNil) == 1 {
		return nonNil[0]
	}
	return boolClause{op: op, operands: nonNil}
}

func (b boolClause) Render() string {
	parts := make([]string, len(b.operands))
	for i, c := range b.operands {
		parts[i] = "(" + c.Render() + ")"
	}
	return strings.Join(parts, " "+b.op+" ")
}

type notClause struct {
	inner Clause
}

func Not(c Clause) Clause {
	if c == nil {
		return nil
	}
	return notClause{inner: c}
}

func (n notClause) Render() string {
	return "not (" + n.inner.Render() + ")"
}

// escape double-quotes single quotes, per the OData filter mini-language
// (glossary entry "OData filter").
func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// suspiciousSubstrings is the scan list from spec.md §4.9, unioning
// hybrid_searcher.py's list with filter_manager.py's (the latter lacks the
// guard entirely; spec.md §9 asks reimplementers to make this explicit).
var suspiciousSubstrings = []string{
	" or ", " and ", " eq ", " ne ", " gt ", " lt ", " ge ", " le ",
	"(", ")", "--", "/*", "*/", ";",
}

const maxTermLength = 200

// SanitizeTerm clamps a term to 200 chars, strips to ASCII 32-126, and
// returns (term, true) if clean or ("", false) if it contains a suspicious
// substring — callers then use filter.NoMatch for the latter, per
// spec.md §4.9/§7.
func SanitizeTerm(term string) (string, bool) {
	if len(term) > maxTermLength {
		term = term[:maxTermLength]
	}

	var b strings.Builder
	for _, r := range term {
		if r >= 32 && r <= 126 {
			b.WriteRune(r)
		}
	}
	clamped := b.String()

	lower := strings.ToLower(clamped)
	for _, bad := range suspiciousSubstrings {
		if strings.Contains(lower, bad) {
			return "", false
		}
	}
	return clamped, true
}

// ExactTermClause builds the AND-of-ORs clause for one exact term across
// the given fields, per spec.md §4.9: the term ORs across fields, terms AND
// together. Suspicious terms render as NoMatch.
func ExactTermClause(term string, fields []string) Clause {
	clean, ok := SanitizeTerm(term)
	if !ok {
		return NoMatch
	}
	ors := make([]Clause, len(fields))
	for i, f := range fields {
		ors[i] = IsMatch(clean, f)
	}
	return Or(ors...)
}

// ExactTermsClause ANDs ExactTermClause across multiple terms.
func ExactTermsClause(terms []string, fields []string) Clause {
	clauses := make([]Clause, len(terms))
	for i, t := range terms {
		clauses[i] = ExactTermClause(t, fields)
	}
	return And(clauses...)
}

// PathExclusionClause builds `not search.ismatch('pattern', 'file_path')`
// for each exclusion pattern, ANDed together — the general, configuration-
// driven replacement for the hard-coded mcprag/venv carve-out (REDESIGN
// FLAG, spec.md §9; see SPEC_FULL.md §C and DESIGN.md Open Question 3).
func PathExclusionClause(patterns []string) Clause {
	clauses := make([]Clause, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		clauses = append(clauses, Not(IsMatch(p, "file_path")))
	}
	return And(clauses...)
}

// Manager is FilterManager: builds safe OData clauses for repository,
// language, framework, exact/exclude terms.
type Manager struct {
	// PathExclusions replaces the hard-coded repository-name carve-out with
	// a general rule applied to every repository clause.
	PathExclusions []string
}

func NewManager(pathExclusions []string) *Manager {
	return &Manager{PathExclusions: pathExclusions}
}

// Repository builds the repository clause: ORs exact match with
// search.ismatch on repository and file_path to accommodate bare-name and
// owner/repo conventions (spec.md §4.10), ANDed with the general path
// exclusions for every repository, not just one hard-coded name.
func (m *Manager) Repository(repo string) Clause {
	var base Clause
	if strings.Contains(repo, "/") {
		base = Eq("repository", repo)
	} else {
		base = Or(
			Eq("repository", repo),
			IsMatch(repo, "repository"),
			IsMatch(repo, "file_path"),
		)
	}
	excl := PathExclusionClause(m.PathExclusions)
	return And(base, excl)
}

func (m *Manager) Language(lang string) Clause {
	return Eq("language", lang)
}

func (m *Manager) Framework(framework string) Clause {
	return Eq("framework", framework)
}

func (m *Manager) ExactTerms(terms []string, fields []string) Clause {
	return ExactTermsClause(terms, fields)
}

func (m *Manager) ExcludeTerms(terms []string, fields []string) Clause {
	return Not(ExactTermsClause(terms, fields))
}

// CombineAnd ANDs non-nil clauses together, dropping nils, per
// filter_manager.py's combine_and.
func (m *Manager) CombineAnd(clauses ...Clause) Clause {
	return And(clauses...)
}

// Render renders a clause, or "" for a nil clause (no filter).
func Render(c Clause) string {
	if c == nil {
		return ""
	}
	return c.Render()
}
