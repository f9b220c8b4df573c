// Package search parses the search box syntax into filters and free words.
//
//	report state:project -type:Folder modified:>=2026-01-01 title:"q3 plan"
//	modified:2026-01-01..2026-02-01
package search

import (
	"strings"
	"unicode"
)

// Operator is the comparison a filter applies.
type Operator string

const (
	OpEqual          Operator = "="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpRange          Operator = ".."
)

// Filter is one key:value term.
type Filter struct {
	Key      string
	Value    string
	MaxValue string // OpRange only
	Operator Operator
	Negate   bool // -key:value
}

// Query is a parsed search box input.
type Query struct {
	Filters  []Filter
	FreeText []string
}

// IsEmpty reports whether the input had no terms.
func (q Query) IsEmpty() bool {
	return len(q.Filters) == 0 && len(q.FreeText) == 0
}

// Parse splits input on unquoted white space and classifies each token.
// A token is a filter when it has the form [-]key:value with a non-empty key
// and value; anything else, including a value with a second unquoted colon,
// is a free word.
func Parse(input string) Query {
	q := Query{Filters: []Filter{}, FreeText: []string{}}
	for _, tok := range tokenize(input) {
		if f, ok := parseFilter(tok); ok {
			q.Filters = append(q.Filters, f)
			continue
		}
		q.FreeText = append(q.FreeText, unquote(tok))
	}
	return q
}

func parseFilter(tok string) (Filter, bool) {
	var f Filter
	body := tok
	if rest, ok := strings.CutPrefix(body, "-"); ok {
		f.Negate = true
		body = rest
	}
	key, val, ok := strings.Cut(body, ":")
	if !ok || key == "" || val == "" || strings.ContainsAny(key, `"'`) {
		return Filter{}, false
	}
	if strings.Contains(val, ":") && !isQuoted(val) {
		return Filter{}, false
	}
	f.Key = strings.ToLower(key)

	if lo, hi, ok := strings.Cut(val, ".."); ok && !isQuoted(val) {
		if lo == "" || hi == "" {
			return Filter{}, false
		}
		f.Operator = OpRange
		f.Value, f.MaxValue = unquote(lo), unquote(hi)
		return f, true
	}

	f.Operator = OpEqual
	// Two-character operators first so that ">=" is not read as ">".
	for _, op := range []Operator{OpGreaterOrEqual, OpLessOrEqual, OpGreater, OpLess} {
		if rest, ok := strings.CutPrefix(val, string(op)); ok {
			f.Operator = op
			val = rest
			break
		}
	}
	f.Value = unquote(val)
	if f.Value == "" {
		return Filter{}, false
	}
	return f, true
}

// tokenize splits on white space outside single or double quotes. Quotes are
// kept in the tokens.
func tokenize(input string) []string {
	var (
		tokens []string
		cur    strings.Builder
		quote  rune
	)
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range input {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case unicode.IsSpace(r):
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return tokens
}

func isQuoted(s string) bool {
	return len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0]
}

func unquote(s string) string {
	if isQuoted(s) {
		return s[1 : len(s)-1]
	}
	return s
}
