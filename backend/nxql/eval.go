package nxql

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// Record is anything a query can be evaluated against.
type Record interface {
	Property(key string) (any, bool)
}

const (
	fieldPrimaryType = "ecm:primaryType"
	fieldFulltext    = "ecm:fulltext"
)

// Match reports whether the record is selected by the query's FROM and WHERE clauses.
func (q *Query) Match(r Record) bool {
	if !q.matchType(r) {
		return false
	}
	if q.Where == nil {
		return true
	}
	return eval(q.Where, r)
}

func (q *Query) matchType(r Record) bool {
	v, _ := r.Property(fieldPrimaryType)
	typ, _ := v.(string)
	for _, t := range q.Types {
		if t == TypeDocument || strings.EqualFold(t, typ) {
			return true
		}
	}
	return false
}

// Filter returns the matching records in ORDER BY order. The sort is stable,
// so records that compare equal keep their input order.
func Filter[R Record](q *Query, records []R) []R {
	out := make([]R, 0, len(records))
	for _, r := range records {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	if len(q.OrderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			return q.less(out[i], out[j])
		})
	}
	return out
}

func (q *Query) less(a, b Record) bool {
	for _, ob := range q.OrderBy {
		av, _ := a.Property(ob.Field)
		bv, _ := b.Property(ob.Field)
		c := compareValues(av, bv)
		if c == 0 {
			continue
		}
		if ob.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

func eval(e Expr, r Record) bool {
	switch e := e.(type) {
	case And:
		return eval(e.Left, r) && eval(e.Right, r)
	case Or:
		return eval(e.Left, r) || eval(e.Right, r)
	case Not:
		return !eval(e.X, r)
	case Cond:
		return evalCond(e, r)
	}
	return false
}

func evalCond(c Cond, r Record) bool {
	v, ok := r.Property(c.Field)
	switch c.Operator {
	case OpIsNull:
		return !ok || isEmpty(v)
	case OpIsNotNull:
		return ok && !isEmpty(v)
	}
	if !ok {
		return false
	}

	if c.Field == fieldFulltext {
		s, _ := v.(string)
		hit := matchFulltext(s, c.Values[0].Str)
		if c.Operator == OpNotEqual {
			return !hit
		}
		return hit
	}

	// Multi-valued properties: = and IN test membership.
	if list, isList := v.([]string); isList {
		contains := func(l Literal) bool {
			for _, item := range list {
				if compareLiteral(item, l) == 0 {
					return true
				}
			}
			return false
		}
		switch c.Operator {
		case OpEqual:
			return contains(c.Values[0])
		case OpNotEqual:
			return !contains(c.Values[0])
		case OpIn, OpNotIn:
			found := false
			for _, l := range c.Values {
				if contains(l) {
					found = true
					break
				}
			}
			return found == (c.Operator == OpIn)
		}
		return false
	}

	switch c.Operator {
	case OpEqual:
		return compareLiteral(v, c.Values[0]) == 0
	case OpNotEqual:
		return compareLiteral(v, c.Values[0]) != 0
	case OpLess:
		return orderable(v, c.Values[0]) && compareLiteral(v, c.Values[0]) < 0
	case OpLessOrEqual:
		return orderable(v, c.Values[0]) && compareLiteral(v, c.Values[0]) <= 0
	case OpGreater:
		return orderable(v, c.Values[0]) && compareLiteral(v, c.Values[0]) > 0
	case OpGreaterOrEqual:
		return orderable(v, c.Values[0]) && compareLiteral(v, c.Values[0]) >= 0
	case OpIn, OpNotIn:
		found := false
		for _, l := range c.Values {
			if compareLiteral(v, l) == 0 {
				found = true
				break
			}
		}
		return found == (c.Operator == OpIn)
	case OpLike, OpNotLike, OpILike, OpNotILike:
		s, _ := v.(string)
		pattern := c.Values[0].Str
		fold := c.Operator == OpILike || c.Operator == OpNotILike
		if fold {
			s, pattern = strings.ToLower(s), strings.ToLower(pattern)
		}
		hit := likeMatch([]rune(s), []rune(pattern))
		if c.Operator == OpNotLike || c.Operator == OpNotILike {
			return !hit
		}
		return hit
	case OpStartsWith:
		// Descendants only; the document at the path itself is not included.
		s, _ := v.(string)
		prefix := strings.TrimSuffix(c.Values[0].Str, "/")
		return strings.HasPrefix(s, prefix+"/")
	}
	return false
}

func isEmpty(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []string:
		return len(v) == 0
	case time.Time:
		return v.IsZero()
	}
	return false
}

// orderable reports whether an ordering comparison makes sense between v and l.
func orderable(v any, l Literal) bool {
	switch v.(type) {
	case string:
		return l.Kind == KindString
	case int, int64:
		return l.Kind == KindInt
	case time.Time:
		return l.Kind == KindTime || l.Kind == KindString
	}
	return false
}

// compareLiteral compares a property value with a literal, returning -1, 0 or 1.
// Mismatched kinds compare as not equal.
func compareLiteral(v any, l Literal) int {
	switch v := v.(type) {
	case string:
		if l.Kind != KindString {
			return -1
		}
		return strings.Compare(v, l.Str)
	case int:
		return compareInt(int64(v), l)
	case int64:
		return compareInt(v, l)
	case time.Time:
		t := l.Time
		if l.Kind == KindString {
			parsed, err := parseTime(l.Str)
			if err != nil {
				return -1
			}
			t = parsed
		} else if l.Kind != KindTime {
			return -1
		}
		return v.Compare(t)
	}
	return -1
}

func compareInt(v int64, l Literal) int {
	if l.Kind != KindInt {
		return -1
	}
	switch {
	case v < l.Int:
		return -1
	case v > l.Int:
		return 1
	}
	return 0
}

// compareValues orders two property values of the same kind.
func compareValues(a, b any) int {
	switch a := a.(type) {
	case string:
		bs, _ := b.(string)
		return strings.Compare(strings.ToLower(a), strings.ToLower(bs))
	case int:
		bi, _ := b.(int)
		return compareInt(int64(a), Literal{Int: int64(bi), Kind: KindInt})
	case time.Time:
		bt, _ := b.(time.Time)
		return a.Compare(bt)
	}
	return 0
}

const (
	likeAny = -1 // %
	likeOne = -2 // _
)

// compileLike turns a LIKE pattern into runes and wildcard markers. A
// backslash makes the rune after it literal.
func compileLike(p []rune) []rune {
	out := make([]rune, 0, len(p))
	for i := 0; i < len(p); i++ {
		switch {
		case p[i] == '\\' && i+1 < len(p):
			i++
			out = append(out, p[i])
		case p[i] == '%':
			out = append(out, likeAny)
		case p[i] == '_':
			out = append(out, likeOne)
		default:
			out = append(out, p[i])
		}
	}
	return out
}

// likeMatch implements SQL LIKE with % (any run) and _ (any single rune).
// On a mismatch it resumes from the last % seen, consuming one more rune of s,
// so the match is O(len(s)*len(p)).
func likeMatch(s, pattern []rune) bool {
	p := compileLike(pattern)
	si, pi := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(p) && p[pi] == likeAny:
			star, mark = pi, si
			pi++
		case pi < len(p) && (p[pi] == likeOne || p[pi] == s[si]):
			si++
			pi++
		case star >= 0:
			mark++
			si, pi = mark, star+1
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == likeAny {
		pi++
	}
	return pi == len(p)
}

// matchFulltext reports whether every word of query appears in text, ignoring case.
func matchFulltext(text, query string) bool {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return true
	}
	text = strings.ToLower(text)
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}
