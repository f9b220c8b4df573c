package nxql

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Operator defines the type of comparison for a condition.
type Operator string

const (
	OpEqual          Operator = "="
	OpNotEqual       Operator = "!="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLike           Operator = "LIKE"
	OpNotLike        Operator = "NOT LIKE"
	OpILike          Operator = "ILIKE"
	OpNotILike       Operator = "NOT ILIKE"
	OpIn             Operator = "IN"
	OpNotIn          Operator = "NOT IN"
	OpStartsWith     Operator = "STARTSWITH"
	OpIsNull         Operator = "IS NULL"
	OpIsNotNull      Operator = "IS NOT NULL"
)

// TypeDocument matches every document type in a FROM clause.
const TypeDocument = "Document"

// Literal is a constant on the right-hand side of a condition.
type Literal struct {
	Str  string
	Int  int64
	Time time.Time
	Kind LiteralKind
}

type LiteralKind int

const (
	KindString LiteralKind = iota
	KindInt
	KindTime
)

func (l Literal) String() string {
	switch l.Kind {
	case KindInt:
		return strconv.FormatInt(l.Int, 10)
	case KindTime:
		return "TIMESTAMP '" + l.Time.Format(time.RFC3339) + "'"
	}
	return strconv.Quote(l.Str)
}

// Expr is a node of the WHERE clause.
type Expr interface {
	String() string
}

// And is true when both sides are true.
type And struct{ Left, Right Expr }

// Or is true when either side is true.
type Or struct{ Left, Right Expr }

// Not negates its operand.
type Not struct{ X Expr }

// Cond compares a field with one or more literals.
type Cond struct {
	Field    string
	Operator Operator
	Values   []Literal
}

func (e And) String() string { return "(" + e.Left.String() + " AND " + e.Right.String() + ")" }
func (e Or) String() string  { return "(" + e.Left.String() + " OR " + e.Right.String() + ")" }
func (e Not) String() string { return "NOT " + e.X.String() }
func (e Cond) String() string {
	switch e.Operator {
	case OpIsNull, OpIsNotNull:
		return e.Field + " " + string(e.Operator)
	case OpIn, OpNotIn:
		vals := make([]string, len(e.Values))
		for i, v := range e.Values {
			vals[i] = v.String()
		}
		return e.Field + " " + string(e.Operator) + " (" + strings.Join(vals, ", ") + ")"
	}
	return e.Field + " " + string(e.Operator) + " " + e.Values[0].String()
}

// OrderBy is one sort key.
type OrderBy struct {
	Field string
	Desc  bool
}

// Query represents a parsed NXQL statement.
type Query struct {
	Select  []string // nil means *
	Types   []string
	Where   Expr // nil when there is no WHERE clause
	OrderBy []OrderBy
}

// SyntaxError reports a parse failure and the byte offset where it happened.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("nxql: %s at position %d", e.Msg, e.Pos)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// keyword reports whether the token is the given keyword, case-insensitively.
func (t token) keyword(k string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, k)
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == ':' || r == '.'
}

// tokenize splits the input into identifiers, quoted strings, numbers and punctuation.
// Quoted strings accept both doubled quotes and backslash escapes.
func tokenize(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	offsets := make([]int, len(runes)+1)
	o := 0
	for i, r := range runes {
		offsets[i] = o
		o += len(string(r))
	}
	offsets[len(runes)] = o

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'' || r == '"':
			quote := r
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(runes) {
				c := runes[i]
				if c == '\\' && i+1 < len(runes) {
					b.WriteRune(runes[i+1])
					i += 2
					continue
				}
				if c == quote {
					if i+1 < len(runes) && runes[i+1] == quote {
						b.WriteRune(quote)
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				b.WriteRune(c)
				i++
			}
			if !closed {
				return nil, &SyntaxError{Pos: offsets[start], Msg: "unterminated string"}
			}
			tokens = append(tokens, token{kind: tokString, text: b.String(), pos: offsets[start]})
		case unicode.IsDigit(r):
			start := i
			for i < len(runes) && unicode.IsDigit(runes[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(runes[start:i]), pos: offsets[start]})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: string(runes[start:i]), pos: offsets[start]})
		default:
			start := i
			two := ""
			if i+1 < len(runes) {
				two = string(runes[i : i+2])
			}
			switch two {
			case "!=", "<>", "<=", ">=":
				tokens = append(tokens, token{kind: tokPunct, text: two, pos: offsets[start]})
				i += 2
				continue
			}
			switch r {
			case '(', ')', ',', '*', '=', '<', '>', '-':
				tokens = append(tokens, token{kind: tokPunct, text: string(r), pos: offsets[start]})
				i++
			default:
				return nil, &SyntaxError{Pos: offsets[start], Msg: fmt.Sprintf("unexpected character %q", r)}
			}
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: offsets[len(runes)]})
	return tokens, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expectKeyword(k string) error {
	t := p.next()
	if !t.keyword(k) {
		return p.errorf(t, "expected %s", k)
	}
	return nil
}

func (p *parser) acceptPunct(s string) bool {
	if t := p.peek(); t.kind == tokPunct && t.text == s {
		p.pos++
		return true
	}
	return false
}

func (p *parser) acceptKeyword(k string) bool {
	if p.peek().keyword(k) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) ident() (string, error) {
	t := p.next()
	if t.kind != tokIdent {
		return "", p.errorf(t, "expected identifier")
	}
	return t.text, nil
}

// Parse parses an NXQL statement.
// It handles:
// - SELECT * or a column list FROM one or more types
// - WHERE with AND, OR, NOT and parentheses
// - comparison, LIKE/ILIKE, IN, STARTSWITH and IS [NOT] NULL conditions
// - ORDER BY with ASC/DESC
func Parse(input string) (*Query, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	q := &Query{}

	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	if !p.acceptPunct("*") {
		for {
			col, err := p.ident()
			if err != nil {
				return nil, err
			}
			q.Select = append(q.Select, col)
			if !p.acceptPunct(",") {
				break
			}
		}
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	for {
		typ, err := p.ident()
		if err != nil {
			return nil, err
		}
		q.Types = append(q.Types, typ)
		if !p.acceptPunct(",") {
			break
		}
	}

	if p.acceptKeyword("WHERE") {
		q.Where, err = p.parseOr()
		if err != nil {
			return nil, err
		}
	}

	if p.acceptKeyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			field, err := p.ident()
			if err != nil {
				return nil, err
			}
			ob := OrderBy{Field: field}
			if p.acceptKeyword("DESC") {
				ob.Desc = true
			} else {
				p.acceptKeyword("ASC")
			}
			q.OrderBy = append(q.OrderBy, ob)
			if !p.acceptPunct(",") {
				break
			}
		}
	}

	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
	return q, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("AND") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.acceptKeyword("NOT") {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{X: x}, nil
	}
	if p.acceptPunct("(") {
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.acceptPunct(")") {
			return nil, p.errorf(p.peek(), "expected )")
		}
		return x, nil
	}
	return p.parseCond()
}

func (p *parser) parseCond() (Expr, error) {
	field, err := p.ident()
	if err != nil {
		return nil, err
	}
	c := Cond{Field: field}

	t := p.next()
	switch {
	case t.kind == tokPunct:
		switch t.text {
		case "=":
			c.Operator = OpEqual
		case "!=", "<>":
			c.Operator = OpNotEqual
		case "<":
			c.Operator = OpLess
		case "<=":
			c.Operator = OpLessOrEqual
		case ">":
			c.Operator = OpGreater
		case ">=":
			c.Operator = OpGreaterOrEqual
		default:
			return nil, p.errorf(t, "unexpected %q", t.text)
		}
	case t.keyword("NOT"):
		n := p.next()
		switch {
		case n.keyword("LIKE"):
			c.Operator = OpNotLike
		case n.keyword("ILIKE"):
			c.Operator = OpNotILike
		case n.keyword("IN"):
			c.Operator = OpNotIn
		default:
			return nil, p.errorf(n, "expected LIKE, ILIKE or IN after NOT")
		}
	case t.keyword("LIKE"):
		c.Operator = OpLike
	case t.keyword("ILIKE"):
		c.Operator = OpILike
	case t.keyword("IN"):
		c.Operator = OpIn
	case t.keyword("STARTSWITH"):
		c.Operator = OpStartsWith
	case t.keyword("IS"):
		if p.acceptKeyword("NOT") {
			c.Operator = OpIsNotNull
		} else {
			c.Operator = OpIsNull
		}
		if err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, p.errorf(t, "expected operator after %s", field)
	}

	if c.Operator == OpIn || c.Operator == OpNotIn {
		if !p.acceptPunct("(") {
			return nil, p.errorf(p.peek(), "expected ( after IN")
		}
		for {
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			c.Values = append(c.Values, lit)
			if !p.acceptPunct(",") {
				break
			}
		}
		if !p.acceptPunct(")") {
			return nil, p.errorf(p.peek(), "expected )")
		}
		return c, nil
	}

	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	switch c.Operator {
	case OpLike, OpNotLike, OpILike, OpNotILike, OpStartsWith:
		if lit.Kind != KindString {
			return nil, p.errorf(t, "%s requires a string", c.Operator)
		}
	}
	c.Values = []Literal{lit}
	return c, nil
}

func (p *parser) parseLiteral() (Literal, error) {
	t := p.next()
	switch {
	case t.kind == tokString:
		return Literal{Str: t.text, Kind: KindString}, nil
	case t.kind == tokNumber:
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return Literal{}, p.errorf(t, "invalid number %q", t.text)
		}
		return Literal{Int: n, Kind: KindInt}, nil
	case t.kind == tokPunct && t.text == "-":
		n := p.next()
		if n.kind != tokNumber {
			return Literal{}, p.errorf(n, "expected number after -")
		}
		v, err := strconv.ParseInt(n.text, 10, 64)
		if err != nil {
			return Literal{}, p.errorf(n, "invalid number %q", n.text)
		}
		return Literal{Int: -v, Kind: KindInt}, nil
	case t.keyword("DATE") || t.keyword("TIMESTAMP"):
		s := p.next()
		if s.kind != tokString {
			return Literal{}, p.errorf(s, "expected quoted %s", strings.ToUpper(t.text))
		}
		tm, err := parseTime(s.text)
		if err != nil {
			return Literal{}, p.errorf(s, "invalid %s %q", strings.ToUpper(t.text), s.text)
		}
		return Literal{Time: tm, Kind: KindTime}, nil
	}
	return Literal{}, p.errorf(t, "expected literal")
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

// ValidTime reports whether s is a date literal that compares with time properties.
func ValidTime(s string) bool {
	_, err := parseTime(s)
	return err == nil
}

// EscapeLike escapes the LIKE wildcards in s so it matches literally.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

// Quote returns s as an NXQL string literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), "'", `\'`) + "'"
}
