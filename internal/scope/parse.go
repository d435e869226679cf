package scope

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/gyeh/readmitstats/internal/normalize"
)

var (
	// ErrNoFragment means the response did not hold exactly one $$$-fenced SQL fragment.
	ErrNoFragment = errors.New("no fenced SQL fragment in response")
	// ErrNoWhereClause means the fragment had no WHERE clause.
	ErrNoWhereClause = errors.New("no WHERE clause in generated SQL")
	// ErrUnsupportedCondition means the WHERE clause used something outside the
	// allowed grammar.
	ErrUnsupportedCondition = errors.New("unsupported condition in generated SQL")
	// ErrTooBroad means the filter referenced too many diagnosis groups.
	ErrTooBroad = errors.New("filter matches too many diagnosis groups")
)

var (
	fenceRE   = regexp.MustCompile(`(?s)\${3}(.*?)\${3}`)
	commentRE = regexp.MustCompile(`--[^\n]*`)
	spaceRE   = regexp.MustCompile(`[ \t\r\n;]+`)
	selectRE  = regexp.MustCompile(`(?i)^select\s`)
	whereRE   = regexp.MustCompile(`(?i)\bwhere\s+(.+)`)
)

// Extract returns the single fenced SQL fragment in a service response with
// comments removed and whitespace and semicolons collapsed.
func Extract(content string) (string, error) {
	m := fenceRE.FindAllStringSubmatch(content, -1)
	if len(m) != 1 {
		return "", fmt.Errorf("%w: found %d", ErrNoFragment, len(m))
	}
	sql := Clean(m[0][1])
	if sql == "" {
		return "", fmt.Errorf("%w: fragment is empty", ErrNoFragment)
	}
	if !selectRE.MatchString(sql) {
		return "", fmt.Errorf("%w: fragment is not a SELECT", ErrUnsupportedCondition)
	}
	return sql, nil
}

// Clean strips -- comments and collapses runs of whitespace and semicolons.
func Clean(sql string) string {
	sql = commentRE.ReplaceAllString(sql, "")
	return strings.TrimSpace(spaceRE.ReplaceAllString(sql, " "))
}

// WhereClause returns the text after the first WHERE keyword.
func WhereClause(sql string) (string, error) {
	m := whereRE.FindStringSubmatch(sql)
	if m == nil {
		return "", ErrNoWhereClause
	}
	return strings.TrimSpace(m[1]), nil
}

// Parse extracts, cleans and parses a service response into a Predicate.
func Parse(content string) (Predicate, error) {
	sql, err := Extract(content)
	if err != nil {
		return Predicate{}, err
	}
	filter, err := WhereClause(sql)
	if err != nil {
		return Predicate{}, err
	}
	return ParseFilter(filter)
}

// ParseFilter parses WHERE-clause text. The accepted grammar is
//
//	expr := term { OR term }
//	term := "(" expr ")" | col LIKE 'str' | col = 'str' | col IN ( 'str' {, 'str'} )
//	col  := [alias .] ICD10_DGNS_CODE
//
// A trailing ORDER BY, GROUP BY or LIMIT ends the filter.
func ParseFilter(filter string) (Predicate, error) {
	toks, err := lex(filter)
	if err != nil {
		return Predicate{}, err
	}
	p := &parser{
		toks:     toks,
		prefixes: make(map[string]struct{}),
		codes:    make(map[string]struct{}),
	}
	if err := p.expr(); err != nil {
		return Predicate{}, err
	}
	end := p.pos
	if t := p.peek(); t.kind != tokEOF && !t.isKeyword("ORDER", "GROUP", "LIMIT") {
		return Predicate{}, p.unexpected(t)
	}
	text := filter
	if end < len(toks) {
		text = strings.TrimSpace(filter[:toks[end].off])
	}
	return newPredicate(p.prefixes, p.codes, text), nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokLParen
	tokRParen
	tokComma
	tokEq
	tokDot
)

type token struct {
	kind tokKind
	text string
	off  int
}

func (t token) isKeyword(words ...string) bool {
	if t.kind != tokIdent {
		return false
	}
	for _, w := range words {
		if strings.EqualFold(t.text, w) {
			return true
		}
	}
	return false
}

func lex(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case c == '=':
			toks = append(toks, token{tokEq, "=", i})
			i++
		case c == '.':
			toks = append(toks, token{tokDot, ".", i})
			i++
		case c == '\'':
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(s) {
				if s[i] == '\'' {
					if i+1 < len(s) && s[i+1] == '\'' {
						b.WriteByte('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				b.WriteByte(s[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("%w: unterminated string at offset %d", ErrUnsupportedCondition, start)
			}
			toks = append(toks, token{tokString, b.String(), start})
		case c == '_' || unicode.IsLetter(rune(c)):
			start := i
			for i < len(s) && (s[i] == '_' || unicode.IsLetter(rune(s[i])) || unicode.IsDigit(rune(s[i]))) {
				i++
			}
			toks = append(toks, token{tokIdent, s[start:i], start})
		case unicode.IsDigit(rune(c)):
			start := i
			for i < len(s) && unicode.IsDigit(rune(s[i])) {
				i++
			}
			toks = append(toks, token{tokNumber, s[start:i], start})
		default:
			return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrUnsupportedCondition, c, i)
		}
	}
	return append(toks, token{kind: tokEOF, off: len(s)}), nil
}

type parser struct {
	toks     []token
	pos      int
	prefixes map[string]struct{}
	codes    map[string]struct{}
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) unexpected(t token) error {
	if t.kind == tokEOF {
		return fmt.Errorf("%w: unexpected end of filter", ErrUnsupportedCondition)
	}
	return fmt.Errorf("%w: unexpected %q at offset %d", ErrUnsupportedCondition, t.text, t.off)
}

func (p *parser) expect(kind tokKind) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, p.unexpected(t)
	}
	return t, nil
}

func (p *parser) expr() error {
	if err := p.term(); err != nil {
		return err
	}
	for p.peek().isKeyword("OR") {
		p.next()
		if err := p.term(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) term() error {
	if p.peek().kind == tokLParen {
		p.next()
		if err := p.expr(); err != nil {
			return err
		}
		_, err := p.expect(tokRParen)
		return err
	}
	if err := p.column(); err != nil {
		return err
	}
	op := p.next()
	switch {
	case op.isKeyword("LIKE"):
		s, err := p.expect(tokString)
		if err != nil {
			return err
		}
		return p.like(s)
	case op.kind == tokEq:
		s, err := p.expect(tokString)
		if err != nil {
			return err
		}
		return p.exact(s)
	case op.isKeyword("IN"):
		if _, err := p.expect(tokLParen); err != nil {
			return err
		}
		for {
			s, err := p.expect(tokString)
			if err != nil {
				return err
			}
			if err := p.exact(s); err != nil {
				return err
			}
			if p.peek().kind == tokComma {
				p.next()
				continue
			}
			_, err = p.expect(tokRParen)
			return err
		}
	}
	return p.unexpected(op)
}

func (p *parser) column() error {
	t, err := p.expect(tokIdent)
	if err != nil {
		return err
	}
	if p.peek().kind == tokDot {
		p.next()
		if t, err = p.expect(tokIdent); err != nil {
			return err
		}
	}
	if !strings.EqualFold(t.text, DiagnosisColumn) {
		return fmt.Errorf("%w: column %q is not %s", ErrUnsupportedCondition, t.text, DiagnosisColumn)
	}
	return nil
}

func (p *parser) like(t token) error {
	pattern := strings.TrimSpace(t.text)
	body, isPrefix := strings.CutSuffix(pattern, "%")
	if strings.ContainsAny(body, "%_") {
		return fmt.Errorf("%w: pattern %q is not a plain prefix", ErrUnsupportedCondition, t.text)
	}
	code := normalize.Code(body)
	if !isPrefix {
		return p.addExact(code, t)
	}
	p.prefixes[code] = struct{}{}
	return nil
}

func (p *parser) exact(t token) error {
	if strings.ContainsAny(t.text, "%_") {
		return fmt.Errorf("%w: %q is not a diagnosis code", ErrUnsupportedCondition, t.text)
	}
	return p.addExact(normalize.Code(t.text), t)
}

func (p *parser) addExact(code string, t token) error {
	if code == "" {
		return fmt.Errorf("%w: empty code at offset %d", ErrUnsupportedCondition, t.off)
	}
	p.codes[code] = struct{}{}
	return nil
}
