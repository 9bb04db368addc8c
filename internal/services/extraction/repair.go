package extraction

import (
	"encoding/json"
	"strings"
)

// RepairStep rewrites almost-JSON text. Steps only touch bytes outside string
// literals, so valid JSON passes through unchanged.
type RepairStep struct {
	Name string
	Fn   func(string) string
}

// RepairSteps run in order by Repair.
var RepairSteps = []RepairStep{
	{"close_string", closeUnterminatedString},
	{"drop_dangling_member", dropDanglingMember},
	{"quote_bare_keys", quoteBareKeys},
	{"collapse_commas", collapseDoubledCommas},
	{"insert_missing_commas", insertMissingCommas},
	{"strip_trailing_commas", stripTrailingCommas},
	{"drop_trailing_text", dropTrailingText},
	{"append_closers", appendClosers},
}

// Repair applies every repair step to s.
func Repair(s string) string {
	for _, step := range RepairSteps {
		s = step.Fn(s)
	}
	return s
}

// lexer tracks whether the scan position is inside a string literal.
type lexer struct {
	inString bool
	escaped  bool
}

// outside advances over c and reports whether c is structural text.
// Quote characters count as part of the string.
func (l *lexer) outside(c byte) bool {
	if l.inString {
		switch {
		case l.escaped:
			l.escaped = false
		case c == '\\':
			l.escaped = true
		case c == '"':
			l.inString = false
		}
		return false
	}
	if c == '"' {
		l.inString = true
		return false
	}
	return true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdent(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '-'
}

func closeUnterminatedString(s string) string {
	var l lexer
	for i := 0; i < len(s); i++ {
		l.outside(s[i])
	}
	if !l.inString {
		return s
	}
	if l.escaped {
		s = s[:len(s)-1]
	} else if i := partialUnicodeEscape(s); i >= 0 {
		s = s[:i]
	}
	return s + `"`
}

// partialUnicodeEscape returns the index of a trailing \u escape with fewer
// than four hex digits, or -1.
func partialUnicodeEscape(s string) int {
	i := len(s)
	for i > 0 && len(s)-i < 3 && isHex(s[i-1]) {
		i--
	}
	if i < 2 || s[i-1] != 'u' || s[i-2] != '\\' {
		return -1
	}
	slash := i - 2
	n := 0
	for j := slash; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	if n%2 == 0 {
		return -1
	}
	return slash
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

type token struct {
	kind      byte // one of {}[],: or 's' string, 'l' literal
	start     int
	end       int
	container byte // innermost open bracket when the token was read
}

func tokenize(s string) []token {
	var tokens []token
	var stack []byte

	top := func() byte {
		if len(stack) == 0 {
			return 0
		}
		return stack[len(stack)-1]
	}

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case isSpace(c):
			i++
		case c == '"':
			j := i + 1
			for j < len(s) {
				if s[j] == '\\' {
					j += 2
					continue
				}
				if s[j] == '"' {
					j++
					break
				}
				j++
			}
			if j > len(s) {
				j = len(s)
			}
			tokens = append(tokens, token{kind: 's', start: i, end: j, container: top()})
			i = j
		case c == '{' || c == '[':
			tokens = append(tokens, token{kind: c, start: i, end: i + 1, container: top()})
			stack = append(stack, c)
			i++
		case c == '}' || c == ']':
			tokens = append(tokens, token{kind: c, start: i, end: i + 1, container: top()})
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			i++
		case c == ',' || c == ':':
			tokens = append(tokens, token{kind: c, start: i, end: i + 1, container: top()})
			i++
		default:
			j := i
			for j < len(s) && !isSpace(s[j]) && !strings.ContainsRune("{}[],:\"", rune(s[j])) {
				j++
			}
			tokens = append(tokens, token{kind: 'l', start: i, end: j, container: top()})
			i = j
		}
	}
	return tokens
}

// dropDanglingMember removes an incomplete trailing member: a dangling comma,
// a key with no value, or a truncated literal.
func dropDanglingMember(s string) string {
	for {
		tokens := tokenize(s)
		n := len(tokens)
		if n == 0 {
			return s
		}

		last := tokens[n-1]
		var prev byte
		if n >= 2 {
			prev = tokens[n-2].kind
		}

		cut := -1
		switch {
		case last.kind == ',':
			cut = last.start
		case last.kind == ':':
			cut = last.start
			if prev == 's' || prev == 'l' {
				cut = tokens[n-2].start
			}
		case (last.kind == 's' || last.kind == 'l') && last.container == '{' && (prev == '{' || prev == ','):
			cut = last.start
		case last.kind == 'l' && !json.Valid([]byte(s[last.start:last.end])):
			cut = last.start
			if prev == ':' && n >= 3 && (tokens[n-3].kind == 's' || tokens[n-3].kind == 'l') {
				cut = tokens[n-3].start
			}
		}

		if cut < 0 {
			return s
		}
		s = strings.TrimRight(s[:cut], " \t\r\n")
	}
}

func quoteBareKeys(s string) string {
	var b strings.Builder
	var l lexer
	var stack []byte
	expectKey := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if !l.outside(c) {
			expectKey = false
			b.WriteByte(c)
			continue
		}

		switch {
		case c == '{':
			stack = append(stack, c)
			expectKey = true
		case c == '[':
			stack = append(stack, c)
			expectKey = false
		case c == '}' || c == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			expectKey = false
		case c == ',':
			expectKey = len(stack) > 0 && stack[len(stack)-1] == '{'
		case isSpace(c):
		case expectKey && isIdentStart(c):
			j := i
			for j < len(s) && isIdent(s[j]) {
				j++
			}
			k := j
			for k < len(s) && isSpace(s[k]) {
				k++
			}
			expectKey = false
			if k < len(s) && s[k] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:j])
				b.WriteByte('"')
				i = j - 1
				continue
			}
		default:
			expectKey = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

func collapseDoubledCommas(s string) string {
	var b strings.Builder
	var l lexer
	var lastSig byte

	for i := 0; i < len(s); i++ {
		c := s[i]
		if !l.outside(c) {
			lastSig = '"'
			b.WriteByte(c)
			continue
		}
		if c == ',' && lastSig == ',' {
			continue
		}
		if !isSpace(c) {
			lastSig = c
		}
		b.WriteByte(c)
	}
	return b.String()
}

// insertMissingCommas separates adjacent objects: `} {` becomes `},{`.
func insertMissingCommas(s string) string {
	var b strings.Builder
	var l lexer
	var lastSig byte

	for i := 0; i < len(s); i++ {
		c := s[i]
		if !l.outside(c) {
			lastSig = '"'
			b.WriteByte(c)
			continue
		}
		if c == '{' && lastSig == '}' {
			b.WriteByte(',')
		}
		if !isSpace(c) {
			lastSig = c
		}
		b.WriteByte(c)
	}
	return b.String()
}

func stripTrailingCommas(s string) string {
	var b strings.Builder
	var l lexer

	for i := 0; i < len(s); i++ {
		c := s[i]
		if l.outside(c) && c == ',' {
			k := i + 1
			for k < len(s) && isSpace(s[k]) {
				k++
			}
			if k < len(s) && (s[k] == '}' || s[k] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// dropTrailingText cuts everything after the first complete top-level value.
func dropTrailingText(s string) string {
	var l lexer
	depth := 0

	for i := 0; i < len(s); i++ {
		c := s[i]
		if !l.outside(c) {
			continue
		}
		switch c {
		case '{', '[':
			depth++
		case '}', ']':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				if strings.TrimSpace(s[i+1:]) == "" {
					return s
				}
				return s[:i+1]
			}
		}
	}
	return s
}

func appendClosers(s string) string {
	var l lexer
	var stack []byte

	for i := 0; i < len(s); i++ {
		c := s[i]
		if !l.outside(c) {
			continue
		}
		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(stack) == 0 {
		return s
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(s, " \t\r\n"))
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
