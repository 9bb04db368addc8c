// Package extraction recovers a JSON payload from free-form model output,
// repairing truncation and common syntax slips on the way.
package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MatusBehul/veloryn/internal/models"
)

// Strategy names
const (
	StrategyFenced = "fenced"
	StrategySpan   = "span"
	StrategyAnchor = "anchor"
)

const snippetLength = 2000

// Payload is a parsed JSON value and the strategy that found it.
type Payload struct {
	Value    interface{}
	Strategy string
	Text     string // repaired JSON text that was parsed
}

// Error reports that no strategy produced parseable JSON.
type Error struct {
	Reason string
	Length int
	Head   string
	Tail   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction failed: %s (response length %d)", e.Reason, e.Length)
}

// requiredFields are the item field names used to rank candidates.
var requiredFields = append([]string{"language"}, models.AnalysisSections...)

// Extract finds the JSON payload in raw. It does not log or touch metrics.
func Extract(raw string) (*Payload, error) {
	for _, block := range fencedBlocks(raw) {
		if p, ok := parse(block, StrategyFenced); ok {
			return p, nil
		}
	}

	for _, span := range rankSpans(outermostSpans(raw)) {
		if p, ok := parse(span, StrategySpan); ok {
			return p, nil
		}
	}

	for _, candidate := range anchors(raw) {
		if p, ok := parse(candidate, StrategyAnchor); ok {
			return p, nil
		}
	}

	return nil, newError("no parseable JSON found", raw)
}

func newError(reason, raw string) *Error {
	head, tail := raw, raw
	if len(head) > snippetLength {
		head = strings.ToValidUTF8(head[:snippetLength], "")
	}
	if len(tail) > snippetLength {
		tail = strings.ToValidUTF8(tail[len(tail)-snippetLength:], "")
	}
	return &Error{Reason: reason, Length: len(raw), Head: head, Tail: tail}
}

func parse(candidate, strategy string) (*Payload, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || (candidate[0] != '[' && candidate[0] != '{') {
		return nil, false
	}

	repaired := Repair(candidate)

	var value interface{}
	if err := json.Unmarshal([]byte(repaired), &value); err != nil {
		return nil, false
	}
	return &Payload{Value: value, Strategy: strategy, Text: repaired}, true
}

// fencedBlocks returns the contents of ``` fences. A final fence with no
// closing marker runs to the end of the text.
func fencedBlocks(raw string) []string {
	var blocks []string
	rest := raw
	for {
		open := strings.Index(rest, "```")
		if open < 0 {
			return blocks
		}
		body := rest[open+3:]

		// Skip the info string (e.g. "json") up to the end of the line.
		i := 0
		for i < len(body) && isIdent(body[i]) {
			i++
		}
		body = body[i:]

		end := strings.Index(body, "```")
		if end < 0 {
			blocks = append(blocks, body)
			return blocks
		}
		blocks = append(blocks, body[:end])
		rest = body[end+3:]
	}
}

// outermostSpans returns top-level bracketed spans in order. Strings are only
// tracked inside brackets, so quotes in surrounding prose are ignored. An
// opener that is never closed yields a span running to the end of raw.
func outermostSpans(raw string) []string {
	var spans []string
	var l lexer
	depth := 0
	start := -1

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if depth == 0 {
			if c == '[' || c == '{' {
				start = i
				depth = 1
				l = lexer{}
			}
			continue
		}
		if !l.outside(c) {
			continue
		}
		switch c {
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				spans = append(spans, raw[start:i+1])
			}
		}
	}

	if depth > 0 {
		spans = append(spans, raw[start:])
	}
	return spans
}

// rankSpans orders arrays before objects and, within each group, spans that
// mention a required field first. Order is otherwise preserved.
func rankSpans(spans []string) []string {
	ranked := make([]string, 0, len(spans))
	for _, opener := range []byte{'[', '{'} {
		for _, wantField := range []bool{true, false} {
			for _, span := range spans {
				if span[0] == opener && mentionsField(span) == wantField {
					ranked = append(ranked, span)
				}
			}
		}
	}
	return ranked
}

func mentionsField(s string) bool {
	for _, field := range requiredFields {
		if strings.Contains(s, field) {
			return true
		}
	}
	return false
}

// anchors returns candidates starting at the nearest '[' and then '{' before
// the first required field name, each running to the end of raw.
func anchors(raw string) []string {
	first := -1
	for _, field := range requiredFields {
		if i := strings.Index(raw, `"`+field+`"`); i >= 0 && (first < 0 || i < first) {
			first = i
		}
	}
	if first < 0 {
		return nil
	}

	var candidates []string
	if i := strings.LastIndex(raw[:first], "["); i >= 0 {
		candidates = append(candidates, raw[i:])
	}
	if i := strings.LastIndex(raw[:first], "{"); i >= 0 {
		candidates = append(candidates, raw[i:])
	}
	return candidates
}

// FailureClass implements models.Classified.
func (e *Error) FailureClass() models.FailureClass {
	return models.FailureExtraction
}
