package agent

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Response types
const (
	ResponseStructured = "adk_structured"
	ResponseText       = "adk_text"
	ResponsePlainText  = "plain_text"
)

// Content kinds
const (
	ContentStream = "stream"
	ContentBody   = "body"
)

// Event is one decoded agent event.
type Event struct {
	InvocationID   string
	Author         string
	Timestamp      float64
	Content        *genai.Content
	StructuredData json.RawMessage // first part's structured_data, if any
	UsageMetadata  *genai.GenerateContentResponseUsageMetadata
	Raw            json.RawMessage
}

// RawResponse is the assembled answer of one successful call.
type RawResponse struct {
	Text          string                                      `json:"-"`
	ContentKind   string                                      `json:"content_kind"`
	ResponseType  string                                      `json:"response_type"`
	EventsCount   int                                         `json:"events_count"`
	ResponseTime  time.Duration                               `json:"response_time"`
	StatusCode    int                                         `json:"status_code"`
	InvocationID  string                                      `json:"invocation_id,omitempty"`
	Author        string                                      `json:"author,omitempty"`
	Timestamp     float64                                     `json:"timestamp,omitempty"`
	UsageMetadata *genai.GenerateContentResponseUsageMetadata `json:"usage_metadata,omitempty"`
}

// The agent runtime emits camelCase keys; older builds used snake_case.
type wireEvent struct {
	InvocationID       string       `json:"invocationId"`
	InvocationIDSnake  string       `json:"invocation_id"`
	Author             string       `json:"author"`
	Timestamp          float64      `json:"timestamp"`
	Content            *wireContent `json:"content"`
	UsageMetadata      *wireUsage   `json:"usageMetadata"`
	UsageMetadataSnake *wireUsage   `json:"usage_metadata"`
}

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text           string          `json:"text"`
	StructuredData json.RawMessage `json:"structured_data"`
}

type wireUsage struct {
	PromptTokenCount          int32 `json:"promptTokenCount"`
	CandidatesTokenCount      int32 `json:"candidatesTokenCount"`
	TotalTokenCount           int32 `json:"totalTokenCount"`
	PromptTokenCountSnake     int32 `json:"prompt_token_count"`
	CandidatesTokenCountSnake int32 `json:"candidates_token_count"`
	TotalTokenCountSnake      int32 `json:"total_token_count"`
}

func (u *wireUsage) metadata() *genai.GenerateContentResponseUsageMetadata {
	if u == nil {
		return nil
	}
	m := &genai.GenerateContentResponseUsageMetadata{
		PromptTokenCount:     firstNonZero(u.PromptTokenCount, u.PromptTokenCountSnake),
		CandidatesTokenCount: firstNonZero(u.CandidatesTokenCount, u.CandidatesTokenCountSnake),
		TotalTokenCount:      firstNonZero(u.TotalTokenCount, u.TotalTokenCountSnake),
	}
	if m.TotalTokenCount == 0 {
		m.TotalTokenCount = m.PromptTokenCount + m.CandidatesTokenCount
	}
	return m
}

func firstNonZero(a, b int32) int32 {
	if a != 0 {
		return a
	}
	return b
}

// eventKeys are the top-level keys that mark an object as an agent event.
// Objects without any of them are answer payloads, not events.
var eventKeys = []string{
	"content", "author", "invocationId", "invocation_id", "usageMetadata", "usage_metadata",
}

// decodeEvent parses one JSON object as an agent event.
func decodeEvent(data []byte) (*Event, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, false
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil || !hasEventKey(keys) {
		return nil, false
	}

	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, false
	}

	event := &Event{
		InvocationID: wire.InvocationID,
		Author:       wire.Author,
		Timestamp:    wire.Timestamp,
		Raw:          json.RawMessage(append([]byte(nil), data...)),
	}
	if event.InvocationID == "" {
		event.InvocationID = wire.InvocationIDSnake
	}
	if wire.UsageMetadata != nil {
		event.UsageMetadata = wire.UsageMetadata.metadata()
	} else {
		event.UsageMetadata = wire.UsageMetadataSnake.metadata()
	}

	if wire.Content != nil {
		content := &genai.Content{Role: wire.Content.Role}
		for _, part := range wire.Content.Parts {
			content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
		}
		event.Content = content
		if len(wire.Content.Parts) > 0 {
			structured := bytes.TrimSpace(wire.Content.Parts[0].StructuredData)
			if len(structured) > 0 && !bytes.Equal(structured, []byte("null")) {
				event.StructuredData = structured
			}
		}
	}

	return event, true
}

func hasEventKey(keys map[string]json.RawMessage) bool {
	for _, key := range eventKeys {
		if _, ok := keys[key]; ok {
			return true
		}
	}
	return false
}

// decodeEventArray parses a JSON array of events and returns them in order.
// Every element must be an event; any other array is left to the extractor.
func decodeEventArray(data []byte) ([]*Event, bool) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil || len(raws) == 0 {
		return nil, false
	}
	events := make([]*Event, 0, len(raws))
	for _, raw := range raws {
		event, ok := decodeEvent(raw)
		if !ok {
			return nil, false
		}
		events = append(events, event)
	}
	return events, true
}

// Text returns the answer text carried by the event and its response type.
func (e *Event) Text() (string, string) {
	if len(e.StructuredData) > 0 {
		var compact bytes.Buffer
		if err := json.Compact(&compact, e.StructuredData); err == nil {
			return compact.String(), ResponseStructured
		}
		return string(e.StructuredData), ResponseStructured
	}

	if e.Content != nil {
		var sb strings.Builder
		for _, part := range e.Content.Parts {
			sb.WriteString(part.Text)
		}
		if sb.Len() > 0 {
			return sb.String(), ResponseText
		}
	}

	// No usable content: hand the raw event to the extractor.
	return string(e.Raw), ResponsePlainText
}

// fill copies event metadata into the response.
func (r *RawResponse) fill(event *Event) {
	r.Text, r.ResponseType = event.Text()
	r.InvocationID = event.InvocationID
	r.Author = event.Author
	r.Timestamp = event.Timestamp
	r.UsageMetadata = event.UsageMetadata
}
