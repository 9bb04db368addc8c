package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/MatusBehul/veloryn/internal/metrics"
)

const maxLineSize = 16 * 1024 * 1024

type assembled struct {
	last     *Event
	usage    *Event // most recent event carrying usage metadata
	events   int
	buffered strings.Builder
}

func (a *assembled) add(event *Event) {
	a.last = event
	a.events++
	if event.UsageMetadata != nil {
		a.usage = event
	}
	metrics.StreamEventsTotal.Inc()
}

func (a *assembled) response(kind string) *RawResponse {
	resp := &RawResponse{ContentKind: kind, EventsCount: a.events}
	if a.last == nil {
		resp.Text = a.buffered.String()
		resp.ResponseType = ResponsePlainText
		return resp
	}
	resp.fill(a.last)
	if resp.UsageMetadata == nil && a.usage != nil {
		resp.UsageMetadata = a.usage.UsageMetadata
	}
	return resp
}

// readStream consumes a text/event-stream body. Lines are scanned on a
// separate goroutine so a cancelled ctx returns immediately.
func readStream(ctx context.Context, body io.Reader) (*RawResponse, error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		errc <- scanner.Err()
	}()

	var acc assembled
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-errc; err != nil {
					return nil, fmt.Errorf("failed to read event stream: %w", err)
				}
				return acc.response(ContentStream), nil
			}
			acc.consume(line)
		}
	}
}

func (a *assembled) consume(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if data, ok := strings.CutPrefix(line, "data:"); ok {
		data = strings.TrimSpace(data)
		if event, ok := decodeEvent([]byte(data)); ok {
			a.add(event)
			return
		}
		line = data
	}

	a.buffered.WriteString(line)
	a.buffered.WriteString("\n")
}

// readBody handles a non-stream body: one event, an array of events, or text.
func readBody(body []byte) *RawResponse {
	var acc assembled
	if event, ok := decodeEvent(body); ok {
		acc.add(event)
	} else if events, ok := decodeEventArray(body); ok {
		for _, event := range events {
			acc.add(event)
		}
	} else {
		acc.buffered.Write(body)
	}
	return acc.response(ContentBody)
}
