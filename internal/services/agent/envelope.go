// Package agent talks to the remote analysis agent: it creates sessions and
// drives run_sse calls through retries, classifying every failure.
package agent

import (
	"strings"
	"time"

	"google.golang.org/genai"
)

// Envelope identifies one analysis request. It is not modified after construction.
type Envelope struct {
	AppName           string
	UserID            string
	SessionID         string
	Prompt            string
	Streaming         bool
	Ticker            string
	PreferredLanguage string
}

// NewSessionID returns daily_{ticker}_{YYYYmmdd_HHMMSS}.
func NewSessionID(ticker string, at time.Time) string {
	return "daily_" + strings.ToUpper(ticker) + "_" + at.UTC().Format("20060102_150405")
}

type sessionRequest struct {
	State map[string]interface{} `json:"state"`
}

type runRequest struct {
	AppName    string         `json:"app_name"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	NewMessage *genai.Content `json:"new_message"`
	Streaming  bool           `json:"streaming"`
}

func newRunRequest(env Envelope) runRequest {
	return runRequest{
		AppName:    env.AppName,
		UserID:     env.UserID,
		SessionID:  env.SessionID,
		NewMessage: genai.NewContentFromText(env.Prompt, genai.RoleUser),
		Streaming:  env.Streaming,
	}
}
