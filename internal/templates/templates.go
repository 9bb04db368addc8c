// Package templates provides embedded prompt templates with user override support.
// Templates are loaded with resolution order:
// 1. User override: templatesDir/{name}.toml
// 2. Embedded default: internal/templates/{name}.toml
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pelletier/go-toml/v2"
)

//go:embed *.toml
var fs embed.FS

// DailyAnalysis is the name of the daily ticker analysis prompt.
const DailyAnalysis = "daily_analysis"

// Template represents a loaded prompt template
type Template struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Prompt      string `toml:"prompt"` // text/template body

	parsed *template.Template
}

// PromptData is the data rendered into an analysis prompt.
type PromptData struct {
	Ticker string
	Day    string
	Data   string // JSON encoded market snapshot
}

// GetTemplate loads a template by name with resolution order:
// 1. User override: templatesDir/{name}.toml
// 2. Embedded default: internal/templates/{name}.toml
func GetTemplate(name string, templatesDir string) (*Template, error) {
	if templatesDir != "" {
		userPath := filepath.Join(templatesDir, name+".toml")
		if data, err := os.ReadFile(userPath); err == nil {
			return parseTemplate(name, data)
		}
	}

	data, err := fs.ReadFile(name + ".toml")
	if err != nil {
		return nil, fmt.Errorf("template '%s' not found (checked user override and embedded)", name)
	}
	return parseTemplate(name, data)
}

// ListEmbeddedTemplates returns names of all embedded templates
func ListEmbeddedTemplates() ([]string, error) {
	entries, err := fs.ReadDir(".")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if name, ok := strings.CutSuffix(entry.Name(), ".toml"); ok && !entry.IsDir() {
			names = append(names, name)
		}
	}
	return names, nil
}

// Render executes the prompt body against data.
func (t *Template) Render(data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := t.parsed.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template '%s': %w", t.Name, err)
	}
	return buf.String(), nil
}

func parseTemplate(name string, data []byte) (*Template, error) {
	var t Template
	if err := toml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if strings.TrimSpace(t.Prompt) == "" {
		return nil, fmt.Errorf("template '%s' has no prompt", name)
	}
	if t.Name == "" {
		t.Name = name
	}

	parsed, err := template.New(t.Name).Option("missingkey=error").Parse(t.Prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt of template '%s': %w", name, err)
	}
	t.parsed = parsed
	return &t, nil
}
