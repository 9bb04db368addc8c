package validation

import (
	"fmt"
	"strings"

	"github.com/MatusBehul/veloryn/internal/models"
)

func normalize(payload interface{}) ([]map[string]interface{}, error) {
	switch v := payload.(type) {
	case []interface{}:
		return objectsOf(v, "payload")
	case map[string]interface{}:
		if analysis, ok := v["analysis"]; ok {
			switch a := analysis.(type) {
			case []interface{}:
				return objectsOf(a, "analysis")
			case map[string]interface{}:
				return []map[string]interface{}{withLanguage(a)}, nil
			}
			return nil, shapeFailure("analysis", "must be an array or object")
		}
		if hasSection(v) {
			return []map[string]interface{}{withLanguage(v)}, nil
		}
		return nil, shapeFailure("payload", "object has no analysis items")
	case nil:
		return nil, shapeFailure("payload", "is empty")
	}
	return nil, shapeFailure("payload", fmt.Sprintf("unsupported type %T", payload))
}

// withLanguage copies a single wrapped object, defaulting a missing language.
func withLanguage(obj map[string]interface{}) map[string]interface{} {
	item := make(map[string]interface{}, len(obj)+1)
	for k, val := range obj {
		item[k] = val
	}
	if _, ok := item["language"]; !ok {
		item["language"] = models.DefaultLanguage
	}
	return item
}

func objectsOf(values []interface{}, field string) ([]map[string]interface{}, error) {
	if len(values) == 0 {
		return nil, shapeFailure(field, "must contain at least 1 item")
	}
	out := make([]map[string]interface{}, 0, len(values))
	failure := &ValidationFailure{}
	for i, value := range values {
		obj, ok := value.(map[string]interface{})
		if !ok {
			failure.add(fmt.Sprintf("item[%d]", i), "must be an object")
			continue
		}
		out = append(out, obj)
	}
	if len(failure.Fields) > 0 {
		return nil, failure
	}
	return out, nil
}

func hasSection(obj map[string]interface{}) bool {
	for _, name := range models.AnalysisSections {
		if _, ok := obj[name]; ok {
			return true
		}
	}
	return false
}

func shapeFailure(field, reason string) *ValidationFailure {
	return &ValidationFailure{Fields: []FieldError{{Field: field, Reason: reason}}}
}

// decodeItem copies raw into an AnalysisItem, recording type mismatches.
// Strings are trimmed. Missing fields stay zero and are reported by the
// struct rules.
func decodeItem(raw map[string]interface{}, prefix string, failure *ValidationFailure) models.AnalysisItem {
	var item models.AnalysisItem

	item.Language = stringField(raw, "language", prefix, failure)
	for _, name := range models.AnalysisSections {
		item.SetSection(name, listField(raw, name, prefix, failure))
	}
	item.PromoSummary = stringField(raw, "promo_summary", prefix, failure)
	item.PromoTTSText = stringField(raw, "promo_tts_text", prefix, failure)

	flag, ok := raw["promote_flag"]
	if !ok || flag == nil {
		failure.add(prefix+".promote_flag", "is required")
		return item
	}
	switch f := flag.(type) {
	case bool:
		item.PromoteFlag = f
	case string:
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "true":
			item.PromoteFlag = true
		case "false":
			item.PromoteFlag = false
		default:
			failure.add(prefix+".promote_flag", "must be a boolean")
		}
	default:
		failure.add(prefix+".promote_flag", "must be a boolean")
	}

	return item
}

func stringField(raw map[string]interface{}, name, prefix string, failure *ValidationFailure) string {
	value, ok := raw[name]
	if !ok || value == nil {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		failure.add(prefix+"."+name, "must be a string")
		return ""
	}
	return strings.TrimSpace(s)
}

func listField(raw map[string]interface{}, name, prefix string, failure *ValidationFailure) []string {
	value, ok := raw[name]
	if !ok || value == nil {
		return nil
	}
	values, ok := value.([]interface{})
	if !ok {
		failure.add(prefix+"."+name, "must be an array of strings")
		return []string{}
	}
	out := make([]string, 0, len(values))
	for j, element := range values {
		s, ok := element.(string)
		if !ok {
			failure.add(fmt.Sprintf("%s.%s[%d]", prefix, name, j), "must be a string")
			continue
		}
		out = append(out, strings.TrimSpace(s))
	}
	return out
}
