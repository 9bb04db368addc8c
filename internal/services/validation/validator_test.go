package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatusBehul/veloryn/internal/models"
)

const validItem = `{
	"language": "en",
	"overall_analysis": ["Strong quarter."],
	"technical_analysis": ["Above the 50-day average."],
	"fundamental_analysis": ["Margins expanding."],
	"sentiment_analysis": ["Positive coverage."],
	"risk_analysis": ["Supply chain exposure."],
	"investment_insights": ["Accumulate on dips."],
	"investment_narrative": ["A steady compounder."],
	"promo_summary": "AAPL beats estimates",
	"promo_tts_text": "Apple beat estimates this quarter.",
	"promote_flag": true
}`

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func itemWith(t *testing.T, key string, value interface{}) map[string]interface{} {
	t.Helper()
	item := decode(t, validItem).(map[string]interface{})
	if value == nil {
		delete(item, key)
	} else {
		item[key] = value
	}
	return item
}

func fieldNames(err error) []string {
	failure, ok := err.(*ValidationFailure)
	if !ok {
		return nil
	}
	names := make([]string, len(failure.Fields))
	for i, f := range failure.Fields {
		names[i] = f.Field
	}
	return names
}

func TestValidate_ArrayAcceptedUnchanged(t *testing.T) {
	items, err := Validate(decode(t, "["+validItem+"]"))
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "en", item.Language)
	assert.Equal(t, []string{"Strong quarter."}, item.OverallAnalysis)
	assert.Equal(t, []string{"A steady compounder."}, item.InvestmentNarrative)
	assert.Equal(t, "AAPL beats estimates", item.PromoSummary)
	assert.True(t, item.PromoteFlag)
}

func TestValidate_EmptySectionNamed(t *testing.T) {
	payload := []interface{}{itemWith(t, models.SectionSentiment, []interface{}{})}

	_, err := Validate(payload)
	require.Error(t, err)

	var failure *ValidationFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, []string{"item[0].sentiment_analysis"}, fieldNames(err))
	assert.Contains(t, err.Error(), "item[0].sentiment_analysis")
}

func TestValidate_FieldRules(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
		field string
	}{
		{"missing language", "language", nil, "item[0].language"},
		{"blank language", "language", "   ", "item[0].language"},
		{"missing section", models.SectionRisk, nil, "item[0].risk_analysis"},
		{"blank element", models.SectionOverall, []interface{}{"ok", " "}, "item[0].overall_analysis[1]"},
		{"non-string element", models.SectionTechnical, []interface{}{"ok", 3.0}, "item[0].technical_analysis[1]"},
		{"blank promo summary", "promo_summary", "", "item[0].promo_summary"},
		{"missing tts text", "promo_tts_text", nil, "item[0].promo_tts_text"},
		{"missing flag", "promote_flag", nil, "item[0].promote_flag"},
		{"bad flag string", "promote_flag", "yes", "item[0].promote_flag"},
		{"numeric flag", "promote_flag", 1.0, "item[0].promote_flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate([]interface{}{itemWith(t, tt.key, tt.value)})
			require.Error(t, err)
			assert.Contains(t, fieldNames(err), tt.field)
		})
	}
}

func TestValidate_StringFlag(t *testing.T) {
	for raw, want := range map[string]bool{"true": true, "False": false, " TRUE ": true} {
		items, err := Validate([]interface{}{itemWith(t, "promote_flag", raw)})
		require.NoError(t, err, raw)
		assert.Equal(t, want, items[0].PromoteFlag, raw)
	}
}

func TestValidate_AnalysisWrapper(t *testing.T) {
	items, err := Validate(decode(t, `{"analysis": [`+validItem+`]}`))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = Validate(decode(t, `{"analysis": `+validItem+`}`))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	wrapped := map[string]interface{}{"analysis": itemWith(t, "language", nil)}
	items, err = Validate(wrapped)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.DefaultLanguage, items[0].Language)
}

func TestValidate_TrimsStrings(t *testing.T) {
	item := itemWith(t, "language", " en ")
	item[models.SectionOverall] = []interface{}{" a ", "b\n"}
	item["promo_summary"] = " s "
	item["promo_tts_text"] = "\tspoken "

	items, err := Validate([]interface{}{item})
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "en", items[0].Language)
	assert.Equal(t, []string{"a", "b"}, items[0].OverallAnalysis)
	assert.Equal(t, "s", items[0].PromoSummary)
	assert.Equal(t, "spoken", items[0].PromoTTSText)
}

func TestValidate_DuplicateLanguage(t *testing.T) {
	payload := []interface{}{
		decode(t, validItem),
		itemWith(t, "language", " en"),
	}

	items, err := Validate(payload)
	assert.Nil(t, items)
	assert.Equal(t, []string{"item[1].language"}, fieldNames(err))
	assert.Contains(t, err.Error(), "duplicates item[0]")
}

func TestValidate_LegacyObjectDefaultsLanguage(t *testing.T) {
	legacy := itemWith(t, "language", nil)

	items, err := Validate(legacy)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.DefaultLanguage, items[0].Language)
}

func TestValidate_LegacyObjectStillStrict(t *testing.T) {
	legacy := map[string]interface{}{
		models.SectionOverall: []interface{}{"Only one section"},
	}

	_, err := Validate(legacy)
	require.Error(t, err)
	assert.Contains(t, fieldNames(err), "item[0].technical_analysis")
	assert.NotContains(t, fieldNames(err), "item[0].language")
}

func TestValidate_RejectedShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload interface{}
	}{
		{"empty array", []interface{}{}},
		{"unrelated object", map[string]interface{}{"error": "no content"}},
		{"string", "analysis"},
		{"nil", nil},
		{"array of strings", []interface{}{"a"}},
		{"analysis is a string", map[string]interface{}{"analysis": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := Validate(tt.payload)
			assert.Nil(t, items)

			var failure *ValidationFailure
			require.ErrorAs(t, err, &failure)
			assert.NotEmpty(t, failure.Fields)
		})
	}
}

func TestValidate_MultipleItemsIndexed(t *testing.T) {
	payload := []interface{}{
		decode(t, validItem),
		itemWith(t, models.SectionInsights, []interface{}{}),
	}

	_, err := Validate(payload)
	assert.Equal(t, []string{"item[1].investment_insights"}, fieldNames(err))
}
