// Package validation checks extracted payloads against the analysis item
// schema and normalises the accepted payload shapes.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/MatusBehul/veloryn/internal/models"
)

// FieldError is one failed rule.
type FieldError struct {
	Field  string // e.g. item[0].sentiment_analysis
	Reason string
}

func (f FieldError) String() string {
	return f.Field + ": " + f.Reason
}

// ValidationFailure lists every rule a payload broke.
type ValidationFailure struct {
	Fields []FieldError
}

func (e *ValidationFailure) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationFailure) add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// Validator validates analysis payloads. Safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator with the notblank rule registered and
// field names reported by their json tag.
func NewValidator() *Validator {
	validate := validator.New()
	if err := validate.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(fmt.Sprintf("register notblank: %v", err))
	}
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: validate}
}

var defaultValidator = NewValidator()

// Validate checks payload with the package validator.
func Validate(payload interface{}) ([]models.AnalysisItem, error) {
	return defaultValidator.Validate(payload)
}

// Validate normalises payload into items and checks each one. Accepted shapes
// are an array of items, an object with an "analysis" array or object, and a
// legacy single object carrying section fields directly. Each language may
// appear only once.
func (v *Validator) Validate(payload interface{}) ([]models.AnalysisItem, error) {
	rawItems, err := normalize(payload)
	if err != nil {
		return nil, err
	}

	failure := &ValidationFailure{}
	items := make([]models.AnalysisItem, 0, len(rawItems))

	seen := make(map[string]int, len(rawItems))
	for i, raw := range rawItems {
		prefix := fmt.Sprintf("item[%d]", i)
		item := decodeItem(raw, prefix, failure)
		v.check(item, prefix, failure)
		if item.Language != "" {
			if first, ok := seen[item.Language]; ok {
				failure.add(prefix+".language", fmt.Sprintf("duplicates item[%d] language %q", first, item.Language))
			} else {
				seen[item.Language] = i
			}
		}
		items = append(items, item)
	}

	if len(failure.Fields) > 0 {
		return nil, failure
	}
	return items, nil
}

func (v *Validator) check(item models.AnalysisItem, prefix string, failure *ValidationFailure) {
	err := v.validate.Struct(item)
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		failure.add(prefix, err.Error())
		return
	}

	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		failure.add(prefix+"."+field, reasonFor(fe))
	}
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s element(s)", fe.Param())
	case "notblank":
		return "must not be blank"
	}
	return "failed " + fe.Tag()
}

// FailureClass implements models.Classified.
func (e *ValidationFailure) FailureClass() models.FailureClass {
	return models.FailureValidation
}
