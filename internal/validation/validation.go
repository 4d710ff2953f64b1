package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperengineering/sitecms/internal/types"
	"github.com/tidwall/gjson"
)

// MaxStringLength bounds any single string value in stored content.
const MaxStringLength = 20000

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateJSON returns an error if raw is not a single well-formed JSON value.
func ValidateJSON(field string, raw []byte) *ValidationError {
	if !json.Valid(raw) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid JSON",
		}
	}
	return nil
}

// ValidateSection checks raw against the typed schema of section name.
// raw must already be valid JSON. Unknown fields are accepted.
func ValidateSection(name types.SectionName, raw json.RawMessage) []ValidationError {
	var c Collector
	if _, err := types.DecodeSection(name, raw); err != nil {
		c.Add(decodeError(string(name), err))
	}
	validateStrings(&c, string(name), raw)
	return c.Errors()
}

// ValidateIntent checks raw against the intent content schema.
func ValidateIntent(key types.IntentKey, raw json.RawMessage) []ValidationError {
	var c Collector
	field := types.LandingKey + "." + string(key)
	if _, err := types.DecodeIntent(key, raw); err != nil {
		c.Add(decodeError(field, err))
	}
	validateStrings(&c, field, raw)
	return c.Errors()
}

// ValidateDocument checks a whole site config: it must be an object, known
// sections and every landing intent are checked against their schemas.
// Unknown top-level keys are kept as-is.
func ValidateDocument(raw json.RawMessage) []ValidationError {
	var c Collector
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		c.Add(&ValidationError{Field: "$", Message: "must be an object"})
		return c.Errors()
	}

	doc.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		switch {
		case name == types.LandingKey:
			validateLanding(&c, value)
		case types.SectionName(name).IsValid():
			if value.Type != gjson.Null {
				c.errors = append(c.errors, ValidateSection(types.SectionName(name), json.RawMessage(value.Raw))...)
			}
		}
		return true
	})
	return c.Errors()
}

func validateLanding(c *Collector, landing gjson.Result) {
	if landing.Type == gjson.Null {
		return
	}
	if !landing.IsObject() {
		c.Add(&ValidationError{Field: types.LandingKey, Message: "must be an object"})
		return
	}
	landing.ForEach(func(key, value gjson.Result) bool {
		intent := types.IntentKey(key.String())
		if !intent.IsValid() {
			c.Add(&ValidationError{Field: types.LandingKey + "." + key.String(), Message: "unknown intent"})
			return true
		}
		if value.Type != gjson.Null {
			c.errors = append(c.errors, ValidateIntent(intent, json.RawMessage(value.Raw))...)
		}
		return true
	})
}

// decodeError turns a json decode failure into a field-scoped error.
func decodeError(prefix string, err error) *ValidationError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := prefix
		if typeErr.Field != "" {
			field = prefix + "." + typeErr.Field
		}
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be %s, got %s", kindName(typeErr.Type.Kind().String()), typeErr.Value),
		}
	}
	return &ValidationError{Field: prefix, Message: err.Error()}
}

func kindName(kind string) string {
	switch kind {
	case "slice", "array":
		return "an array"
	case "struct", "map", "ptr":
		return "an object"
	case "bool":
		return "a boolean"
	case "string":
		return "a string"
	default:
		return "a number"
	}
}

// validateStrings walks every string leaf in raw.
func validateStrings(c *Collector, path string, raw json.RawMessage) {
	walk(c, path, gjson.ParseBytes(raw))
}

func walk(c *Collector, path string, v gjson.Result) {
	switch {
	case v.IsObject() || v.IsArray():
		isArray := v.IsArray()
		i := 0
		v.ForEach(func(key, value gjson.Result) bool {
			child := path + "." + key.String()
			if isArray {
				child = fmt.Sprintf("%s[%d]", path, i)
			}
			i++
			walk(c, child, value)
			return true
		})
	case v.Type == gjson.String:
		s := v.String()
		c.Add(ValidateUTF8(path, s))
		c.Add(ValidateNoNullBytes(path, s))
		c.Add(ValidateMaxLength(path, s, MaxStringLength))
	}
}
