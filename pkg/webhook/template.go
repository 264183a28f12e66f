package webhook

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Format is the templating style of a body_template. The two are mutually exclusive.
type Format string

const (
	// FormatNone is an empty template.
	FormatNone Format = "none"
	// FormatSchema is a JSON Schema object whose properties name the variables to send.
	FormatSchema Format = "schema"
	// FormatPlaceholder is a string with {{name}} placeholders.
	FormatPlaceholder Format = "placeholder"
)

// Built-in placeholder names available to every template.
const (
	BuiltinCallID      = "call_id"
	BuiltinUserMessage = "user_message"
)

// Lookup resolves a variable by name. Dotted names read into structured values.
type Lookup interface {
	Lookup(name string) (any, bool)
}

// Vars is a plain map Lookup, used by design-time tests and the CLI.
type Vars map[string]any

// Lookup implements Lookup for top-level names.
func (v Vars) Lookup(name string) (any, bool) {
	val, ok := v[name]
	return val, ok && val != nil
}

// Builtins are the values of the built-in placeholders.
type Builtins struct {
	CallID      string
	UserMessage string
}

// Body is a request body built from a template.
type Body struct {
	Format Format
	// JSON is set when the body is valid JSON.
	JSON any
	// Raw is the exact bytes to send.
	Raw []byte
}

// ContentType returns the content type matching the body.
func (b Body) ContentType() string {
	if b.JSON != nil {
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}

// MissingPropertiesError blocks a schema-style invocation.
// Every name listed is declared by the schema but has no bound variable.
type MissingPropertiesError struct {
	Missing []string
}

func (e *MissingPropertiesError) Error() string {
	return fmt.Sprintf("webhook blocked: schema properties without a bound variable: %s", strings.Join(e.Missing, ", "))
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Detect decides the template format structurally: a JSON object with
// type "object" and a properties map is a schema, anything else is a placeholder string.
func Detect(template string) (Format, *openapi3.Schema) {
	if strings.TrimSpace(template) == "" {
		return FormatNone, nil
	}

	var probe map[string]any
	if err := json.Unmarshal([]byte(template), &probe); err != nil {
		return FormatPlaceholder, nil
	}
	if t, _ := probe["type"].(string); t != "object" {
		return FormatPlaceholder, nil
	}
	if _, ok := probe["properties"].(map[string]any); !ok {
		return FormatPlaceholder, nil
	}

	schema := openapi3.NewObjectSchema()
	if err := json.Unmarshal([]byte(template), schema); err != nil {
		// Vendor extensions kin-openapi rejects still leave the property names usable.
		schema = openapi3.NewObjectSchema()
		for name := range probe["properties"].(map[string]any) {
			schema.WithProperty(name, openapi3.NewSchema())
		}
	}
	return FormatSchema, schema
}

// BuildBody renders the request body for a template.
// Schema templates fail with *MissingPropertiesError when a declared property has no bound variable.
func BuildBody(template string, vars Lookup, builtins Builtins) (Body, error) {
	format, schema := Detect(template)
	switch format {
	case FormatNone:
		return Body{Format: FormatNone}, nil
	case FormatSchema:
		return buildFromSchema(schema, vars, builtins)
	default:
		rendered := Substitute(template, vars, builtins)
		body := Body{Format: FormatPlaceholder, Raw: []byte(rendered)}
		var parsed any
		if err := json.Unmarshal(body.Raw, &parsed); err == nil {
			body.JSON = parsed
		}
		return body, nil
	}
}

func buildFromSchema(schema *openapi3.Schema, vars Lookup, builtins Builtins) (Body, error) {
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	payload := make(map[string]any, len(names))
	var missing []string
	for _, name := range names {
		if v, ok := resolve(name, vars, builtins); ok {
			payload[name] = v
			continue
		}
		missing = append(missing, name)
	}
	if len(missing) > 0 {
		return Body{Format: FormatSchema}, &MissingPropertiesError{Missing: missing}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Body{Format: FormatSchema}, fmt.Errorf("encode schema body: %w", err)
	}
	return Body{Format: FormatSchema, JSON: payload, Raw: raw}, nil
}

// Substitute replaces every {{name}} in s in a single pass.
// Unbound names become the empty string, so applying it twice yields the same result.
func Substitute(s string, vars Lookup, builtins Builtins) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		v, ok := resolve(name, vars, builtins)
		if !ok {
			return ""
		}
		return Stringify(v)
	})
}

// Placeholders lists the distinct names referenced by s, in order of appearance.
func Placeholders(s string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

func resolve(name string, vars Lookup, builtins Builtins) (any, bool) {
	switch name {
	case BuiltinCallID:
		return builtins.CallID, true
	case BuiltinUserMessage:
		return builtins.UserMessage, true
	}
	if vars == nil {
		return nil, false
	}
	return vars.Lookup(name)
}

// Stringify renders a variable for text substitution.
// Structured values are written as compact JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
