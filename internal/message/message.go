// Package message loads campaign message templates and renders them per contact.
//
// Placeholders are field names wrapped in double braces, e.g. {{name}}.
package message

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/BTreeMap/BulkPipe/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Placeholder returns the template token for a field name.
func Placeholder(field string) string {
	return "{{" + field + "}}"
}

// Render substitutes the first occurrence of each field's placeholder with
// the field's value. Fields absent from the template are ignored and
// placeholders with no matching field are left as they are.
func Render(row models.Contact, template string) string {
	return RenderFields(row, row.Keys(), template)
}

// RenderFields is Render with an explicit substitution order, normally the
// contact file's header order. A field's value may itself contain another
// field's placeholder, so order changes the output. Fields missing from row
// and repeated names are skipped.
func RenderFields(row models.Contact, fields []string, template string) string {
	out := template
	seen := make(map[string]bool, len(fields))
	for _, field := range fields {
		if seen[field] {
			continue
		}
		seen[field] = true
		value, ok := row[field]
		if !ok {
			continue
		}
		out = strings.Replace(out, Placeholder(field), value, 1)
	}
	return out
}

// Unresolved lists the placeholder field names still present in text.
func Unresolved(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// LoadTemplate reads the raw template text from path.
func LoadTemplate(path string) (string, error) {
	if path == "" {
		return "", &models.ConfigError{Field: "template", Err: models.ErrMissingPath}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to load message template", "error", err, "path", path)
		return "", &models.ConfigError{Field: "template", Value: path, Err: fmt.Errorf("failed to read template: %w", err)}
	}
	slog.Info("Message template loaded", "path", path, "length", len(data), "placeholders", Unresolved(string(data)))
	return string(data), nil
}
