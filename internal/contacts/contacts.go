// Package contacts loads campaign contact lists from delimited files.
//
// The first record is the header; it names the fields of every following
// row. One header column carries the phone identifier used for delivery.
package contacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/BulkPipe/internal/models"
)

// DefaultDelimiter separates fields in contact files.
const DefaultDelimiter = ','

// ErrMissingHeader is returned for a file with no header record.
var ErrMissingHeader = errors.New("contact file has no header row")

// List is an ordered, immutable contact list with its phone column.
type List struct {
	PhoneColumn string
	Headers     []string
	Rows        []models.Contact
}

// Len returns the number of contact rows.
func (l *List) Len() int {
	return len(l.Rows)
}

// Phone returns the phone identifier of row i.
func (l *List) Phone(i int) string {
	return strings.TrimSpace(l.Rows[i].Field(l.PhoneColumn))
}

// LoadFile reads a contact list from path.
func LoadFile(path, phoneColumn string) (*List, error) {
	if path == "" {
		return nil, &models.ConfigError{Field: "contacts", Err: models.ErrMissingPath}
	}
	f, err := os.Open(path)
	if err != nil {
		slog.Error("Failed to open contact file", "error", err, "path", path)
		return nil, &models.ConfigError{Field: "contacts", Value: path, Err: err}
	}
	defer f.Close()

	list, err := Load(f, phoneColumn)
	if err != nil {
		return nil, err
	}
	slog.Info("Contact list loaded", "path", path, "rows", list.Len(), "phone_column", phoneColumn)
	return list, nil
}

// Load reads a contact list from r. Cells missing from a record shorter than
// the header are left out of its row, so their placeholders stay unresolved.
func Load(r io.Reader, phoneColumn string) (*List, error) {
	phoneColumn = strings.TrimSpace(phoneColumn)
	if phoneColumn == "" {
		return nil, &models.ConfigError{Field: "phone_column", Err: models.ErrMissingPhoneColumn}
	}

	reader := csv.NewReader(r)
	reader.Comma = DefaultDelimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &models.ConfigError{Field: "contacts", Err: ErrMissingHeader}
	}
	if err != nil {
		return nil, &models.ConfigError{Field: "contacts", Err: fmt.Errorf("failed to read header: %w", err)}
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(headers[i], "\ufeff"))
	}

	found := false
	for _, h := range headers {
		if h == phoneColumn {
			found = true
			break
		}
	}
	if !found {
		return nil, &models.ConfigError{
			Field: "phone_column",
			Value: phoneColumn,
			Err:   fmt.Errorf("column not found in header %v", headers),
		}
	}

	list := &List{PhoneColumn: phoneColumn, Headers: headers}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &models.ConfigError{Field: "contacts", Err: fmt.Errorf("failed to read record %d: %w", len(list.Rows)+1, err)}
		}
		row := make(models.Contact, len(headers))
		for i, h := range headers {
			if i >= len(record) {
				break
			}
			row[h] = record[i]
		}
		list.Rows = append(list.Rows, row)
	}
	return list, nil
}
