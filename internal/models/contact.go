package models

import "sort"

// Contact is one row of the contact list, keyed by header name.
// Rows are loaded once and never mutated.
type Contact map[string]string

// Field returns the value stored under name, or "" when absent.
func (c Contact) Field(name string) string {
	return c[name]
}

// Keys returns the field names in sorted order.
func (c Contact) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
