// Package sqlutil quotes MySQL identifiers that come from configuration.
package sqlutil

import (
	"regexp"
	"strings"
)

// QuoteIdentifier wraps name in backticks, doubling embedded backticks.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Configured identifiers are restricted to letters, digits and underscores,
// at most 64 characters.
var validIdentifierRegex = regexp.MustCompile("^[a-zA-Z0-9_]{1,64}$")

// IsValidIdentifier reports whether name may be used as a table name.
func IsValidIdentifier(name string) bool {
	return validIdentifierRegex.MatchString(name)
}

// QuoteIdentifierSafe validates name and then quotes it.
func QuoteIdentifierSafe(name string) (string, error) {
	if !IsValidIdentifier(name) {
		return "", &InvalidIdentifierError{Name: name}
	}
	return QuoteIdentifier(name), nil
}

// InvalidIdentifierError is returned for names that fail IsValidIdentifier.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return "invalid identifier: " + e.Name + " (must be 1-64 letters, digits or underscores)"
}
