// Package uid generates and checks request identifiers.
package uid

import "github.com/google/uuid"

// New generates a new random request identifier.
func New() string {
	return uuid.New().String()
}

// Canonical returns id in lower-case hyphenated form, or "" if it is not a UUID.
func Canonical(id string) string {
	u, err := uuid.Parse(id)
	if err != nil {
		return ""
	}
	return u.String()
}
