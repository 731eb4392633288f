package auth

import "strings"

// Identity is what a third-party provider vouches for after a successful
// verification. Email is the key used to find or create the local account.
type Identity struct {
	Email     string
	FirstName string
	LastName  string
}

// NormalizeEmail trims and lower-cases an address so the same mailbox
// always maps to the same account, whichever login path it came through.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// splitName turns a display name like "Ada King Lovelace" into
// ("Ada", "King Lovelace").
func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	first, last, _ = strings.Cut(full, " ")
	return first, strings.TrimSpace(last)
}
