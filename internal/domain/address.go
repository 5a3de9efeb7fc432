package domain

import "strings"

// NormalizeAddress lowercases and trims an address. Ledger rows are keyed by
// the normalized form so lookups are case-insensitive.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// ValidAddress applies the minimal syntax check: exactly one '@' separating
// a non-empty local part from a non-empty domain.
func ValidAddress(address string) bool {
	local, domain, ok := strings.Cut(address, "@")
	if !ok || local == "" || domain == "" {
		return false
	}
	return !strings.Contains(domain, "@")
}
