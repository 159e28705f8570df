package wallet

import "strings"

// AdminGate decides whether an email belongs to a platform administrator.
type AdminGate struct {
	emails map[string]struct{}
}

// NewAdminGate normalizes the configured admin emails; blanks are ignored.
func NewAdminGate(emails []string) AdminGate {
	normalized := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		key := normalizeEmail(email)
		if key == "" {
			continue
		}
		normalized[key] = struct{}{}
	}
	return AdminGate{emails: normalized}
}

// IsAdmin reports case-insensitive membership of email in the admin list.
func (gate AdminGate) IsAdmin(email string) bool {
	key := normalizeEmail(email)
	if key == "" || len(gate.emails) == 0 {
		return false
	}
	_, ok := gate.emails[key]
	return ok
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
