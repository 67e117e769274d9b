package main

// Scope identifiers granted to tokens at issuance.
const (
	ScopeReadData      = "read:data"
	ScopeReadBookings  = "read:bookings"
	ScopeWriteBookings = "write:bookings"
)

// HasScope is an exact membership test. There is no scope hierarchy:
// "read:bookings" does not imply "read:data" or vice versa.
func HasScope(granted []string, required string) bool {
	for _, s := range granted {
		if s == required {
			return true
		}
	}
	return false
}

// ScopesForUser derives the scope set granted at issuance. Every user gets
// read:data; booking scopes are added only once the profile is complete.
func ScopesForUser(u *User) []string {
	scopes := []string{ScopeReadData}
	if u.ProfileCompletedAt != nil {
		scopes = append(scopes, ScopeReadBookings, ScopeWriteBookings)
	}
	return scopes
}
