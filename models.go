package main

import "time"

// User represents a registered user. Only the credential fields and the
// profile-completion flag matter to the auth core; everything else about a
// user lives in the profile service.
type User struct {
	ID                 int64
	Email              string
	Password           string // bcrypt hash
	ProfileCompletedAt *time.Time
	CreatedAt          time.Time
}

// MCPToken is the registry record for an issued MCP integration token.
// The raw signed token is stored verbatim once and returned to the caller
// only at creation time; list operations must omit it. Deleting the record
// revokes the token even though the JWT stays cryptographically valid
// until its embedded expiry.
type MCPToken struct {
	ID        string // UUID
	UserID    int64
	Token     string // raw signed token, never re-displayed
	Name      string
	Scopes    []string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Live reports whether the record still authorizes its token.
func (t *MCPToken) Live(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}

// Hospital is a minimal read model for the MCP-protected hospital listing.
type Hospital struct {
	ID          string
	Name        string
	City        string
	Address     string
	PhoneNumber string
	CreatedAt   time.Time
}

// Appointment is a minimal booking record reachable through the
// MCP-protected endpoints.
type Appointment struct {
	ID          string
	UserID      int64
	HospitalID  string
	Description string
	DateTime    string // YYYY-MM-DDTHH:MM:00
	CreatedAt   time.Time
}
