package domain

// SessionStore persists the bearer token and the serialized user profile.
// The request-signing client reads the token from it; logout, suspension
// and role mismatch clear it wholesale.
type SessionStore interface {
	Token() (string, bool)
	Profile() (*User, bool)
	Save(token string, user User) error
	Clear() error
	Close() error
}
