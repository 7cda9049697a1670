package domain

// Identity is the authenticated user as returned by the login and 2FA-verify
// endpoints and as persisted in the local session store.
type Identity struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  RoleValue `json:"role,omitempty"`
}

// Session pairs a bearer token with the identity it was issued for. It is
// created on successful login (or 2FA verification), read on every
// protected-page bootstrap, and destroyed on logout or when the persisted
// copy turns out to be corrupt.
type Session struct {
	Token string
	User  Identity
}

// Credentials is the transient first-factor input of a login attempt. It is
// held in memory only for the lifetime of the attempt and must never be
// persisted or logged.
type Credentials struct {
	Email    string
	Password string
	Role     RoleID
}

// LoginChallenge bridges the two round trips of a login attempt that
// requires a second factor. Pending credentials are retained so a failed
// code entry does not force the user to retype their password.
type LoginChallenge struct {
	Pending Credentials
}
