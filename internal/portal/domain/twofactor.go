package domain

// TwoFactorEnrollment is the transient state issued when a user starts
// enabling TOTP. It exists only between "enable requested" and "verified or
// abandoned". Recovery codes are displayed once and dropped from memory as
// soon as the user acknowledges them.
type TwoFactorEnrollment struct {
	Secret        string   // base32 shared secret for the authenticator app
	QRPayload     string   // otpauth:// URI encoding the same secret
	Issuer        string   // issuer label embedded in the QR payload
	Account       string   // account label embedded in the QR payload
	RecoveryCodes []string // one-time backup codes, shown once
}

// RecoveryEmail is the server-persisted recovery address of an account.
type RecoveryEmail struct {
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}
