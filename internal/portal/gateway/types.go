package gateway

import "github.com/campuskit/portal/internal/portal/domain"

// API paths. The base URL is configuration; these are the contract.
const (
	pathLogin          = "/api/v1/auth/login"
	pathLoginVerify2FA = "/api/v1/auth/login/2fa"
	pathLogout         = "/api/v1/auth/logout"

	pathTwoFactorEnable        = "/api/v1/profile/2fa/enable"
	pathTwoFactorVerify        = "/api/v1/profile/2fa/verify"
	pathTwoFactorDisable       = "/api/v1/profile/2fa/disable"
	pathTwoFactorRecoveryCodes = "/api/v1/profile/2fa/recovery-codes"

	pathRecoveryEmail       = "/api/v1/profile/recovery-email"
	pathRecoveryEmailVerify = "/api/v1/profile/recovery-email/verify"
	pathRecoveryEmailResend = "/api/v1/profile/recovery-email/resend"
)

// LoginRequest is the first round trip of a login attempt.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// VerifyLoginRequest is the second round trip of a login attempt requiring a
// second factor: the original credentials plus the authenticator code.
type VerifyLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
	Role     string `json:"role"`
}

// loginEnvelope is the success body of both login endpoints. The
// requires_2fa flag may also arrive here on a 200 with no data.
type loginEnvelope struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Requires2FA bool   `json:"requires_2fa"`
	Data        *struct {
		Token string          `json:"token"`
		User  domain.Identity `json:"user"`
	} `json:"data"`
}

// twoFactorProbe extracts the requires_2fa flag from an error body. The
// backend has signalled this at two nesting levels over time; both are
// accepted here so nothing above the gateway has to care.
type twoFactorProbe struct {
	Requires2FA bool `json:"requires_2fa"`
	Error       struct {
		Requires2FA bool `json:"requires_2fa"`
	} `json:"error"`
}

// LoginResult is the gateway-normalized outcome of a login round trip:
// either a session was issued, or a second factor is required.
type LoginResult struct {
	TwoFactorRequired bool
	Token             string
	User              domain.Identity
}

// TwoFactorEnableResponse is the enrollment material issued when 2FA setup
// starts. Recovery codes appear exactly once, here.
type TwoFactorEnableResponse struct {
	Secret        string   `json:"secret"`
	QRCodeURL     string   `json:"qr_code_url"`
	RecoveryCodes []string `json:"recovery_codes"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type recoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}
