package gateway

import "context"

// EnableTwoFactor starts TOTP enrollment for the authenticated account and
// returns the shared secret, the otpauth QR payload, and the one-time set of
// recovery codes.
func (c *Client) EnableTwoFactor(ctx context.Context) (TwoFactorEnableResponse, error) {
	var resp TwoFactorEnableResponse
	if err := c.do(ctx, "POST", pathTwoFactorEnable, nil, &resp); err != nil {
		return TwoFactorEnableResponse{}, err
	}
	return resp, nil
}

// VerifyTwoFactor submits an authenticator code against the just-issued
// secret, completing enrollment on success.
func (c *Client) VerifyTwoFactor(ctx context.Context, code string) error {
	return c.do(ctx, "POST", pathTwoFactorVerify, codeRequest{Code: code}, nil)
}

// DisableTwoFactor turns 2FA off. The account password is the step-up
// confirmation factor here, not a TOTP code.
func (c *Client) DisableTwoFactor(ctx context.Context, password string) error {
	return c.do(ctx, "POST", pathTwoFactorDisable, passwordRequest{Password: password}, nil)
}

// RegenerateRecoveryCodes issues a fresh recovery code set, invalidating the
// previous one. Password-confirmed.
func (c *Client) RegenerateRecoveryCodes(ctx context.Context, password string) ([]string, error) {
	var resp recoveryCodesResponse
	if err := c.do(ctx, "POST", pathTwoFactorRecoveryCodes, passwordRequest{Password: password}, &resp); err != nil {
		return nil, err
	}
	return resp.RecoveryCodes, nil
}
