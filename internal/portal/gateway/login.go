package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedResponse reports a 2xx login response that carried neither a
// session nor a 2FA challenge.
var ErrMalformedResponse = errors.New("gateway: malformed login response")

// Login performs the password round trip of a login attempt. A backend that
// wants a second factor may say so either with a bare 200 `{requires_2fa}`
// body or with an error body carrying the same flag; both normalize to a
// LoginResult with TwoFactorRequired set and no error.
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	status, raw, err := c.roundTrip(ctx, "POST", pathLogin, req)
	if err != nil {
		return LoginResult{}, err
	}

	if status < 200 || status > 299 {
		var probe twoFactorProbe
		if json.Unmarshal(raw, &probe) == nil && (probe.Requires2FA || probe.Error.Requires2FA) {
			return LoginResult{TwoFactorRequired: true}, nil
		}
		return LoginResult{}, parseErrorResponse(status, raw)
	}

	var env loginEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return LoginResult{}, fmt.Errorf("gateway: failed to decode login response: %w", err)
	}

	if env.Requires2FA {
		return LoginResult{TwoFactorRequired: true}, nil
	}
	if env.Data == nil || env.Data.Token == "" {
		return LoginResult{}, ErrMalformedResponse
	}

	return LoginResult{Token: env.Data.Token, User: env.Data.User}, nil
}

// VerifyLoginTwoFactor performs the second round trip of a login attempt:
// the captured credentials plus the 6-digit authenticator code.
func (c *Client) VerifyLoginTwoFactor(ctx context.Context, req VerifyLoginRequest) (LoginResult, error) {
	var env loginEnvelope
	if err := c.do(ctx, "POST", pathLoginVerify2FA, req, &env); err != nil {
		return LoginResult{}, err
	}
	if env.Data == nil || env.Data.Token == "" {
		return LoginResult{}, ErrMalformedResponse
	}
	return LoginResult{Token: env.Data.Token, User: env.Data.User}, nil
}

// Logout tells the backend to invalidate the current token. Callers clear
// the local session regardless of what this returns.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "POST", pathLogout, nil, nil)
}
