package gateway

import "context"

// AddRecoveryEmail registers a recovery address; the backend dispatches a
// verification code to it.
func (c *Client) AddRecoveryEmail(ctx context.Context, email string) error {
	return c.do(ctx, "POST", pathRecoveryEmail, emailRequest{Email: email}, nil)
}

// VerifyRecoveryEmail checks the emailed 6-digit code and, on success, marks
// the pending address as the account's verified recovery email.
func (c *Client) VerifyRecoveryEmail(ctx context.Context, code string) error {
	return c.do(ctx, "POST", pathRecoveryEmailVerify, codeRequest{Code: code}, nil)
}

// ResendRecoveryCode re-dispatches the verification code to a pending
// recovery address.
func (c *Client) ResendRecoveryCode(ctx context.Context, email string) error {
	return c.do(ctx, "POST", pathRecoveryEmailResend, emailRequest{Email: email}, nil)
}

// RemoveRecoveryEmail deletes the recovery email record outright.
func (c *Client) RemoveRecoveryEmail(ctx context.Context) error {
	return c.do(ctx, "DELETE", pathRecoveryEmail, nil, nil)
}
