// Package flow implements the client-side state machines of the auth
// subsystem: login (with optional second factor), two-factor enrollment,
// recovery email management, and the session bootstrap that runs on every
// entry page.
//
// Each flow instance serializes its own mutating requests: a second submit
// while one is outstanding fails fast with ErrRequestInFlight instead of
// double-firing. A closed flow ignores results that resolve after teardown.
package flow

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	// ErrRequestInFlight reports a submit while a previous request on the
	// same flow is still outstanding.
	ErrRequestInFlight = errors.New("flow: request already in flight")

	// ErrFlowClosed reports an operation on a flow that has been torn down.
	ErrFlowClosed = errors.New("flow: closed")

	// ErrFlowReset reports a request whose flow was reset while the request
	// was in flight. The late result has been discarded; the reset wins.
	ErrFlowReset = errors.New("flow: attempt was reset")

	// ErrInvalidTransition reports an operation that is not legal in the
	// flow's current state.
	ErrInvalidTransition = errors.New("flow: invalid transition")

	// ErrInvalidCode rejects a one-time code that is not exactly 6 digits.
	// Checked before any network round trip.
	ErrInvalidCode = errors.New("flow: code must be exactly 6 digits")

	// ErrInvalidEmail rejects a malformed email address client-side.
	ErrInvalidEmail = errors.New("flow: invalid email address")

	// ErrPasswordRequired rejects a step-up action with no password entered.
	ErrPasswordRequired = errors.New("flow: password is required")
)

// Navigator performs a full page navigation to a dashboard destination. The
// CLI implementation reports the destination; a web shell would replace the
// location outright (no soft client-side routing).
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// validateOneTimeCode enforces the 6-digit numeric shape of TOTP and
// verification codes so malformed input never costs a round trip.
func validateOneTimeCode(code string) error {
	if len(code) != 6 {
		return ErrInvalidCode
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return ErrInvalidCode
		}
	}
	return nil
}

// validateEmail performs a light client-side sanity check. The backend
// remains the authority on deliverability.
func validateEmail(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ErrInvalidEmail
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return ErrInvalidEmail
	}
	return nil
}
