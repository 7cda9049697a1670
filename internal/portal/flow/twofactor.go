package flow

import (
	"context"
	"sync"

	"github.com/campuskit/portal/internal/portal/domain"
	"github.com/campuskit/portal/internal/portal/gateway"
	"github.com/campuskit/portal/pkg/idx"
	"github.com/campuskit/portal/pkg/slogx"
	"github.com/pquerna/otp"
)

// EnrollmentState enumerates the states of the 2FA enrollment machine.
type EnrollmentState int

const (
	StateDisabled EnrollmentState = iota
	StateEnrolling
	StateVerifying
	StateEnabled
)

func (s EnrollmentState) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateEnrolling:
		return "enrolling"
	case StateVerifying:
		return "verifying"
	case StateEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

// EnrollmentFlow drives enabling and disabling TOTP on the profile security
// page. Enabling demands proof of the second factor (a code from the new
// secret); disabling demands proof of the first (the account password).
type EnrollmentFlow struct {
	gw *gateway.Client
	id idx.ID

	mu         sync.Mutex
	state      EnrollmentState
	enrollment *domain.TwoFactorEnrollment
	inFlight   bool
	closed     bool

	// gen counts cancellations so a response landing after Cancel is
	// discarded instead of reviving the abandoned enrollment.
	gen int
}

// NewEnrollmentFlow creates the flow seeded with the profile's current
// two_factor_enabled value.
func NewEnrollmentFlow(gw *gateway.Client, enabled bool) *EnrollmentFlow {
	state := StateDisabled
	if enabled {
		state = StateEnabled
	}
	return &EnrollmentFlow{gw: gw, id: idx.New(), state: state}
}

// State returns the current state.
func (f *EnrollmentFlow) State() EnrollmentState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Enabled reports whether the account currently has 2FA on.
func (f *EnrollmentFlow) Enabled() bool { return f.State() == StateEnabled }

// Close tears the flow down; late results are discarded.
func (f *EnrollmentFlow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.enrollment = nil
}

// Begin moves Disabled → Enrolling. The returned enrollment holds the shared
// secret, the otpauth QR payload, and the recovery codes. The codes appear
// here once and must be shown to the user immediately.
func (f *EnrollmentFlow) Begin(ctx context.Context) (*domain.TwoFactorEnrollment, error) {
	gen, err := f.beginRequest(StateDisabled)
	if err != nil {
		return nil, err
	}

	ctx = slogx.WithFlowID(ctx, f.id.String())
	resp, err := f.gw.EnableTwoFactor(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	if f.closed {
		return nil, ErrFlowClosed
	}
	if f.gen != gen {
		return nil, ErrFlowReset
	}
	if err != nil {
		return nil, err
	}

	enrollment := &domain.TwoFactorEnrollment{
		Secret:        resp.Secret,
		QRPayload:     resp.QRCodeURL,
		RecoveryCodes: resp.RecoveryCodes,
	}

	// The QR payload encodes the same secret plus display labels; parse it
	// so the UI can show issuer/account and fall back to the embedded
	// secret if the backend left the plain field empty.
	if key, parseErr := otp.NewKeyFromURL(resp.QRCodeURL); parseErr == nil {
		enrollment.Issuer = key.Issuer()
		enrollment.Account = key.AccountName()
		if enrollment.Secret == "" {
			enrollment.Secret = key.Secret()
		}
	}

	f.enrollment = enrollment
	f.state = StateEnrolling

	// Hand the caller its own copy of the codes; the flow forgets them the
	// moment they are acknowledged.
	out := *enrollment
	out.RecoveryCodes = append([]string(nil), enrollment.RecoveryCodes...)
	return &out, nil
}

// AcknowledgeRecoveryCodes moves Enrolling → Verifying once the user has
// confirmed saving the codes. They are dropped from memory here and are not
// retrievable again except via explicit regeneration.
func (f *EnrollmentFlow) AcknowledgeRecoveryCodes() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrFlowClosed
	}
	if f.state != StateEnrolling || f.enrollment == nil {
		return ErrInvalidTransition
	}
	f.enrollment.RecoveryCodes = nil
	f.state = StateVerifying
	return nil
}

// VerifyCode moves Verifying → Enabled by checking a code from the user's
// authenticator against the just-issued secret. Failure keeps the same
// secret and QR payload; re-issuing would orphan an authenticator entry the
// user already scanned.
func (f *EnrollmentFlow) VerifyCode(ctx context.Context, code string) error {
	if err := validateOneTimeCode(code); err != nil {
		return err
	}

	gen, err := f.beginRequest(StateVerifying)
	if err != nil {
		return err
	}

	ctx = slogx.WithFlowID(ctx, f.id.String())
	err = f.gw.VerifyTwoFactor(ctx, code)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	if f.closed {
		return ErrFlowClosed
	}
	if f.gen != gen {
		return ErrFlowReset
	}
	if err != nil {
		return err
	}

	f.enrollment = nil
	f.state = StateEnabled
	slogx.FromContext(ctx).Info("two_factor_enabled")
	return nil
}

// Cancel abandons an enrollment in progress and returns to Disabled. The
// issued secret and any undisplayed codes are discarded.
func (f *EnrollmentFlow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	if f.state == StateEnrolling || f.state == StateVerifying {
		f.enrollment = nil
		f.state = StateDisabled
		f.gen++
	}
}

// Disable moves Enabled → Disabled. The account password is the step-up
// confirmation; an empty password never reaches the network.
func (f *EnrollmentFlow) Disable(ctx context.Context, password string) error {
	if password == "" {
		return ErrPasswordRequired
	}

	gen, err := f.beginRequest(StateEnabled)
	if err != nil {
		return err
	}

	ctx = slogx.WithFlowID(ctx, f.id.String())
	err = f.gw.DisableTwoFactor(ctx, password)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	if f.closed {
		return ErrFlowClosed
	}
	if f.gen != gen {
		return ErrFlowReset
	}
	if err != nil {
		return err
	}

	f.state = StateDisabled
	slogx.FromContext(ctx).Info("two_factor_disabled")
	return nil
}

// RegenerateRecoveryCodes replaces the recovery code set, invalidating the
// old one. Available only while Enabled, and always password-confirmed. The
// returned codes are shown once and not retained by the flow.
func (f *EnrollmentFlow) RegenerateRecoveryCodes(ctx context.Context, password string) ([]string, error) {
	if password == "" {
		return nil, ErrPasswordRequired
	}

	gen, err := f.beginRequest(StateEnabled)
	if err != nil {
		return nil, err
	}

	ctx = slogx.WithFlowID(ctx, f.id.String())
	codes, err := f.gw.RegenerateRecoveryCodes(ctx, password)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	if f.closed {
		return nil, ErrFlowClosed
	}
	if f.gen != gen {
		return nil, ErrFlowReset
	}
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("recovery_codes_regenerated", "count", len(codes))
	return codes, nil
}

func (f *EnrollmentFlow) beginRequest(want EnrollmentState) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, ErrFlowClosed
	}
	if f.state != want {
		return 0, ErrInvalidTransition
	}
	if f.inFlight {
		return 0, ErrRequestInFlight
	}
	f.inFlight = true
	return f.gen, nil
}
