package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/campuskit/portal/internal/portal/domain"
	"github.com/campuskit/portal/internal/portal/gateway"
	"github.com/campuskit/portal/pkg/idx"
	"github.com/campuskit/portal/pkg/slogx"
	"golang.org/x/time/rate"
)

// RecoveryEmailState enumerates the states of the recovery-email machine.
type RecoveryEmailState int

const (
	StateUnset RecoveryEmailState = iota
	StatePendingVerification
	StateVerified
)

func (s RecoveryEmailState) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StatePendingVerification:
		return "pending_verification"
	case StateVerified:
		return "verified"
	default:
		return "unknown"
	}
}

var (
	// ErrSameAsPrimary rejects a recovery address equal to the login email.
	ErrSameAsPrimary = errors.New("flow: recovery email must differ from the primary email")

	// ErrResendCooldown rejects a resend attempted before the cooldown
	// window has passed. Never costs a round trip.
	ErrResendCooldown = errors.New("flow: resend not available yet, try again shortly")
)

// defaultResendCooldown paces code re-dispatch when no interval is given.
const defaultResendCooldown = 30 * time.Second

// RecoveryEmailFlow drives adding, verifying, and removing the account's
// recovery email. The pending step is purely client-local; only the verified
// address persists server-side.
type RecoveryEmailFlow struct {
	gw           *gateway.Client
	primaryEmail string
	resend       *rate.Limiter
	id           idx.ID

	mu           sync.Mutex
	state        RecoveryEmailState
	current      domain.RecoveryEmail
	pendingEmail string
	inFlight     bool
	closed       bool

	// gen counts cancellations so a response landing after Cancel is
	// discarded instead of reviving the abandoned address.
	gen int
}

// NewRecoveryEmailFlow creates the flow seeded with the profile's current
// recovery email, if any. A zero cooldown selects the default.
func NewRecoveryEmailFlow(gw *gateway.Client, primaryEmail string, existing *domain.RecoveryEmail, cooldown time.Duration) *RecoveryEmailFlow {
	if cooldown <= 0 {
		cooldown = defaultResendCooldown
	}

	f := &RecoveryEmailFlow{
		gw:           gw,
		primaryEmail: primaryEmail,
		resend:       rate.NewLimiter(rate.Every(cooldown), 1),
		id:           idx.New(),
		state:        StateUnset,
	}
	if existing != nil && existing.Verified {
		f.current = *existing
		f.state = StateVerified
	}
	return f
}

// State returns the current state.
func (f *RecoveryEmailFlow) State() RecoveryEmailState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Current returns the verified recovery email, if any.
func (f *RecoveryEmailFlow) Current() (domain.RecoveryEmail, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.state == StateVerified
}

// PendingEmail returns the address awaiting verification, for display.
func (f *RecoveryEmailFlow) PendingEmail() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingEmail
}

// Close tears the flow down; late results are discarded.
func (f *RecoveryEmailFlow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.pendingEmail = ""
}

// Add moves Unset → PendingVerification: the address is registered and the
// backend dispatches a verification code to it. The address must be
// well-formed and must differ from the primary login email.
func (f *RecoveryEmailFlow) Add(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if strings.EqualFold(email, f.primaryEmail) {
		return ErrSameAsPrimary
	}

	gen, err := f.beginRequest(StateUnset)
	if err != nil {
		return err
	}

	ctx = slogx.WithFlowID(ctx, f.id.String())
	err = f.gw.AddRecoveryEmail(ctx, email)

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

	f.pendingEmail = email
	f.state = StatePendingVerification
	slogx.FromContext(ctx).Info("recovery_email_pending")
	return nil
}

// VerifyCode moves PendingVerification → Verified. A wrong code leaves the
// flow pending; the user may retry or resend.
func (f *RecoveryEmailFlow) VerifyCode(ctx context.Context, code string) error {
	if err := validateOneTimeCode(code); err != nil {
		return err
	}

	gen, err := f.beginRequest(StatePendingVerification)
	if err != nil {
		return err
	}

	ctx = slogx.WithFlowID(ctx, f.id.String())
	err = f.gw.VerifyRecoveryEmail(ctx, code)

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

	f.current = domain.RecoveryEmail{Email: f.pendingEmail, Verified: true}
	f.pendingEmail = ""
	f.state = StateVerified
	slogx.FromContext(ctx).Info("recovery_email_verified")
	return nil
}

// Resend re-dispatches the verification code without changing state. Paced
// by a local cooldown so the action cannot hammer code dispatch.
func (f *RecoveryEmailFlow) Resend(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	if f.state != StatePendingVerification {
		f.mu.Unlock()
		return ErrInvalidTransition
	}
	email := f.pendingEmail
	f.mu.Unlock()

	if !f.resend.Allow() {
		return ErrResendCooldown
	}

	gen, err := f.beginRequest(StatePendingVerification)
	if err != nil {
		return err
	}

	ctx = slogx.WithFlowID(ctx, f.id.String())
	err = f.gw.ResendRecoveryCode(ctx, email)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	if f.closed {
		return ErrFlowClosed
	}
	if f.gen != gen {
		return ErrFlowReset
	}
	return err
}

// Cancel returns PendingVerification → Unset, discarding the pending address
// and anything typed into the code field. No partial record survives.
func (f *RecoveryEmailFlow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || f.state != StatePendingVerification {
		return
	}
	f.pendingEmail = ""
	f.state = StateUnset
	f.gen++
}

// Remove moves Verified → Unset, deleting the backend record outright. The
// confirmation dialog lives in the UI layer; by the time this is called the
// user has already confirmed.
func (f *RecoveryEmailFlow) Remove(ctx context.Context) error {
	gen, err := f.beginRequest(StateVerified)
	if err != nil {
		return err
	}

	ctx = slogx.WithFlowID(ctx, f.id.String())
	err = f.gw.RemoveRecoveryEmail(ctx)

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

	f.current = domain.RecoveryEmail{}
	f.state = StateUnset
	slogx.FromContext(ctx).Info("recovery_email_removed")
	return nil
}

func (f *RecoveryEmailFlow) beginRequest(want RecoveryEmailState) (int, error) {
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
