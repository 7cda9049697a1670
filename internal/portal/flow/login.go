package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/campuskit/portal/internal/portal/domain"
	"github.com/campuskit/portal/internal/portal/gateway"
	"github.com/campuskit/portal/internal/portal/routes"
	"github.com/campuskit/portal/internal/portal/session"
	"github.com/campuskit/portal/pkg/idx"
	"github.com/campuskit/portal/pkg/slogx"
)

// LoginState enumerates the states of a login attempt.
type LoginState int

const (
	StateSelectingRole LoginState = iota
	StateEnteringCredentials
	StateAwaitingTwoFactor
	StateAuthenticated
)

func (s LoginState) String() string {
	switch s {
	case StateSelectingRole:
		return "selecting_role"
	case StateEnteringCredentials:
		return "entering_credentials"
	case StateAwaitingTwoFactor:
		return "awaiting_two_factor"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// ErrUnknownRole rejects a role pick that is not in the injected catalog.
var ErrUnknownRole = fmt.Errorf("%w: role not in catalog", ErrInvalidTransition)

// LoginConfig parameterizes a login flow. The same machine serves every
// module of the platform; what differs per module is the catalog shown on
// the selection screen, the preselected role, and the confirmation delay
// before redirecting.
type LoginConfig struct {
	// Catalog is the role directory offered on the selection screen.
	Catalog []domain.RoleGroup

	// DefaultRole, when set, is preselected so the flow starts directly at
	// credential entry (the technology console does this).
	DefaultRole domain.RoleID

	// ConfirmationDelay is how long success feedback stays visible before
	// the redirect. Zero is allowed (tests); production uses a short pause
	// so the redirect never fires with no acknowledgment at all.
	ConfirmationDelay time.Duration
}

// LoginOutcome reports what a successful submit led to.
type LoginOutcome struct {
	// TwoFactorRequired is set when the backend wants a second factor; the
	// flow is now waiting in StateAwaitingTwoFactor.
	TwoFactorRequired bool

	// RedirectPath is the resolved dashboard destination once
	// authenticated.
	RedirectPath string
}

// LoginFlow drives one login attempt from role selection to the dashboard
// redirect. Not safe for use from multiple goroutines except as documented:
// all exported methods are internally locked; blocking HTTP work happens
// outside the lock.
type LoginFlow struct {
	gw       *gateway.Client
	sessions session.Store
	nav      Navigator
	cfg      LoginConfig
	id       idx.ID

	mu       sync.Mutex
	state    LoginState
	role     domain.RoleID
	pending  *domain.LoginChallenge
	inFlight bool
	closed   bool

	// gen counts resets. A response carrying an older generation lost the
	// race against Back and is discarded instead of reviving the attempt.
	gen int
}

// NewLoginFlow creates a login flow in StateSelectingRole, or directly in
// StateEnteringCredentials when the config preselects a role.
func NewLoginFlow(gw *gateway.Client, sessions session.Store, nav Navigator, cfg LoginConfig) *LoginFlow {
	f := &LoginFlow{
		gw:       gw,
		sessions: sessions,
		nav:      nav,
		cfg:      cfg,
		id:       idx.New(),
		state:    StateSelectingRole,
	}
	if cfg.DefaultRole != "" {
		f.role = cfg.DefaultRole
		f.state = StateEnteringCredentials
	}
	return f
}

// ID is the flow's log correlation identifier.
func (f *LoginFlow) ID() idx.ID { return f.id }

// State returns the current state.
func (f *LoginFlow) State() LoginState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// SelectedRole returns the role the attempt is running under.
func (f *LoginFlow) SelectedRole() domain.RoleID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.role
}

// PendingChallenge exposes whether a 2FA challenge is being held, for the UI
// layer. The password inside is never exposed.
func (f *LoginFlow) PendingChallenge() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending != nil
}

// SelectRole moves SelectingRole → EnteringCredentials. The pick must come
// from the injected catalog.
func (f *LoginFlow) SelectRole(id domain.RoleID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrFlowClosed
	}
	if f.state != StateSelectingRole {
		return ErrInvalidTransition
	}
	if !f.roleInCatalog(id) {
		return ErrUnknownRole
	}

	f.role = id
	f.state = StateEnteringCredentials
	return nil
}

// Back fully resets the attempt to role selection, discarding any captured
// credentials and in-flight 2FA challenge.
func (f *LoginFlow) Back() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || f.state == StateAuthenticated {
		return
	}
	f.state = StateSelectingRole
	f.role = ""
	f.pending = nil
	f.gen++
}

// Close tears the flow down. Requests already in flight are not cancelled,
// but their results are discarded instead of mutating state after teardown.
func (f *LoginFlow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.pending = nil
}

// SubmitCredentials performs the password round trip. Outcomes:
//   - 2FA required: the credentials are captured for the second round trip
//     and the flow waits in StateAwaitingTwoFactor.
//   - success: the session is persisted and the flow redirects.
//   - backend rejection or transport failure: the error is returned and the
//     flow stays exactly where it was.
func (f *LoginFlow) SubmitCredentials(ctx context.Context, email, password string) (LoginOutcome, error) {
	if err := validateEmail(email); err != nil {
		return LoginOutcome{}, err
	}

	creds := domain.Credentials{Email: email, Password: password, Role: f.SelectedRole()}

	gen, err := f.beginRequest(StateEnteringCredentials)
	if err != nil {
		return LoginOutcome{}, err
	}

	ctx = slogx.WithFlowID(ctx, f.id.String())
	result, err := f.gw.Login(ctx, gateway.LoginRequest{
		Email:    creds.Email,
		Password: creds.Password,
		Role:     string(creds.Role),
	})

	f.mu.Lock()
	f.inFlight = false
	if f.closed {
		f.mu.Unlock()
		return LoginOutcome{}, ErrFlowClosed
	}
	if f.gen != gen {
		f.mu.Unlock()
		return LoginOutcome{}, ErrFlowReset
	}
	if err != nil {
		f.mu.Unlock()
		return LoginOutcome{}, err
	}

	if result.TwoFactorRequired {
		f.pending = &domain.LoginChallenge{Pending: creds}
		f.state = StateAwaitingTwoFactor
		f.mu.Unlock()

		slogx.FromContext(ctx).Info("login_two_factor_required", "role", creds.Role)
		return LoginOutcome{TwoFactorRequired: true}, nil
	}
	f.mu.Unlock()

	return f.finish(ctx, gen, result.Token, result.User)
}

// SubmitTwoFactorCode performs the second round trip using the captured
// credentials. A wrong code leaves the challenge (and the credentials) in
// place so the user only re-enters the code.
func (f *LoginFlow) SubmitTwoFactorCode(ctx context.Context, code string) (LoginOutcome, error) {
	if err := validateOneTimeCode(code); err != nil {
		return LoginOutcome{}, err
	}

	gen, err := f.beginRequest(StateAwaitingTwoFactor)
	if err != nil {
		return LoginOutcome{}, err
	}

	f.mu.Lock()
	if f.pending == nil {
		f.inFlight = false
		f.mu.Unlock()
		return LoginOutcome{}, ErrInvalidTransition
	}
	creds := f.pending.Pending
	f.mu.Unlock()

	ctx = slogx.WithFlowID(ctx, f.id.String())
	result, err := f.gw.VerifyLoginTwoFactor(ctx, gateway.VerifyLoginRequest{
		Email:    creds.Email,
		Password: creds.Password,
		Code:     code,
		Role:     string(creds.Role),
	})

	f.mu.Lock()
	f.inFlight = false
	if f.closed {
		f.mu.Unlock()
		return LoginOutcome{}, ErrFlowClosed
	}
	if f.gen != gen {
		f.mu.Unlock()
		return LoginOutcome{}, ErrFlowReset
	}
	if err != nil {
		// Stay in AwaitingTwoFactor with the challenge intact.
		f.mu.Unlock()
		return LoginOutcome{}, err
	}
	f.pending = nil
	f.mu.Unlock()

	return f.finish(ctx, gen, result.Token, result.User)
}

// beginRequest validates the state gate and claims the single in-flight
// slot. The returned generation is compared again when the response lands:
// a Back in between bumps it, and the late result loses.
func (f *LoginFlow) beginRequest(want LoginState) (int, error) {
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

// finish persists the session, resolves the destination, and redirects after
// the configured confirmation pause.
func (f *LoginFlow) finish(ctx context.Context, gen int, token string, user domain.Identity) (LoginOutcome, error) {
	f.mu.Lock()
	role := f.role
	f.mu.Unlock()

	// The backend occasionally omits the role from the returned identity;
	// the selected role is merged in so routing on the next bootstrap works.
	if user.Role.IsZero() && role != "" {
		user.Role = domain.RoleValue{string(role)}
	}

	encoded, err := session.EncodeUser(user)
	if err != nil {
		return LoginOutcome{}, err
	}
	if err := f.sessions.Write(ctx, session.Record{Token: token, User: encoded}); err != nil {
		return LoginOutcome{}, fmt.Errorf("flow: failed to persist session: %w", err)
	}

	// Later profile calls on this gateway ride the fresh token.
	f.gw.SetBearer(token)

	path := routes.Resolve(user.Role)

	log := slogx.FromContext(ctx)
	log.Info("login_succeeded", "user_id", user.ID, "destination", path)
	if !routes.HasConfiguredRoute(user.Role) {
		log.Warn("login_role_unrouted", "role", user.Role, "fallback", path)
	}

	f.mu.Lock()
	if f.closed || f.gen != gen {
		discard := ErrFlowReset
		if f.closed {
			discard = ErrFlowClosed
		}
		f.mu.Unlock()

		// The session was written above; an attempt the user abandoned
		// must not leave one behind.
		if err := f.sessions.Clear(ctx); err != nil {
			log.Error("login_discard_clear_failed", "err", err)
		}
		return LoginOutcome{}, discard
	}
	f.state = StateAuthenticated
	f.mu.Unlock()

	// Success feedback stays on screen briefly; the redirect must not fire
	// with zero acknowledgment.
	if f.cfg.ConfirmationDelay > 0 {
		select {
		case <-time.After(f.cfg.ConfirmationDelay):
		case <-ctx.Done():
		}
	}
	f.nav.Navigate(path)

	return LoginOutcome{RedirectPath: path}, nil
}

func (f *LoginFlow) roleInCatalog(id domain.RoleID) bool {
	for _, group := range f.cfg.Catalog {
		for _, role := range group.Roles {
			if role.ID == id {
				return true
			}
		}
	}
	return false
}
