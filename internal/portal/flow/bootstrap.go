package flow

import (
	"context"
	"time"

	"github.com/campuskit/portal/internal/portal/domain"
	"github.com/campuskit/portal/internal/portal/gateway"
	"github.com/campuskit/portal/internal/portal/routes"
	"github.com/campuskit/portal/internal/portal/session"
	"github.com/campuskit/portal/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
)

// Bootstrap is the on-mount session check every entry page runs before any
// role-selection UI is shown: an already-valid session goes straight to its
// dashboard instead of flickering through the login screen.
type Bootstrap struct {
	Sessions session.Store
	Nav      Navigator

	// now is swappable for expiry tests.
	now func() time.Time
}

// BootstrapResult reports what the check found.
type BootstrapResult struct {
	Authenticated bool
	RedirectPath  string
	User          domain.Identity
}

// NewBootstrap creates a bootstrap check over the given store and navigator.
func NewBootstrap(sessions session.Store, nav Navigator) *Bootstrap {
	return &Bootstrap{Sessions: sessions, Nav: nav, now: time.Now}
}

// Run reads the persisted session and either performs a full navigation to
// the resolved dashboard or reports unauthenticated.
//
// Garbage session data is treated the same as "not logged in": a
// half-written record, an unparseable user, or an expired JWT all purge
// the store silently and leave the caller on the unauthenticated view. The
// returned error is reserved for store access failures.
func (b *Bootstrap) Run(ctx context.Context) (BootstrapResult, error) {
	log := slogx.FromContext(ctx)

	rec, err := b.Sessions.Read(ctx)
	if err != nil {
		if err == session.ErrNotFound {
			return BootstrapResult{}, nil
		}
		return BootstrapResult{}, err
	}

	if rec.Token == "" || rec.User == "" {
		log.Warn("bootstrap_partial_session_purged")
		b.purge(ctx)
		return BootstrapResult{}, nil
	}

	user, err := session.DecodeUser(rec.User)
	if err != nil {
		// Fail-safe, not fail-loud: corrupt data looks like a logged-out
		// state to the user.
		log.Warn("bootstrap_corrupt_session_purged", "err", err)
		b.purge(ctx)
		return BootstrapResult{}, nil
	}

	if tokenExpired(rec.Token, b.clock()) {
		log.Info("bootstrap_expired_session_purged", "user_id", user.ID)
		b.purge(ctx)
		return BootstrapResult{}, nil
	}

	path := routes.Resolve(user.Role)
	if !routes.HasConfiguredRoute(user.Role) {
		log.Warn("bootstrap_role_unrouted", "role", user.Role, "fallback", path)
	}

	log.Info("bootstrap_authenticated", "user_id", user.ID, "destination", path)
	b.Nav.Navigate(path)

	return BootstrapResult{Authenticated: true, RedirectPath: path, User: user}, nil
}

func (b *Bootstrap) purge(ctx context.Context) {
	if err := b.Sessions.Clear(ctx); err != nil {
		slogx.FromContext(ctx).Error("bootstrap_purge_failed", "err", err)
	}
}

func (b *Bootstrap) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

// tokenExpired reports whether a bearer token is a well-formed JWT whose exp
// claim has passed. Opaque tokens, non-JWT strings, and JWTs without exp are
// passed through; the backend remains the authority on their validity.
func tokenExpired(token string, now time.Time) bool {
	parser := jwt.NewParser()

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(gateway.NormalizeBearer(token), claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
