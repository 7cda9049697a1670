package flow

import (
	"context"
	"fmt"

	"github.com/campuskit/portal/internal/portal/gateway"
	"github.com/campuskit/portal/internal/portal/session"
	"github.com/campuskit/portal/pkg/slogx"
)

// SignOut ends the session: a best-effort logout call to the backend, then
// an unconditional clear of the local store. The local clear happens whether
// or not the API call succeeds, and calling this twice is harmless.
func SignOut(ctx context.Context, gw *gateway.Client, sessions session.Store) error {
	log := slogx.FromContext(ctx)

	if err := gw.Logout(ctx); err != nil {
		// The token may already be invalid server-side; local state is
		// what matters here.
		log.Warn("logout_request_failed", "err", err)
	}
	gw.ClearBearer()

	if err := sessions.Clear(ctx); err != nil {
		return fmt.Errorf("flow: failed to clear session: %w", err)
	}

	log.Info("signed_out")
	return nil
}
