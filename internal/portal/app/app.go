package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/campuskit/portal/internal/portal/domain"
	"github.com/campuskit/portal/internal/portal/gateway"
	"github.com/campuskit/portal/internal/portal/session"
	"github.com/campuskit/portal/internal/portal/session/drivers/sqlite"
	"github.com/campuskit/portal/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application wires the session store, the API gateway, and the terminal
// front-end for the portal client.
type Application struct {
	cfg    Config
	logger *slog.Logger

	sessions session.Store
	gw       *gateway.Client

	in  *bufio.Reader
	out io.Writer
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "portal-client",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		gw:  gateway.New(cfg.APIBaseURL),
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
	}
	if cfg.HTTPTimeout > 0 {
		app.gw.HTTPClient.Timeout = cfg.HTTPTimeout
	}

	if err := app.initSessionStore(); err != nil {
		return nil, err
	}

	return app, nil
}

// Run dispatches a single command and returns when it completes. The
// process exit code is the caller's concern.
func (app *Application) Run(ctx context.Context, args []string) error {
	ctx = slogx.WithContext(ctx, app.logger)

	if len(args) == 0 {
		app.printUsage()
		return nil
	}

	switch args[0] {
	case "login":
		return app.cmdLogin(ctx)
	case "logout":
		return app.cmdLogout(ctx)
	case "status":
		return app.cmdStatus(ctx)
	case "mfa":
		return app.cmdMFA(ctx, args[1:])
	case "recovery-email":
		return app.cmdRecoveryEmail(ctx, args[1:])
	default:
		app.printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// Close releases the session store. Safe to call after a failed command.
func (app *Application) Close() error {
	return app.sessions.Close()
}

func (app *Application) initSessionStore() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.SessionFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply session store migrations: %w", err)
	}

	app.sessions = db
	return nil
}

// currentIdentity loads the persisted session, arms the gateway with its
// bearer token, and returns the signed-in identity. Commands that need an
// authenticated user call this first.
func (app *Application) currentIdentity(ctx context.Context) (domain.Identity, error) {
	rec, err := app.sessions.Read(ctx)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("not signed in, run `portalctl login` first: %w", err)
	}

	user, err := session.DecodeUser(rec.User)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("stored session is unreadable, run `portalctl login` again: %w", err)
	}

	app.gw.SetBearer(rec.Token)
	return user, nil
}

func (app *Application) printUsage() {
	fmt.Fprint(app.out, `usage: portalctl <command>

commands:
  login                       sign in and persist a session
  logout                      sign out and clear the local session
  status                      show the current session, if any
  mfa enable                  enroll an authenticator app
  mfa disable                 turn two-factor auth off (asks for password)
  mfa recovery-codes          issue a fresh set of recovery codes
  recovery-email add          register and verify a recovery email
  recovery-email remove       delete the recovery email
`)
}
