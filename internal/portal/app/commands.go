package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/campuskit/portal/internal/portal/domain"
	"github.com/campuskit/portal/internal/portal/flow"
	"github.com/campuskit/portal/internal/portal/gateway"
	"github.com/campuskit/portal/internal/portal/routes"
	"github.com/golang-jwt/jwt/v5"
)

const maxCodeAttempts = 3

func (app *Application) cmdLogin(ctx context.Context) error {
	// An existing valid session short-circuits the whole flow.
	boot := flow.NewBootstrap(app.sessions, app.navigator())
	res, err := boot.Run(ctx)
	if err != nil {
		return err
	}
	if res.Authenticated {
		fmt.Fprintf(app.out, "already signed in as %s\n", res.User.Email)
		return nil
	}

	lf := flow.NewLoginFlow(app.gw, app.sessions, app.navigator(), flow.LoginConfig{
		Catalog:           routes.Catalog(),
		DefaultRole:       app.cfg.DefaultRole,
		ConfirmationDelay: app.cfg.ConfirmationDelay,
	})
	defer lf.Close()

	if lf.State() == flow.StateSelectingRole {
		role, err := app.promptRole()
		if err != nil {
			return err
		}
		if err := lf.SelectRole(role); err != nil {
			return err
		}
	}

	email, err := app.prompt("email: ")
	if err != nil {
		return err
	}
	password, err := app.prompt("password: ")
	if err != nil {
		return err
	}

	outcome, err := lf.SubmitCredentials(ctx, email, password)
	if err != nil {
		return loginFailure(err)
	}

	if outcome.TwoFactorRequired {
		outcome, err = app.promptTwoFactor(ctx, lf)
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(app.out, "signed in, landing at %s\n", outcome.RedirectPath)
	return nil
}

// promptTwoFactor collects authenticator codes until one verifies or the
// attempt budget runs out. Credentials stay captured in the flow, so a bad
// code never means retyping the password.
func (app *Application) promptTwoFactor(ctx context.Context, lf *flow.LoginFlow) (flow.LoginOutcome, error) {
	for attempt := 1; ; attempt++ {
		code, err := app.prompt("authenticator code: ")
		if err != nil {
			return flow.LoginOutcome{}, err
		}

		outcome, err := lf.SubmitTwoFactorCode(ctx, code)
		if err == nil {
			return outcome, nil
		}
		if attempt >= maxCodeAttempts {
			return flow.LoginOutcome{}, fmt.Errorf("two-factor verification failed: %w", err)
		}
		fmt.Fprintf(app.out, "%s\n", codeFailureMessage(err))
	}
}

func (app *Application) cmdLogout(ctx context.Context) error {
	if rec, err := app.sessions.Read(ctx); err == nil {
		app.gw.SetBearer(rec.Token)
	}

	if err := flow.SignOut(ctx, app.gw, app.sessions); err != nil {
		return err
	}
	fmt.Fprintln(app.out, "signed out")
	return nil
}

func (app *Application) cmdStatus(ctx context.Context) error {
	// status only reports, it never redirects
	res, err := flow.NewBootstrap(app.sessions, flow.NavigatorFunc(func(string) {})).Run(ctx)
	if err != nil {
		return err
	}

	if !res.Authenticated {
		fmt.Fprintln(app.out, "not signed in")
		return nil
	}

	fmt.Fprintf(app.out, "signed in as %s (%s)\n", res.User.Name, res.User.Email)
	if !res.User.Role.IsZero() {
		fmt.Fprintf(app.out, "roles:     %s\n", strings.Join(res.User.Role, ", "))
	}
	fmt.Fprintf(app.out, "dashboard: %s\n", res.RedirectPath)

	if rec, err := app.sessions.Read(ctx); err == nil {
		if exp, ok := tokenExpiry(rec.Token); ok {
			fmt.Fprintf(app.out, "expires:   %s\n", exp.Format(time.RFC3339))
		}
	}
	return nil
}

// tokenExpiry reads the exp claim out of a JWT bearer token without
// verifying the signature. Opaque tokens report no expiry.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(gateway.NormalizeBearer(token), claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (app *Application) cmdMFA(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: portalctl mfa <enable|disable|recovery-codes>")
	}

	if _, err := app.currentIdentity(ctx); err != nil {
		return err
	}

	switch args[0] {
	case "enable":
		return app.mfaEnable(ctx)
	case "disable":
		return app.mfaDisable(ctx)
	case "recovery-codes":
		return app.mfaRecoveryCodes(ctx)
	default:
		return fmt.Errorf("unknown mfa subcommand %q", args[0])
	}
}

func (app *Application) mfaEnable(ctx context.Context) error {
	ef := flow.NewEnrollmentFlow(app.gw, false)
	defer ef.Close()

	enrollment, err := ef.Begin(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(app.out, "scan this URI with your authenticator app:")
	fmt.Fprintf(app.out, "  %s\n", enrollment.QRPayload)
	if enrollment.Account != "" {
		fmt.Fprintf(app.out, "  (%s, account %s)\n", enrollment.Issuer, enrollment.Account)
	}
	fmt.Fprintf(app.out, "or enter the secret manually: %s\n\n", enrollment.Secret)

	fmt.Fprintln(app.out, "recovery codes (shown once, store them somewhere safe):")
	for _, code := range enrollment.RecoveryCodes {
		fmt.Fprintf(app.out, "  %s\n", code)
	}

	if ok, err := app.confirm("I have saved my recovery codes"); err != nil {
		return err
	} else if !ok {
		ef.Cancel()
		fmt.Fprintln(app.out, "enrollment cancelled, nothing was enabled")
		return nil
	}
	if err := ef.AcknowledgeRecoveryCodes(); err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		code, err := app.prompt("code from your authenticator: ")
		if err != nil {
			return err
		}

		err = ef.VerifyCode(ctx, code)
		if err == nil {
			break
		}
		if attempt >= maxCodeAttempts {
			ef.Cancel()
			return fmt.Errorf("enrollment verification failed: %w", err)
		}
		fmt.Fprintf(app.out, "%s\n", codeFailureMessage(err))
	}

	fmt.Fprintln(app.out, "two-factor authentication is now enabled")
	return nil
}

func (app *Application) mfaDisable(ctx context.Context) error {
	if ok, err := app.confirm("disable two-factor authentication"); err != nil {
		return err
	} else if !ok {
		fmt.Fprintln(app.out, "aborted")
		return nil
	}

	password, err := app.prompt("confirm your password: ")
	if err != nil {
		return err
	}

	ef := flow.NewEnrollmentFlow(app.gw, true)
	defer ef.Close()

	if err := ef.Disable(ctx, password); err != nil {
		return err
	}
	fmt.Fprintln(app.out, "two-factor authentication is now disabled")
	return nil
}

func (app *Application) mfaRecoveryCodes(ctx context.Context) error {
	fmt.Fprintln(app.out, "this replaces your existing recovery codes; the old ones stop working")
	password, err := app.prompt("confirm your password: ")
	if err != nil {
		return err
	}

	ef := flow.NewEnrollmentFlow(app.gw, true)
	defer ef.Close()

	codes, err := ef.RegenerateRecoveryCodes(ctx, password)
	if err != nil {
		return err
	}

	fmt.Fprintln(app.out, "new recovery codes (shown once):")
	for _, code := range codes {
		fmt.Fprintf(app.out, "  %s\n", code)
	}
	return nil
}

func (app *Application) cmdRecoveryEmail(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: portalctl recovery-email <add|remove>")
	}

	user, err := app.currentIdentity(ctx)
	if err != nil {
		return err
	}

	switch args[0] {
	case "add":
		return app.recoveryEmailAdd(ctx, user)
	case "remove":
		return app.recoveryEmailRemove(ctx, user)
	default:
		return fmt.Errorf("unknown recovery-email subcommand %q", args[0])
	}
}

func (app *Application) recoveryEmailAdd(ctx context.Context, user domain.Identity) error {
	rf := flow.NewRecoveryEmailFlow(app.gw, user.Email, nil, app.cfg.ResendCooldown)
	defer rf.Close()

	email, err := app.prompt("recovery email address: ")
	if err != nil {
		return err
	}
	if err := rf.Add(ctx, email); err != nil {
		return err
	}
	fmt.Fprintf(app.out, "a verification code was sent to %s\n", rf.PendingEmail())

	for attempt := 1; ; attempt++ {
		code, err := app.prompt("verification code (or 'resend'): ")
		if err != nil {
			return err
		}

		if strings.EqualFold(strings.TrimSpace(code), "resend") {
			switch err := rf.Resend(ctx); {
			case errors.Is(err, flow.ErrResendCooldown):
				fmt.Fprintln(app.out, "resend not available yet, try again shortly")
			case err != nil:
				return err
			default:
				fmt.Fprintln(app.out, "code resent")
			}
			continue
		}

		err = rf.VerifyCode(ctx, code)
		if err == nil {
			break
		}
		if attempt >= maxCodeAttempts {
			rf.Cancel()
			return fmt.Errorf("recovery email verification failed: %w", err)
		}
		fmt.Fprintf(app.out, "%s\n", codeFailureMessage(err))
	}

	fmt.Fprintln(app.out, "recovery email verified")
	return nil
}

func (app *Application) recoveryEmailRemove(ctx context.Context, user domain.Identity) error {
	if ok, err := app.confirm("remove the recovery email from this account"); err != nil {
		return err
	} else if !ok {
		fmt.Fprintln(app.out, "aborted")
		return nil
	}

	rf := flow.NewRecoveryEmailFlow(app.gw, user.Email, &domain.RecoveryEmail{Verified: true}, app.cfg.ResendCooldown)
	defer rf.Close()

	if err := rf.Remove(ctx); err != nil {
		return err
	}
	fmt.Fprintln(app.out, "recovery email removed")
	return nil
}

// navigator renders a redirect as terminal output. The dashboard itself
// lives in the web front-end; the client only reports where it would land.
func (app *Application) navigator() flow.Navigator {
	return flow.NavigatorFunc(func(path string) {
		fmt.Fprintf(app.out, "-> %s\n", path)
	})
}

func (app *Application) promptRole() (domain.RoleID, error) {
	var flat []domain.Role
	for _, group := range routes.Catalog() {
		fmt.Fprintf(app.out, "%s\n", group.Name)
		for _, role := range group.Roles {
			flat = append(flat, role)
			fmt.Fprintf(app.out, "  %2d) %-12s %s\n", len(flat), role.DisplayName, role.Description)
		}
	}

	for {
		answer, err := app.prompt("select a role: ")
		if err != nil {
			return "", err
		}

		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(flat) {
			return flat[n-1].ID, nil
		}
		for _, role := range flat {
			if strings.EqualFold(answer, string(role.ID)) {
				return role.ID, nil
			}
		}
		fmt.Fprintln(app.out, "enter a number from the list or a role name")
	}
}

func (app *Application) prompt(label string) (string, error) {
	fmt.Fprint(app.out, label)
	line, err := app.in.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (app *Application) confirm(action string) (bool, error) {
	answer, err := app.prompt(fmt.Sprintf("%s? [y/N]: ", action))
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// loginFailure turns API rejections into terminal-friendly messages,
// surfacing per-field validation details when the backend provides them.
func loginFailure(err error) error {
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		// The top-level message always shows, even next to field errors.
		if lines := apiErr.FieldMessages(); len(lines) > 0 {
			if apiErr.Message != "" {
				return fmt.Errorf("login rejected: %s\n  %s", apiErr.Message, strings.Join(lines, "\n  "))
			}
			return fmt.Errorf("login rejected:\n  %s", strings.Join(lines, "\n  "))
		}
		return fmt.Errorf("login rejected: %s", apiErr.Message)
	}
	return err
}

func codeFailureMessage(err error) string {
	if errors.Is(err, flow.ErrInvalidCode) {
		return "codes are exactly six digits, try again"
	}
	return "that code didn't verify, try again"
}
