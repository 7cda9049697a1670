package portal_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/campuskit/portal/internal/portal/gateway"
	"github.com/campuskit/portal/internal/portal/session"
	"github.com/campuskit/portal/internal/portal/session/drivers/sqlite"
	"github.com/campuskit/portal/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

/*
 * Common helpers for portal client end-to-end tests. The platform backend is
 * replayed by an in-process fake that implements the auth and profile
 * endpoints the client talks to, with real password hashing, real TOTP
 * secrets, and real signed JWTs.
 */

const (
	tokenSigningKey = "e2e-signing-key"
	tokenTTL        = time.Hour

	// twoFactorSignal selects which wire shape the fake uses to report that
	// a second factor is required. The client must treat all three alike.
	signalTopLevelOK    = "top_level_ok"    // 200 with requires_2fa flag
	signalTopLevelError = "top_level_error" // error status, flag at body top level
	signalNestedError   = "nested_error"    // error status, flag inside "error" object
)

// fakeAccount is one provisioned user on the fake backend.
type fakeAccount struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Roles        []string

	TOTPEnabled bool
	TOTPSecret  string

	// Recovery codes are stored fingerprinted; the plaintext leaves the
	// backend exactly once, in the issuing response.
	RecoveryCodeHashes []string

	RecoveryEmail        string
	RecoveryVerified     bool
	PendingRecoveryEmail string
	PendingRecoveryCode  string
	ResendCount          int
}

// fakeAPI is the in-process stand-in for the platform backend.
type fakeAPI struct {
	t *testing.T

	mu              sync.Mutex
	accounts        map[string]*fakeAccount // keyed by email
	pendingLogins   map[string]bool         // emails mid two-factor challenge
	revokedTokens   map[string]bool
	twoFactorSignal string
}

func newFakeAPI(t *testing.T) (*fakeAPI, string) {
	t.Helper()

	api := &fakeAPI{
		t:               t,
		accounts:        make(map[string]*fakeAccount),
		pendingLogins:   make(map[string]bool),
		revokedTokens:   make(map[string]bool),
		twoFactorSignal: signalTopLevelOK,
	}

	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return api, srv.URL
}

// addAccount provisions a user, hashing the password the way the real
// backend would.
func (api *fakeAPI) addAccount(email, password, name string, roles ...string) *fakeAccount {
	api.t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(api.t, err)

	acct := &fakeAccount{
		ID:           fmt.Sprintf("user-%d", len(api.accounts)+1),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Roles:        roles,
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	api.accounts[email] = acct
	return acct
}

// enableTOTP flips an account straight to enrolled, issuing a fresh secret.
func (api *fakeAPI) enableTOTP(acct *fakeAccount) string {
	api.t.Helper()

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Campus Portal",
		AccountName: acct.Email,
	})
	require.NoError(api.t, err)

	api.mu.Lock()
	defer api.mu.Unlock()
	acct.TOTPEnabled = true
	acct.TOTPSecret = key.Secret()
	return key.Secret()
}

func (api *fakeAPI) setTwoFactorSignal(shape string) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.twoFactorSignal = shape
}

func (api *fakeAPI) mintToken(acct *fakeAccount) string {
	api.t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": acct.ID,
		"exp": time.Now().Add(tokenTTL).Unix(),
		"iat": time.Now().Unix(),
	})
	signed, err := tok.SignedString([]byte(tokenSigningKey))
	require.NoError(api.t, err)
	return signed
}

func (api *fakeAPI) handler() http.Handler {
	// Method-qualified ServeMux patterns need go1.22+; dispatch on method
	// manually so the fake works under go1.21.
	routes := map[string]map[string]http.HandlerFunc{
		"/api/v1/auth/login":                    {http.MethodPost: api.handleLogin},
		"/api/v1/auth/login/2fa":                {http.MethodPost: api.handleLoginTwoFactor},
		"/api/v1/auth/logout":                   {http.MethodPost: api.handleLogout},
		"/api/v1/profile/2fa/enable":            {http.MethodPost: api.handleTwoFactorEnable},
		"/api/v1/profile/2fa/verify":            {http.MethodPost: api.handleTwoFactorVerify},
		"/api/v1/profile/2fa/disable":           {http.MethodPost: api.handleTwoFactorDisable},
		"/api/v1/profile/2fa/recovery-codes":    {http.MethodPost: api.handleRecoveryCodes},
		"/api/v1/profile/recovery-email":        {http.MethodPost: api.handleRecoveryEmailAdd, http.MethodDelete: api.handleRecoveryEmailRemove},
		"/api/v1/profile/recovery-email/verify": {http.MethodPost: api.handleRecoveryEmailVerify},
		"/api/v1/profile/recovery-email/resend": {http.MethodPost: api.handleRecoveryEmailResend},
	}
	mux := http.NewServeMux()
	for path, byMethod := range routes {
		byMethod := byMethod
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if h, ok := byMethod[r.Method]; ok {
				h(w, r)
				return
			}
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		})
	}
	return mux
}

func (api *fakeAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	acct, ok := api.accounts[req.Email]
	if !ok || cryptox.VerifyPassword(req.Password, acct.PasswordHash) != nil {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"message": "invalid credentials",
			"errors":  map[string][]string{"email": {"email or password is incorrect"}},
		})
		return
	}

	if acct.TOTPEnabled {
		api.pendingLogins[req.Email] = true
		switch api.twoFactorSignal {
		case signalTopLevelError:
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]any{
				"message":      "two-factor code required",
				"requires_2fa": true,
			})
		case signalNestedError:
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{
					"message":      "two-factor code required",
					"requires_2fa": true,
				},
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{
				"success":      true,
				"requires_2fa": true,
			})
		}
		return
	}

	api.writeLoginSuccess(w, acct)
}

func (api *fakeAPI) handleLoginTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Code     string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	acct, ok := api.accounts[req.Email]
	if !ok || !api.pendingLogins[req.Email] {
		writeError(w, http.StatusUnauthorized, "no login pending")
		return
	}
	if cryptox.VerifyPassword(req.Password, acct.PasswordHash) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !totp.Validate(req.Code, acct.TOTPSecret) {
		writeError(w, http.StatusUnauthorized, "invalid two-factor code")
		return
	}

	delete(api.pendingLogins, req.Email)
	api.writeLoginSuccess(w, acct)
}

// writeLoginSuccess mirrors the backend's envelope, including the
// single-string role shape for one-role accounts.
func (api *fakeAPI) writeLoginSuccess(w http.ResponseWriter, acct *fakeAccount) {
	user := map[string]any{
		"id":    acct.ID,
		"name":  acct.Name,
		"email": acct.Email,
	}
	switch len(acct.Roles) {
	case 0:
	case 1:
		user["role"] = acct.Roles[0]
	default:
		user["role"] = acct.Roles
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data": map[string]any{
			"token": api.mintToken(acct),
			"user":  user,
		},
	})
}

func (api *fakeAPI) handleLogout(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()

	if tok := bearerToken(r); tok != "" {
		api.revokedTokens[tok] = true
	}
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

func (api *fakeAPI) handleTwoFactorEnable(w http.ResponseWriter, r *http.Request) {
	acct := api.authedAccount(w, r)
	if acct == nil {
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Campus Portal",
		AccountName: acct.Email,
	})
	require.NoError(api.t, err)

	codes, hashes := api.mintRecoveryCodes(4)

	api.mu.Lock()
	acct.TOTPSecret = key.Secret()
	acct.RecoveryCodeHashes = hashes
	api.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{
		"secret":         key.Secret(),
		"qr_code_url":    key.URL(),
		"recovery_codes": codes,
	})
}

func (api *fakeAPI) handleTwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	acct := api.authedAccount(w, r)
	if acct == nil {
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	if acct.TOTPSecret == "" || !totp.Validate(req.Code, acct.TOTPSecret) {
		writeError(w, http.StatusUnprocessableEntity, "invalid code")
		return
	}
	acct.TOTPEnabled = true
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

func (api *fakeAPI) handleTwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	acct := api.authedAccount(w, r)
	if acct == nil {
		return
	}
	if !api.checkPassword(w, r, acct) {
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	acct.TOTPEnabled = false
	acct.TOTPSecret = ""
	acct.RecoveryCodeHashes = nil
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

func (api *fakeAPI) handleRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	acct := api.authedAccount(w, r)
	if acct == nil {
		return
	}
	if !api.checkPassword(w, r, acct) {
		return
	}

	codes, hashes := api.mintRecoveryCodes(4)

	api.mu.Lock()
	defer api.mu.Unlock()
	acct.RecoveryCodeHashes = hashes
	json.NewEncoder(w).Encode(map[string]any{"recovery_codes": codes})
}

// mintRecoveryCodes issues n one-time backup codes, returning the plaintext
// for the response body and the fingerprints the account retains.
func (api *fakeAPI) mintRecoveryCodes(n int) (codes, hashes []string) {
	codes = make([]string, n)
	hashes = make([]string, n)
	for i := range codes {
		code, err := cryptox.GenerateToken(cryptox.TokenSize128)
		require.NoError(api.t, err)
		codes[i] = code
		hashes[i] = cryptox.FingerprintToken(code)
	}
	return codes, hashes
}

func (api *fakeAPI) handleRecoveryEmailAdd(w http.ResponseWriter, r *http.Request) {
	acct := api.authedAccount(w, r)
	if acct == nil {
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	code, err := cryptox.GenerateNumericCode(6)
	require.NoError(api.t, err)

	api.mu.Lock()
	defer api.mu.Unlock()
	acct.PendingRecoveryEmail = req.Email
	acct.PendingRecoveryCode = code
	acct.ResendCount = 0
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

func (api *fakeAPI) handleRecoveryEmailVerify(w http.ResponseWriter, r *http.Request) {
	acct := api.authedAccount(w, r)
	if acct == nil {
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	if acct.PendingRecoveryEmail == "" || req.Code != acct.PendingRecoveryCode {
		writeError(w, http.StatusUnprocessableEntity, "invalid code")
		return
	}
	acct.RecoveryEmail = acct.PendingRecoveryEmail
	acct.RecoveryVerified = true
	acct.PendingRecoveryEmail = ""
	acct.PendingRecoveryCode = ""
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

func (api *fakeAPI) handleRecoveryEmailResend(w http.ResponseWriter, r *http.Request) {
	acct := api.authedAccount(w, r)
	if acct == nil {
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	if acct.PendingRecoveryEmail == "" {
		writeError(w, http.StatusConflict, "no verification pending")
		return
	}
	acct.ResendCount++
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

func (api *fakeAPI) handleRecoveryEmailRemove(w http.ResponseWriter, r *http.Request) {
	acct := api.authedAccount(w, r)
	if acct == nil {
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	acct.RecoveryEmail = ""
	acct.RecoveryVerified = false
	acct.PendingRecoveryEmail = ""
	acct.PendingRecoveryCode = ""
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

// authedAccount resolves the bearer token to its account, writing 401 when
// the token is missing, revoked, or unverifiable.
func (api *fakeAPI) authedAccount(w http.ResponseWriter, r *http.Request) *fakeAccount {
	raw := bearerToken(r)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return nil
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	if api.revokedTokens[raw] {
		writeError(w, http.StatusUnauthorized, "token revoked")
		return nil
	}

	claims := jwt.MapClaims{}
	_, err := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})).ParseWithClaims(
		raw, claims,
		func(*jwt.Token) (any, error) { return []byte(tokenSigningKey), nil },
	)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return nil
	}

	sub, _ := claims["sub"].(string)
	for _, acct := range api.accounts {
		if acct.ID == sub {
			return acct
		}
	}
	writeError(w, http.StatusUnauthorized, "unknown subject")
	return nil
}

func (api *fakeAPI) checkPassword(w http.ResponseWriter, r *http.Request, acct *fakeAccount) bool {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return false
	}
	if cryptox.VerifyPassword(req.Password, acct.PasswordHash) != nil {
		writeError(w, http.StatusForbidden, "incorrect password")
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"message": message})
}

// totpCode produces the code an authenticator app would show right now.
func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

// newSessionStore opens a file-backed store in a per-test temp dir, matching
// how the client runs outside of tests.
func newSessionStore(t *testing.T) session.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "portal-session.db")
	store, err := sqlite.NewStore(fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	require.NoError(t, err)
	require.NoError(t, store.ApplyMigrations())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newGateway(baseURL string) *gateway.Client {
	return gateway.New(baseURL)
}

// recordingNavigator captures navigations for assertions.
type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNavigator) destinations() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}
