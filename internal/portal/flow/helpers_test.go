package flow

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/campuskit/portal/internal/portal/gateway"
	"github.com/campuskit/portal/internal/portal/routes"
	"github.com/campuskit/portal/internal/portal/session"
	sqlitestore "github.com/campuskit/portal/internal/portal/session/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

// newGatewayClient points a gateway client at an in-process fake of the
// remote API.
func newGatewayClient(t *testing.T, handler http.Handler) *gateway.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := gateway.New(srv.URL)
	c.HTTPClient = srv.Client()
	return c
}

// newSessionStore returns a real sqlite-backed store over :memory:.
func newSessionStore(t *testing.T) session.Store {
	t.Helper()

	st, err := sqlitestore.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })
	return st
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

func testLoginConfig() LoginConfig {
	return LoginConfig{Catalog: routes.Catalog()}
}
