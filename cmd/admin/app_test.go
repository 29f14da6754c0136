package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/2beens/cutroom-admin/internal/adminapi"
	"github.com/2beens/cutroom-admin/internal/config"
	"github.com/2beens/cutroom-admin/internal/fakeapi"
	"github.com/2beens/cutroom-admin/internal/session"
	"github.com/2beens/cutroom-admin/internal/telemetry/metrics"
	"github.com/2beens/cutroom-admin/internal/tokenstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

const testPassword = "cutroom-test-password"

type testEnv struct {
	app     *App
	manager *session.Manager
	store   *tokenstore.MemoryStore
	out     *bytes.Buffer
	apiURL  string

	statsRequests atomic.Int32
}

func newTestEnv(t *testing.T, input string) *testEnv {
	t.Helper()

	api, err := fakeapi.NewServer(fakeapi.NewServerParams{
		Config: &config.Config{
			FakeBackendTokenTTL:        time.Hour,
			FakeBackendSigningKey:      "cutroom-admin-app-test-key",
			FakeBackendMaxFailedLogins: 5,
			FakeBackendLockout:         time.Minute,
			FakeBackendSeed:            42,
			FakeBackendHashCost:        bcrypt.MinCost,
		},
		Accounts:    fakeapi.DefaultAccounts(testPassword),
		UsersCount:  30,
		OrdersCount: 40,
	})
	require.NoError(t, err)
	env := &testEnv{}
	router := api.Router()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin/dashboard/stats" {
			env.statsRequests.Add(1)
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	store := tokenstore.NewMemoryStore()
	manager, err := session.NewManager(session.NewManagerParams{
		BaseURL:        srv.URL,
		Store:          store,
		RequestTimeout: 5 * time.Second,
		Metrics:        metrics.NewTestManager(),
	})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	app := NewApp(manager, time.Minute, strings.NewReader(input), out)
	require.NoError(t, manager.Initialize(context.Background()))

	env.app = app
	env.manager = manager
	env.store = store
	env.out = out
	env.apiURL = srv.URL
	return env
}

// revokeOutOfBand logs the stored token out behind the app's back, as another
// device or an admin on the backend would.
func (e *testEnv) revokeOutOfBand(t *testing.T) {
	t.Helper()
	token, err := e.store.Load(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	req, err := http.NewRequest(http.MethodPost, e.apiURL+"/admin/auth/logout", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestApp_ProtectedCommandNeedsLogin(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	err := env.app.Run(ctx, []string{"dashboard"})
	require.ErrorIs(t, err, session.ErrNotAuthenticated)
	assert.Equal(t, "/login", env.app.Route())

	require.NoError(t, env.app.Run(ctx, []string{"whoami"}))
	assert.Equal(t, "unauthenticated\n", env.out.String())
}

func TestApp_LoginAndBrowse(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	require.NoError(t, env.app.Run(ctx, []string{"login", "admin@cutroom.io", testPassword}))
	assert.Contains(t, env.out.String(), "welcome, Cutroom Admin")
	assert.Equal(t, "/", env.app.Route())

	env.out.Reset()
	require.NoError(t, env.app.Run(ctx, []string{"whoami"}))
	assert.Contains(t, env.out.String(), "authenticated as Cutroom Admin <admin@cutroom.io> [admin]")
	assert.Contains(t, env.out.String(), "token expires at")

	env.out.Reset()
	require.NoError(t, env.app.Run(ctx, []string{"dashboard"}))
	assert.Contains(t, env.out.String(), "users")
	assert.Contains(t, env.out.String(), "pending kyc")
	assert.Equal(t, "/dashboard", env.app.Route())

	env.out.Reset()
	require.NoError(t, env.app.Run(ctx, []string{"users", "-role=editor"}))
	assert.True(t, strings.HasPrefix(env.out.String(), "ID"))
	assert.Contains(t, env.out.String(), "page 1/")

	env.out.Reset()
	require.NoError(t, env.app.Run(ctx, []string{"orders", "-status=completed"}))
	assert.Contains(t, env.out.String(), "TITLE")

	env.out.Reset()
	require.NoError(t, env.app.Run(ctx, []string{"kyc", "-status=pending"}))
	assert.Contains(t, env.out.String(), "DOCUMENT")

	err := env.app.Run(ctx, []string{"ban", "some-user"})
	assert.EqualError(t, err, "only super admins can ban or unban users")

	err = env.app.Run(ctx, []string{"reject", "some-kyc"})
	assert.ErrorIs(t, err, errUsage)

	err = env.app.Run(ctx, []string{"frobnicate"})
	assert.EqualError(t, err, "unknown command [frobnicate], try help")
	assert.Equal(t, "/", env.app.Route())
}

func TestApp_LoginFailure(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	err := env.app.Run(ctx, []string{"login", "admin@cutroom.io", "wrong-password"})
	assert.EqualError(t, err, "Invalid email or password")
	assert.False(t, env.manager.IsAuthenticated())

	err = env.app.Run(ctx, []string{"login"})
	assert.ErrorIs(t, err, errUsage)
}

func TestApp_RevokedTokenRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	require.NoError(t, env.app.Run(ctx, []string{"login", "admin@cutroom.io", testPassword}))
	env.revokeOutOfBand(t)
	env.out.Reset()

	err := env.app.Run(ctx, []string{"users"})
	require.Error(t, err)

	assert.Equal(t, "session expired, please log in again [/login]\n", env.out.String())
	assert.Equal(t, "/login", env.app.Route())
	assert.False(t, env.manager.IsAuthenticated())
	token, err := env.store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	// and the next protected command does not even reach the backend
	err = env.app.Run(ctx, []string{"orders"})
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestApp_SuperAdminModeration(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	require.NoError(t, env.app.Run(ctx, []string{"login", "root@cutroom.io", testPassword}))

	users, err := env.app.users.List(ctx, adminapi.UserListParams{})
	require.NoError(t, err)
	require.NotEmpty(t, users.Items)
	userID := users.Items[0].ID

	require.NoError(t, env.app.Run(ctx, []string{"ban", userID}))
	require.NoError(t, env.app.Run(ctx, []string{"unban", userID}))

	submissions, err := env.app.kyc.List(ctx, "pending")
	require.NoError(t, err)
	require.NotEmpty(t, submissions)

	env.out.Reset()
	require.NoError(t, env.app.Run(ctx, []string{"reject", submissions[0].ID, "Document", "expired"}))
	assert.Equal(t, "done\n", env.out.String())

	err = env.app.Run(ctx, []string{"approve", submissions[0].ID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}

func TestApp_DashboardNotSharedAcrossSessions(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	require.NoError(t, env.app.Run(ctx, []string{"login", "admin@cutroom.io", testPassword}))
	require.NoError(t, env.app.Run(ctx, []string{"dashboard"}))
	require.NoError(t, env.app.Run(ctx, []string{"dashboard"}))
	assert.Equal(t, int32(1), env.statsRequests.Load(), "second view is served from cache")

	require.NoError(t, env.app.Run(ctx, []string{"logout"}))
	require.NoError(t, env.app.Run(ctx, []string{"login", "root@cutroom.io", testPassword}))
	require.NoError(t, env.app.Run(ctx, []string{"dashboard"}))
	assert.Equal(t, int32(2), env.statsRequests.Load(), "a new session fetches fresh stats")

	// logging in again without a logout also starts from a clean cache
	require.NoError(t, env.app.Run(ctx, []string{"login", "admin@cutroom.io", testPassword}))
	require.NoError(t, env.app.Run(ctx, []string{"dashboard"}))
	assert.Equal(t, int32(3), env.statsRequests.Load())
}

func TestApp_Shell(t *testing.T) {
	input := strings.Join([]string{
		"login root@cutroom.io",
		testPassword,
		"whoami",
		"change-password",
		testPassword,
		"a-brand-new-password",
		"logout",
		"exit",
		"whoami",
	}, "\n")
	env := newTestEnv(t, input)

	require.NoError(t, env.app.Shell(context.Background()))

	output := env.out.String()
	assert.Contains(t, output, "cutroom-admin /> password: welcome, Cutroom Root")
	assert.Contains(t, output, "authenticated as Cutroom Root <root@cutroom.io> [superadmin]")
	assert.Contains(t, output, "Password changed successfully")
	assert.Contains(t, output, "logged out")
	assert.Contains(t, output, "cutroom-admin /login> ")
	assert.Equal(t, 1, strings.Count(output, "authenticated as"), "nothing runs after exit")
	assert.False(t, env.manager.IsAuthenticated())
}

func TestSplitOptions(t *testing.T) {
	opts, rest := splitOptions([]string{"-role=editor", "ann", "--page=2", "-banned", "lee"})
	assert.Equal(t, map[string]string{"role": "editor", "page": "2", "banned": ""}, opts)
	assert.Equal(t, []string{"ann", "lee"}, rest)

	assert.Equal(t, 3, atoiOr("3", 1))
	assert.Equal(t, 1, atoiOr("", 1))
	assert.Equal(t, 1, atoiOr("-4", 1))
}
