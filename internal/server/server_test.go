package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsight/reportd/internal/analytics"
	"github.com/netsight/reportd/internal/auth"
	"github.com/netsight/reportd/internal/report"
	"github.com/netsight/reportd/internal/store"
	"github.com/netsight/reportd/internal/syncer"
)

type fakeEngine struct {
	records []report.Record
	summary analytics.Summary

	lastQuery        store.RecordQuery
	lastAllowedSites []string
}

func (f *fakeEngine) Sites(ctx context.Context) ([]string, error) {
	return []string{"SiteA", "SiteB"}, nil
}

func (f *fakeEngine) Devices(ctx context.Context, site string) ([]string, error) {
	return []string{"ap-01"}, nil
}

func (f *fakeEngine) Filter(ctx context.Context, q store.RecordQuery) ([]report.Record, error) {
	f.lastQuery = q
	return f.records, nil
}

func (f *fakeEngine) Summary(ctx context.Context, allowedSites []string) (analytics.Summary, error) {
	f.lastAllowedSites = allowedSites
	return f.summary, nil
}

type fakeUsers struct {
	users   map[string]*store.User
	deleted []string
	saved   []map[string]any
}

func (f *fakeUsers) FindUser(ctx context.Context, username string) (*store.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) ListUsers(ctx context.Context) ([]store.User, error) {
	var out []store.User
	for _, u := range f.users {
		c := *u
		c.PasswordHash = ""
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeUsers) CreateUser(ctx context.Context, user store.User) error {
	if _, ok := f.users[user.Username]; ok {
		return store.ErrUserExists
	}
	f.users[user.Username] = &user
	return nil
}

func (f *fakeUsers) DeleteUser(ctx context.Context, username string) error {
	if _, ok := f.users[username]; !ok {
		return store.ErrUserNotFound
	}
	delete(f.users, username)
	f.deleted = append(f.deleted, username)
	return nil
}

func (f *fakeUsers) SaveDashboard(ctx context.Context, username string, config []map[string]any) error {
	f.saved = config
	return nil
}

type fakeLedger struct {
	resets int
}

func (f *fakeLedger) ResetLedger(ctx context.Context) (int64, error) {
	f.resets++
	return 3, nil
}

type fakeSyncer struct {
	status   *syncer.Status
	triggers int
}

func (f *fakeSyncer) Trigger() {
	f.triggers++
}

func (f *fakeSyncer) Status() *syncer.Status {
	return f.status
}

type fixture struct {
	server *Server
	engine *fakeEngine
	users  *fakeUsers
	ledger *fakeLedger
	syncer *fakeSyncer
	tokens *auth.TokenIssuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	adminHash, err := auth.HashPassword("admin123")
	require.NoError(t, err)
	userHash, err := auth.HashPassword("user123")
	require.NoError(t, err)

	users := &fakeUsers{users: map[string]*store.User{
		"admin": {Username: "admin", PasswordHash: adminHash, Role: auth.RoleAdmin},
		"bob": {
			Username:     "bob",
			PasswordHash: userHash,
			Role:         auth.RoleUser,
			AllowedSites: []string{"SiteA"},
		},
		"carol": {Username: "carol", PasswordHash: userHash, Role: auth.RoleUser},
	}}

	engine := &fakeEngine{}
	ledger := &fakeLedger{}
	sync := &fakeSyncer{status: syncer.NewStatus()}
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)

	return &fixture{
		server: New(engine, users, ledger, sync, tokens),
		engine: engine,
		users:  users,
		ledger: ledger,
		syncer: sync,
		tokens: tokens,
	}
}

func (f *fixture) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.server.Routes().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) tokenFor(t *testing.T, username string) string {
	t.Helper()
	token, err := f.tokens.Issue(username)
	require.NoError(t, err)
	return token
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	t.Run("valid credentials", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/api/auth/login", "",
			map[string]string{"username": "admin", "password": "admin123"})

		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp["access_token"])
		assert.Equal(t, "bearer", resp["token_type"])
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/api/auth/login", "",
			map[string]string{"username": "admin", "password": "nope"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/api/auth/login", "",
			map[string]string{"username": "ghost", "password": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	t.Run("missing token", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/api/summary", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/api/summary", "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token for deleted user", func(t *testing.T) {
		token := f.tokenFor(t, "gone")
		rec := f.request(t, http.MethodGet, "/api/summary", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAnalyze(t *testing.T) {
	base := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

	t.Run("clients time series", func(t *testing.T) {
		f := newFixture(t)
		f.engine.records = []report.Record{
			{Timestamp: base, Site: "SiteA", Device: "ap-01", Clients: 5},
			{Timestamp: base, Site: "SiteA", Device: "ap-01", Clients: 8},
		}

		rec := f.request(t, http.MethodPost, "/api/analyze", f.tokenFor(t, "admin"),
			map[string]any{"site": "All Sites", "device": "All Devices", "metric": "clients"})

		require.Equal(t, http.StatusOK, rec.Code)
		var points []analytics.SeriesPoint
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
		require.Len(t, points, 1)
		assert.Equal(t, 8, points[0].Clients)
	})

	t.Run("state distribution", func(t *testing.T) {
		f := newFixture(t)
		f.engine.records = []report.Record{
			{Timestamp: base, Site: "SiteA", Device: "ap-01", State: "up"},
			{Timestamp: base, Site: "SiteA", Device: "ap-02", State: "down"},
		}

		rec := f.request(t, http.MethodPost, "/api/analyze", f.tokenFor(t, "admin"),
			map[string]any{"site": "All Sites", "metric": "state"})

		require.Equal(t, http.StatusOK, rec.Code)
		var entries []analytics.DistributionEntry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
		assert.Len(t, entries, 2)
	})

	t.Run("user scoped to allowed sites", func(t *testing.T) {
		f := newFixture(t)

		rec := f.request(t, http.MethodPost, "/api/analyze", f.tokenFor(t, "bob"),
			map[string]any{"site": "All Sites", "metric": "clients"})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"SiteA"}, f.engine.lastQuery.Sites)
	})

	t.Run("forbidden site rejected before query", func(t *testing.T) {
		f := newFixture(t)

		rec := f.request(t, http.MethodPost, "/api/analyze", f.tokenFor(t, "bob"),
			map[string]any{"site": "SiteB", "metric": "clients"})

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, f.engine.lastQuery.Sites)
	})

	t.Run("window and device filters forwarded", func(t *testing.T) {
		f := newFixture(t)

		rec := f.request(t, http.MethodPost, "/api/analyze", f.tokenFor(t, "admin"),
			map[string]any{"site": "SiteA", "device": "ap-01", "metric": "clients", "hours": 24})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ap-01", f.engine.lastQuery.Device)
		assert.Equal(t, 24*time.Hour, f.engine.lastQuery.Window)
	})

	t.Run("unknown metric", func(t *testing.T) {
		f := newFixture(t)

		rec := f.request(t, http.MethodPost, "/api/analyze", f.tokenFor(t, "admin"),
			map[string]any{"site": "All Sites", "metric": "latency"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSummary(t *testing.T) {
	t.Run("admin sees all sites", func(t *testing.T) {
		f := newFixture(t)
		f.engine.summary = analytics.Summary{Connectivity: "50.0%", Alerts: 1, TotalClients: 7}

		rec := f.request(t, http.MethodGet, "/api/summary", f.tokenFor(t, "admin"), nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var summary analytics.Summary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
		assert.Equal(t, "50.0%", summary.Connectivity)
		assert.Nil(t, f.engine.lastAllowedSites)
	})

	t.Run("restricted user passes allowed sites", func(t *testing.T) {
		f := newFixture(t)

		rec := f.request(t, http.MethodGet, "/api/summary", f.tokenFor(t, "bob"), nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"SiteA"}, f.engine.lastAllowedSites)
	})

	t.Run("user without sites gets the empty summary", func(t *testing.T) {
		f := newFixture(t)

		rec := f.request(t, http.MethodGet, "/api/summary", f.tokenFor(t, "carol"), nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var summary analytics.Summary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
		assert.Equal(t, "0%", summary.Connectivity)
		assert.Nil(t, f.engine.lastAllowedSites)
	})
}

func TestLoad(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodPost, "/api/load", f.tokenFor(t, "admin"), map[string]any{})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.syncer.triggers)

	var resp struct {
		SiteMap   map[string][]string `json:"site_map"`
		Dashboard []map[string]any    `json:"dashboard"`
		Role      string              `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "admin", resp.Role)
	assert.Contains(t, resp.SiteMap, "All Sites")
	assert.Equal(t, []string{"All Devices", "ap-01"}, resp.SiteMap["SiteA"])
	require.Len(t, resp.Dashboard, 1)
	assert.Equal(t, "default", resp.Dashboard[0]["id"])
}

func TestAdminEndpoints(t *testing.T) {
	t.Run("non-admin forbidden", func(t *testing.T) {
		f := newFixture(t)
		rec := f.request(t, http.MethodGet, "/api/admin/users", f.tokenFor(t, "bob"), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("create and delete user", func(t *testing.T) {
		f := newFixture(t)
		admin := f.tokenFor(t, "admin")

		rec := f.request(t, http.MethodPost, "/api/admin/users", admin, map[string]any{
			"username":      "dave",
			"password":      "secret",
			"allowed_sites": []string{"SiteB"},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, auth.RoleUser, f.users.users["dave"].Role)

		rec = f.request(t, http.MethodPost, "/api/admin/users", admin, map[string]any{
			"username": "dave",
			"password": "secret",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = f.request(t, http.MethodDelete, "/api/admin/users/dave", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"dave"}, f.users.deleted)
	})

	t.Run("self delete refused", func(t *testing.T) {
		f := newFixture(t)
		rec := f.request(t, http.MethodDelete, "/api/admin/users/admin", f.tokenFor(t, "admin"), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("cache reset", func(t *testing.T) {
		f := newFixture(t)
		rec := f.request(t, http.MethodPost, "/api/admin/cache/reset", f.tokenFor(t, "admin"), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, f.ledger.resets)
	})
}

func TestSyncStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodGet, "/api/sync/status", f.tokenFor(t, "bob"), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap syncer.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.False(t, snap.IsSyncing)
	assert.Equal(t, "Idle", snap.CurrentStep)
}

func TestSaveDashboard(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodPost, "/api/user/dashboard", f.tokenFor(t, "bob"),
		map[string]any{"config": []map[string]any{{"id": "custom"}}})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.users.saved, 1)
	assert.Equal(t, "custom", f.users.saved[0]["id"])
}
