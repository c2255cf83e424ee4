package web_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "storefront/pkg/domain-errors"
	"storefront/pkg/testutil"

	"storefront/internal/credential"
	"storefront/internal/guard"
	"storefront/internal/platform/logger"
	"storefront/internal/session/broadcast"
	"storefront/internal/session/interceptor"
	"storefront/internal/session/models"
	"storefront/internal/transport/web"
)

type stubSessions struct {
	snap      models.Snapshot
	loginErr  error
	signupErr error

	gotEmail    string
	gotPassword string
	gotName     string
	gotRole     models.Role
	loggedOut   bool
}

func (s *stubSessions) Snapshot() models.Snapshot { return s.snap }

func (s *stubSessions) Login(_ context.Context, email, password string) error {
	s.gotEmail, s.gotPassword = email, password
	return s.loginErr
}

func (s *stubSessions) Signup(_ context.Context, name, email, password string, role models.Role) error {
	s.gotName, s.gotEmail, s.gotPassword, s.gotRole = name, email, password, role
	return s.signupErr
}

func (s *stubSessions) Logout(context.Context) error {
	s.loggedOut = true
	return nil
}

func anonymous() models.Snapshot {
	return models.Snapshot{State: models.StateAnonymous}
}

func authenticated() models.Snapshot {
	return models.Snapshot{
		State:    models.StateAuthenticated,
		Identity: &models.Identity{ID: "u1", Name: "Ada", Email: "ada@example.com", Role: models.RoleCustomer},
	}
}

type rig struct {
	sessions *stubSessions
	creds    *credential.MemoryStore
	bus      *broadcast.Broadcaster
	router   http.Handler
}

// newRig assembles the shell router around a stub session service. When the
// stub reports an authenticated session the credential store is seeded so the
// route guard's local check passes.
func newRig(t *testing.T, sessions *stubSessions, backendURL string) *rig {
	t.Helper()
	log := logger.New()
	creds := credential.NewMemoryStore()
	bus := broadcast.New()

	if sessions.snap.State == models.StateAuthenticated {
		require.NoError(t, creds.Set(context.Background(), testutil.Token(t, "u1", time.Now().Add(time.Hour))))
	}

	data := &http.Client{Transport: interceptor.New(nil, creds, bus)}
	g := guard.New(sessions, creds, bus)
	h := web.NewHandler(sessions, data, backendURL, "/login", log)
	return &rig{
		sessions: sessions,
		creds:    creds,
		bus:      bus,
		router:   web.NewRouter(h, g, nil, log),
	}
}

func (r *rig) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (r *rig) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.router.ServeHTTP(rec, req)
	return rec
}

func TestLoginFormRenders(t *testing.T) {
	r := newRig(t, &stubSessions{snap: anonymous()}, "http://backend")

	rec := r.get("/login")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sign in")
}

func TestLoginFormRedirectsLiveSession(t *testing.T) {
	r := newRig(t, &stubSessions{snap: authenticated()}, "http://backend")

	rec := r.get("/login")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestLoginSuccessRedirects(t *testing.T) {
	sessions := &stubSessions{snap: anonymous()}
	r := newRig(t, sessions, "http://backend")

	rec := r.postForm("/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"hunter2"},
	})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	assert.Equal(t, "ada@example.com", sessions.gotEmail)
	assert.Equal(t, "hunter2", sessions.gotPassword)
}

func TestLoginRejectionShowsBackendMessage(t *testing.T) {
	sessions := &stubSessions{
		snap:     anonymous(),
		loginErr: dErrors.New(dErrors.CodeInvalidCredentials, "Invalid credentials"),
	}
	r := newRig(t, sessions, "http://backend")

	rec := r.postForm("/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"wrong"},
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid credentials")
	assert.Contains(t, rec.Body.String(), "ada@example.com", "form keeps the typed email")
}

func TestSignupParsesRole(t *testing.T) {
	sessions := &stubSessions{snap: anonymous()}
	r := newRig(t, sessions, "http://backend")

	rec := r.postForm("/signup", url.Values{
		"name":     {"Vera"},
		"email":    {"vera@example.com"},
		"password": {"hunter2"},
		"role":     {"vendor"},
	})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, models.RoleVendor, sessions.gotRole)
}

func TestSignupDefaultsUnknownRoleToCustomer(t *testing.T) {
	sessions := &stubSessions{snap: anonymous()}
	r := newRig(t, sessions, "http://backend")

	r.postForm("/signup", url.Values{
		"name":     {"Vera"},
		"email":    {"vera@example.com"},
		"password": {"hunter2"},
		"role":     {"overlord"},
	})

	assert.Equal(t, models.RoleCustomer, sessions.gotRole)
}

func TestLogoutAlwaysLandsOnLogin(t *testing.T) {
	sessions := &stubSessions{snap: authenticated()}
	r := newRig(t, sessions, "http://backend")

	rec := r.postForm("/logout", url.Values{})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.True(t, sessions.loggedOut)
}

func TestDashboardRendersIdentity(t *testing.T) {
	r := newRig(t, &stubSessions{snap: authenticated()}, "http://backend")

	rec := r.get("/dashboard")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ada")
	assert.Contains(t, rec.Body.String(), "ada@example.com")
}

func TestDashboardRedirectsAnonymous(t *testing.T) {
	r := newRig(t, &stubSessions{snap: anonymous()}, "http://backend")

	rec := r.get("/dashboard")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestVendorPageRequiresVendorRole(t *testing.T) {
	r := newRig(t, &stubSessions{snap: authenticated()}, "http://backend")

	rec := r.get("/vendor")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOrdersProxiesWithCredential(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"o1"}]`))
	}))
	defer backend.Close()

	r := newRig(t, &stubSessions{snap: authenticated()}, backend.URL)

	rec := r.get("/orders")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"o1"}]`, rec.Body.String())
}

func TestOrdersRejectionLandsOnLogin(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Unauthorized access"}`))
	}))
	defer backend.Close()

	r := newRig(t, &stubSessions{snap: authenticated()}, backend.URL)

	rec := r.get("/orders")

	// The visitor ends at the entry view, never at the backend's raw error.
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	_, err := r.creds.Get(context.Background())
	assert.Error(t, err, "interceptor should have cleared the credential")
	select {
	case <-r.bus.C():
	default:
		t.Fatal("interceptor should have broadcast the invalidation")
	}
}
