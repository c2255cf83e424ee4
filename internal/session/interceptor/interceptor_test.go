package interceptor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/credential"
	"storefront/internal/sentinel"
	"storefront/internal/session/broadcast"
	"storefront/internal/session/metrics"
	dErrors "storefront/pkg/domain-errors"
	"storefront/pkg/testutil"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	creds      *credential.MemoryStore
	bus        *broadcast.Broadcaster
	client     *http.Client
	redirected int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		creds: credential.NewMemoryStore(),
		bus:   broadcast.New(),
	}
	rt := New(nil, f.creds, f.bus,
		WithClock(func() time.Time { return now }),
		WithMetrics(metrics.NewForTest()),
		WithRedirect(func() { f.redirected++ }),
	)
	f.client = &http.Client{Transport: rt}
	return f
}

func signaled(b *broadcast.Broadcaster) bool {
	select {
	case <-b.C():
		return true
	default:
		return false
	}
}

func TestRoundTrip_AttachesBearerWhenValid(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	f := newFixture(t)
	cred := testutil.Token(t, "u1", now.Add(time.Hour))
	require.NoError(t, f.creds.Set(context.Background(), cred))

	resp, err := f.client.Get(srv.URL + "/api/orders")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer "+cred, gotAuth)
	assert.False(t, signaled(f.bus))
	assert.Zero(t, f.redirected)
}

func TestRoundTrip_NoCredentialPassesThroughUntouched(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	f := newFixture(t)

	resp, err := f.client.Get(srv.URL + "/products")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, gotAuth)
	assert.False(t, signaled(f.bus))
}

func TestRoundTrip_InvalidCredentialAbortsLocally(t *testing.T) {
	reached := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))
	defer srv.Close()

	f := newFixture(t)
	expired := testutil.Token(t, "u1", now.Add(-time.Minute))
	require.NoError(t, f.creds.Set(context.Background(), expired))

	_, err := f.client.Get(srv.URL + "/api/orders")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSessionInvalidated))

	assert.False(t, reached, "request must not leave the process")
	assert.True(t, signaled(f.bus))
	assert.Equal(t, 1, f.redirected)

	_, err = f.creds.Get(context.Background())
	assert.ErrorIs(t, err, sentinel.ErrNoCredential)
}

func TestRoundTrip_ForbiddenResponseInvalidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"message": "Unauthorized access"})
	}))
	defer srv.Close()

	f := newFixture(t)
	require.NoError(t, f.creds.Set(context.Background(), testutil.Token(t, "u1", now.Add(time.Hour))))

	resp, err := f.client.Get(srv.URL + "/api/orders")
	require.NoError(t, err)
	defer resp.Body.Close()

	// The response still reaches the caller.
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.True(t, signaled(f.bus))
	assert.Equal(t, 1, f.redirected)
	_, err = f.creds.Get(context.Background())
	assert.ErrorIs(t, err, sentinel.ErrNoCredential)
}

func TestRoundTrip_MessagePatternInvalidates(t *testing.T) {
	tests := []struct {
		name string
		body map[string]string
	}{
		{"message invalid token", map[string]string{"message": "Invalid Token supplied"}},
		{"message token expired", map[string]string{"message": "your token expired yesterday"}},
		{"error unauthorized", map[string]string{"error": "UNAUTHORIZED request"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			f := newFixture(t)
			require.NoError(t, f.creds.Set(context.Background(), testutil.Token(t, "u1", now.Add(time.Hour))))

			resp, err := f.client.Get(srv.URL + "/api/orders")
			require.NoError(t, err)
			resp.Body.Close()

			assert.True(t, signaled(f.bus))
		})
	}
}

func TestRoundTrip_OrdinaryErrorPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "quantity must be positive"})
	}))
	defer srv.Close()

	f := newFixture(t)
	cred := testutil.Token(t, "u1", now.Add(time.Hour))
	require.NoError(t, f.creds.Set(context.Background(), cred))

	resp, err := f.client.Get(srv.URL + "/api/orders")
	require.NoError(t, err)
	resp.Body.Close()

	assert.False(t, signaled(f.bus))
	assert.Zero(t, f.redirected)

	got, err := f.creds.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cred, got)
}

func TestRoundTrip_SniffedBodyRestoredForCaller(t *testing.T) {
	payload := map[string]string{"message": "token expired", "detail": "extra"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	f := newFixture(t)
	require.NoError(t, f.creds.Set(context.Background(), testutil.Token(t, "u1", now.Add(time.Hour))))

	resp, err := f.client.Get(srv.URL + "/api/orders")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got map[string]string
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, payload, got)
}

func TestRoundTrip_TransportErrorIsNotInvalidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	f := newFixture(t)
	cred := testutil.Token(t, "u1", now.Add(time.Hour))
	require.NoError(t, f.creds.Set(context.Background(), cred))

	_, err := f.client.Get(srv.URL + "/api/orders")
	require.Error(t, err)

	assert.False(t, signaled(f.bus))
	got, err := f.creds.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cred, got)
}

func TestRoundTrip_CallerRequestNotMutated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	f := newFixture(t)
	require.NoError(t, f.creds.Set(context.Background(), testutil.Token(t, "u1", now.Add(time.Hour))))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/orders", nil)
	require.NoError(t, err)

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, req.Header.Get("Authorization"))
}
