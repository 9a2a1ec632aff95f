package sankhya

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/recon_backend/models"
)

type fakeStore struct {
	token *models.Token
	saved []*models.Token
}

func (f *fakeStore) Get(ctx context.Context, system string) (*models.Token, error) {
	return f.token, nil
}

func (f *fakeStore) Save(ctx context.Context, token *models.Token) error {
	f.saved = append(f.saved, token)
	f.token = token
	return nil
}

func newTestAuth(store TokenStore, authURL string, client *http.Client, now time.Time) *Auth {
	return &Auth{
		store:        store,
		authURL:      authURL,
		xToken:       "x-token-value",
		clientID:     "client-id",
		clientSecret: "client-secret",
		http:         client,
		now:          func() time.Time { return now },
	}
}

func TestAuthenticateReusesCachedToken(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(10 * time.Minute)
	store := &fakeStore{token: &models.Token{
		System:      models.TokenSystemSankhya,
		AccessToken: "cached-ledger-token",
		ExpiresAt:   &expires,
	}}

	auth := newTestAuth(store, srv.URL, srv.Client(), now)
	got, err := auth.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got != "cached-ledger-token" {
		t.Fatalf("expected cached token; got %q", got)
	}
	if calls != 0 {
		t.Fatalf("expected no network call; got %d", calls)
	}
}

func TestAuthenticateAppliesSafetyMargin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "x-token-value" {
			t.Errorf("unexpected X-Token header %q", r.Header.Get("X-Token"))
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("client_id") != "client-id" || r.PostForm.Get("client_secret") != "client-secret" {
			t.Errorf("unexpected client credentials %q/%q", r.PostForm.Get("client_id"), r.PostForm.Get("client_secret"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "fresh-ledger-token", "expires_in": 3600}`))
	}))
	defer srv.Close()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	auth := newTestAuth(store, srv.URL, srv.Client(), now)

	got, err := auth.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got != "fresh-ledger-token" {
		t.Fatalf("expected fresh token; got %q", got)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected one upsert; got %d", len(store.saved))
	}

	// Ledger tokens are cached with a one minute safety margin.
	wantExpiry := now.Add(3540 * time.Second)
	saved := store.saved[0]
	if saved.ExpiresAt == nil || !saved.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %v; got %v", wantExpiry, saved.ExpiresAt)
	}
	if saved.System != models.TokenSystemSankhya {
		t.Fatalf("expected system %q; got %q", models.TokenSystemSankhya, saved.System)
	}
}

func TestAuthenticateExpiryCountsFromResponse(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	current := start

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		current = start.Add(2 * time.Second)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "slow-ledger-token", "expires_in": 3600}`))
	}))
	defer srv.Close()

	store := &fakeStore{}
	auth := newTestAuth(store, srv.URL, srv.Client(), start)
	auth.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	if _, err := auth.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected one upsert; got %d", len(store.saved))
	}

	// A two second round trip must not shorten the stored lifetime: the
	// expiry counts from the response, minus the one minute margin.
	wantExpiry := start.Add(2 * time.Second).Add(3540 * time.Second)
	saved := store.saved[0]
	if saved.ExpiresAt == nil || !saved.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %v; got %v", wantExpiry, saved.ExpiresAt)
	}
}

func TestAuthenticateTreatsExpiredCacheAsMiss(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"access_token": "renewed", "expires_in": 3600}`))
	}))
	defer srv.Close()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Second)
	store := &fakeStore{token: &models.Token{
		System:      models.TokenSystemSankhya,
		AccessToken: "stale",
		ExpiresAt:   &expired,
	}}

	auth := newTestAuth(store, srv.URL, srv.Client(), now)
	got, err := auth.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got != "renewed" {
		t.Fatalf("expected renewed token; got %q", got)
	}
	if calls != 1 {
		t.Fatalf("expected one token request; got %d", calls)
	}
}

func TestAuthenticateSurfacesAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := &fakeStore{}
	auth := newTestAuth(store, srv.URL, srv.Client(), time.Now())
	_, err := auth.Authenticate(context.Background())
	if err == nil {
		t.Fatalf("expected error for 401 response")
	}
	if _, ok := err.(*AuthError); !ok {
		t.Fatalf("expected *AuthError; got %T: %v", err, err)
	}
}
