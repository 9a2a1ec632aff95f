package sankhya

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/recon_backend/config"
	"github.com/mmdatafocus/recon_backend/models"
)

const defaultAuthURL = "https://api.sankhya.com.br/authenticate"

// TokenStore abstracts the token cache table so tests can stub persistence.
type TokenStore interface {
	Get(ctx context.Context, system string) (*models.Token, error)
	Save(ctx context.Context, token *models.Token) error
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Auth manages the cached ERP credential. The cached expiry is set one
// minute before the credential actually expires so an in-flight request
// never crosses the boundary with a stale token.
type Auth struct {
	store        TokenStore
	authURL      string
	xToken       string
	clientID     string
	clientSecret string
	http         *http.Client
	now          func() time.Time
}

func NewAuth(store TokenStore) *Auth {
	authURL := strings.TrimSpace(os.Getenv("SANKHYA_AUTH_URL"))
	if authURL == "" {
		authURL = defaultAuthURL
	}
	return &Auth{
		store:        store,
		authURL:      authURL,
		xToken:       os.Getenv("X_TOKEN"),
		clientID:     os.Getenv("CLIENT_ID"),
		clientSecret: os.Getenv("CLIENT_SECRET"),
		http:         &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
}

// Authenticate returns a valid access token, reusing the cached row when it
// has not expired and requesting plus upserting a fresh one otherwise.
func (a *Auth) Authenticate(ctx context.Context) (string, error) {
	logger := config.GetLogger()

	cached, err := a.store.Get(ctx, models.TokenSystemSankhya)
	if err != nil {
		config.LogError(logger, "sankhya", "Authenticate", "reading cached token", nil, err)
		return "", err
	}
	now := a.now()
	if cached != nil && cached.ExpiresAt != nil && cached.ExpiresAt.After(now) {
		return cached.AccessToken, nil
	}

	fresh, err := a.requestToken(ctx)
	if err != nil {
		config.LogError(logger, "sankhya", "Authenticate", "requesting token", nil, err)
		return "", err
	}

	// The token starts counting down when the gateway answers, so the
	// issue time is taken after the response, not before the request.
	issuedAt := a.now()
	expiresAt := issuedAt.Add(time.Duration(fresh.ExpiresIn-60) * time.Second)
	err = a.store.Save(ctx, &models.Token{
		System:      models.TokenSystemSankhya,
		AccessToken: fresh.AccessToken,
		ExpiresAt:   &expiresAt,
	})
	if err != nil {
		config.LogError(logger, "sankhya", "Authenticate", "saving token", nil, err)
		return "", err
	}

	return fresh.AccessToken, nil
}

func (a *Auth) requestToken(ctx context.Context) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Token", a.xToken)
	req.Header.Set("Accept", "application/x-www-form-urlencoded")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &AuthError{Status: res.StatusCode, Body: string(body)}
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, err
	}
	return &token, nil
}
