package rede

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/recon_backend/config"
	"github.com/mmdatafocus/recon_backend/models"
	"github.com/mmdatafocus/recon_backend/utils"
)

// TokenStore abstracts the token cache table so tests can stub persistence.
type TokenStore interface {
	Get(ctx context.Context, system string) (*models.Token, error)
	Save(ctx context.Context, token *models.Token) error
}

// authBinding is the resolved credential and endpoint for one package and
// environment combination.
type authBinding struct {
	authorization string
	url           string
}

// resolveAuthBinding maps a package/environment pair to the configured auth
// endpoint and Basic credential. The env var suffix is package initial plus
// environment initial: PT, PP, ST, SP. A non-empty clientString overrides
// the BASIC_CLIENT_* variable.
func resolveAuthBinding(pkg string, environment string, clientString string) (authBinding, error) {
	var suffix string
	switch pkg {
	case PackagePayment:
		suffix = "P"
	case PackageSales:
		suffix = "S"
	default:
		return authBinding{}, fmt.Errorf("unknown package %q", pkg)
	}
	switch environment {
	case EnvironmentStaging:
		suffix += "T"
	case EnvironmentProduction:
		suffix += "P"
	default:
		return authBinding{}, fmt.Errorf("unknown environment %q", environment)
	}

	if clientString == "" {
		clientString = os.Getenv("BASIC_CLIENT_" + suffix)
	}
	authURL := os.Getenv("URL_AUTH_" + suffix)
	if clientString == "" || authURL == "" {
		return authBinding{}, fmt.Errorf("missing BASIC_CLIENT_%s or URL_AUTH_%s", suffix, suffix)
	}

	return authBinding{
		authorization: "Basic " + base64.StdEncoding.EncodeToString([]byte(clientString)),
		url:           authURL,
	}, nil
}

// Auth manages the cached acquirer credential for one package/environment.
type Auth struct {
	store       TokenStore
	environment string
	pkg         string
	http        *http.Client
	now         func() time.Time
}

func NewAuth(store TokenStore) *Auth {
	environment := strings.TrimSpace(os.Getenv("REDE_ENVIRONMENT"))
	if environment == "" {
		environment = EnvironmentProduction
	}
	pkg := strings.TrimSpace(os.Getenv("REDE_PACKAGE"))
	if pkg == "" {
		pkg = PackageSales
	}
	return &Auth{
		store:       store,
		environment: environment,
		pkg:         pkg,
		http:        &http.Client{Timeout: 30 * time.Second},
		now:         time.Now,
	}
}

// Authenticate returns a valid access token, reusing the cached row when it
// has not expired and requesting plus upserting a fresh one otherwise.
func (a *Auth) Authenticate(ctx context.Context) (string, error) {
	logger := config.GetLogger()

	cached, err := a.store.Get(ctx, models.TokenSystemRede)
	if err != nil {
		config.LogError(logger, "rede", "Authenticate", "reading cached token", nil, err)
		return "", err
	}
	now := a.now()
	if cached != nil && cached.ExpiresAt != nil && cached.ExpiresAt.After(now) {
		return cached.AccessToken, nil
	}

	binding, err := resolveAuthBinding(a.pkg, a.environment, "")
	if err != nil {
		return "", err
	}

	fresh, err := a.requestToken(ctx, binding)
	if err != nil {
		config.LogError(logger, "rede", "Authenticate", "requesting token", nil, err)
		return "", err
	}

	// The token starts counting down when the acquirer answers, so the
	// issue time is taken after the response, not before the request.
	issuedAt := a.now()
	expiresAt := issuedAt.Add(time.Duration(fresh.ExpiresIn) * time.Second)
	err = a.store.Save(ctx, &models.Token{
		System:       models.TokenSystemRede,
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		ExpiresAt:    &expiresAt,
	})
	if err != nil {
		config.LogError(logger, "rede", "Authenticate", "saving token", nil, err)
		return "", err
	}

	return fresh.AccessToken, nil
}

func (a *Auth) requestToken(ctx context.Context, binding authBinding) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, binding.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", binding.authorization)
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

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// GenerateToken requests a fresh token for an explicit package/environment
// pair without touching the cache. It backs the manual token endpoint.
func GenerateToken(ctx context.Context, environment string, pkg string, clientString string) (*TokenResponse, error) {
	a := &Auth{http: &http.Client{Timeout: 30 * time.Second}, now: time.Now}
	return a.generateToken(ctx, environment, pkg, clientString)
}

func (a *Auth) generateToken(ctx context.Context, environment string, pkg string, clientString string) (*TokenResponse, error) {
	binding, err := resolveAuthBinding(pkg, environment, clientString)
	if err != nil {
		return nil, err
	}

	token, err := a.requestToken(ctx, binding)
	if err != nil {
		return nil, err
	}

	// Timestamps count from the response, matching the cached-token expiry.
	issuedAt := a.now()
	token.RequestTime = issuedAt.Format(utils.DateTimeLayout)
	token.ExpireTime = issuedAt.Add(time.Duration(token.ExpiresIn) * time.Second).Format(utils.DateTimeLayout)
	return token, nil
}
