package github

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"ResourceCurator/internal/infrastructure/retry"
)

const (
	appJWTLifetime = 10 * time.Minute
	// installation tokens are replaced this long before they expire
	refreshMargin = time.Minute
	// backdates iat against clock drift
	clockSkew = 30 * time.Second
)

// AppTokenSource authenticates as a GitHub App installation. It signs an
// RS256 JWT, exchanges it for an installation token and caches that token.
type AppTokenSource struct {
	appID          string
	installationID int64
	key            *rsa.PrivateKey
	httpClient     *http.Client
	baseURL        string
	now            func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

var _ TokenSource = (*AppTokenSource)(nil)

// AppOption configures an AppTokenSource.
type AppOption func(*AppTokenSource)

func WithAppBaseURL(url string) AppOption {
	return func(a *AppTokenSource) {
		if url != "" {
			a.baseURL = strings.TrimRight(url, "/")
		}
	}
}

func WithAppHTTPClient(client *http.Client) AppOption {
	return func(a *AppTokenSource) {
		a.httpClient = client
	}
}

func WithClock(now func() time.Time) AppOption {
	return func(a *AppTokenSource) {
		a.now = now
	}
}

// NewAppTokenSource parses the PEM private key (PKCS#1 or PKCS#8).
func NewAppTokenSource(appID string, installationID int64, privateKeyPEM []byte, opts ...AppOption) (*AppTokenSource, error) {
	if appID == "" {
		return nil, errors.New("app id cannot be empty")
	}
	if installationID <= 0 {
		return nil, errors.New("installation id must be positive")
	}
	key, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse app private key: %w", err)
	}

	a := &AppTokenSource{
		appID:          appID,
		installationID: installationID,
		key:            key,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		baseURL:        DefaultBaseURL,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Token returns the cached installation token, exchanging a new one when
// it is missing or about to expire.
func (a *AppTokenSource) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && a.expiresAt.After(a.now().Add(refreshMargin)) {
		return a.token, nil
	}

	signed, err := a.signJWT()
	if err != nil {
		return "", err
	}
	token, expiresAt, err := a.exchange(ctx, signed)
	if err != nil {
		return "", err
	}
	a.token, a.expiresAt = token, expiresAt
	return token, nil
}

func (a *AppTokenSource) signJWT() (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-clockSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTLifetime - clockSkew)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign app jwt: %w", err)
	}
	return signed, nil
}

func (a *AppTokenSource) exchange(ctx context.Context, signed string) (string, time.Time, error) {
	exchanger := NewClient(StaticToken(signed), WithBaseURL(a.baseURL), WithHTTPClient(a.httpClient), WithRetryPolicy(retry.Policy{Attempts: 1}))

	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	path := fmt.Sprintf("/app/installations/%d/access_tokens", a.installationID)
	if err := exchanger.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return "", time.Time{}, fmt.Errorf("exchange installation token: %w", err)
	}
	if out.Token == "" {
		return "", time.Time{}, errors.New("exchange installation token: empty token")
	}
	return out.Token, out.ExpiresAt, nil
}

func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return rsaKey, nil
}
