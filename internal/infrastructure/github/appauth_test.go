package github

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func TestAppTokenSource_ExchangesAndCaches(t *testing.T) {
	t.Parallel()

	key, keyPEM := testKey(t)
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	clock := now

	var exchanges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/app/installations/42/access_tokens", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims := &jwt.RegisteredClaims{}
		parser := jwt.NewParser(jwt.WithoutClaimsValidation())
		_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
			assert.Equal(t, jwt.SigningMethodRS256, token.Method)
			return &key.PublicKey, nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "1234", claims.Issuer)
		assert.True(t, claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time) <= appJWTLifetime)

		n := exchanges.Add(1)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "ghs_" + string(rune('a'+n-1)),
			"expires_at": now.Add(time.Hour),
		})
	}))
	t.Cleanup(srv.Close)

	source, err := NewAppTokenSource("1234", 42, keyPEM, WithAppBaseURL(srv.URL), WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	first, err := source.Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "ghs_a", first)

	clock = now.Add(30 * time.Minute)
	cached, err := source.Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "ghs_a", cached)
	assert.Equal(t, int32(1), exchanges.Load())

	clock = now.Add(59*time.Minute + 30*time.Second)
	refreshed, err := source.Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "ghs_b", refreshed)
	assert.Equal(t, int32(2), exchanges.Load())
}

func TestAppTokenSource_ExchangeFailure(t *testing.T) {
	t.Parallel()

	_, keyPEM := testKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	source, err := NewAppTokenSource("1234", 42, keyPEM, WithAppBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = source.Token(t.Context())
	assert.ErrorContains(t, err, "Bad credentials")
}

func TestNewAppTokenSource_Validation(t *testing.T) {
	t.Parallel()

	key, keyPEM := testKey(t)

	_, err := NewAppTokenSource("", 1, keyPEM)
	assert.Error(t, err)
	_, err = NewAppTokenSource("1", 0, keyPEM)
	assert.Error(t, err)
	_, err = NewAppTokenSource("1", 1, []byte("not a key"))
	assert.Error(t, err)

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	_, err = NewAppTokenSource("1", 1, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}))
	assert.NoError(t, err)
}
