package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hsToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestVerifier_HS256(t *testing.T) {
	v, err := NewVerifier("hs256", "", "s3cret")
	require.NoError(t, err)
	exp := time.Now().Add(time.Hour).Unix()

	t.Run("valid", func(t *testing.T) {
		tok := hsToken(t, "s3cret", jwt.MapClaims{"sub": "u-1", "name": "Ann", "email": "a@x", "picture": "http://p", "exp": exp})
		ident, err := v.Verify(tok)
		require.NoError(t, err)
		assert.Equal(t, &domain.Identity{Subject: "u-1", Name: "Ann", Email: "a@x", Picture: "http://p"}, ident)
	})

	t.Run("user_id fallback", func(t *testing.T) {
		ident, err := v.Verify(hsToken(t, "s3cret", jwt.MapClaims{"user_id": "u-2", "exp": exp}))
		require.NoError(t, err)
		assert.Equal(t, "u-2", ident.Subject)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.Verify(hsToken(t, "other", jwt.MapClaims{"sub": "u-1", "exp": exp}))
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := v.Verify(hsToken(t, "s3cret", jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(-time.Hour).Unix()}))
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("no subject", func(t *testing.T) {
		_, err := v.Verify(hsToken(t, "s3cret", jwt.MapClaims{"name": "x", "exp": exp}))
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestVerifier_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "pub.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	v, err := NewVerifier("RS256", path, "")
	require.NoError(t, err)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "u-9", "exp": time.Now().Add(time.Minute).Unix()}).SignedString(key)
	require.NoError(t, err)
	ident, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-9", ident.Subject)

	// an HS256 token must not pass an RS256 verifier
	_, err = v.Verify(hsToken(t, "whatever", jwt.MapClaims{"sub": "u-9", "exp": time.Now().Add(time.Minute).Unix()}))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestNewVerifier_Errors(t *testing.T) {
	_, err := NewVerifier("HS256", "", "")
	assert.Error(t, err)
	_, err = NewVerifier("none", "", "x")
	assert.Error(t, err)
	_, err = NewVerifier("RS256", filepath.Join(t.TempDir(), "missing.pem"), "")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)
	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)
}
