package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier checks bearer tokens issued by the identity provider.
type Verifier struct {
	method string
	key    interface{}
}

// NewVerifier returns an RS256 verifier for a PEM public key or an HS256
// verifier for a shared secret, depending on alg.
func NewVerifier(alg, publicKeyPath, secret string) (*Verifier, error) {
	switch strings.ToUpper(alg) {
	case "RS256":
		b, err := os.ReadFile(publicKeyPath)
		if err != nil {
			return nil, err
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		return &Verifier{method: "RS256", key: pub}, nil
	case "HS256":
		if secret == "" {
			return nil, errors.New("hs256 secret missing")
		}
		return &Verifier{method: "HS256", key: []byte(secret)}, nil
	}
	return nil, fmt.Errorf("unsupported jwt alg %q", alg)
}

// Verify validates the token and returns the caller identity. Errors wrap
// domain.ErrUnauthorized.
func (v *Verifier) Verify(tokenStr string) (*domain.Identity, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{v.method}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, ErrInvalidToken)
	}

	ident := &domain.Identity{
		Subject: stringClaim(claims, "sub"),
		Name:    stringClaim(claims, "name"),
		Email:   stringClaim(claims, "email"),
		Picture: stringClaim(claims, "picture"),
	}
	if ident.Subject == "" {
		ident.Subject = stringClaim(claims, "user_id")
	}
	if ident.Subject == "" {
		return nil, fmt.Errorf("%w: subject missing", domain.ErrUnauthorized)
	}
	return ident, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const pref = "Bearer "
	if len(header) <= len(pref) || !strings.EqualFold(header[:len(pref)], pref) {
		return "", false
	}
	return strings.TrimSpace(header[len(pref):]), true
}
