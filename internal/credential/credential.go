// Package credential parses and renews the renewable proof of identity the
// session manager runs on. Issuance itself (password and OAuth flows) lives
// with the issuer; this package only consumes its output.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the credential facts the session manager consumes.
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// Credential is a parsed, signature-checked token.
type Credential struct {
	Raw           string
	Subject       string
	Email         string
	EmailVerified bool
	ExpiresAt     time.Time
}

// Source produces renewed raw credentials for silent renewal.
type Source interface {
	Renew(ctx context.Context) (string, error)
}

// Parser validates raw tokens against the shared secret.
type Parser struct {
	secret []byte
}

// NewParser creates a Parser for HS256 tokens signed with secret.
func NewParser(secret string) *Parser {
	return &Parser{secret: []byte(secret)}
}

// Parse verifies the signature and extracts the session-relevant claims. An
// expired token is still returned so the expiry scheduler can act on it; any
// other validation failure is an error.
func (p *Parser) Parse(raw string) (*Credential, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}
		return p.secret, nil
	})
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return nil, fmt.Errorf("parsing credential: %w", err)
	}

	if claims.Subject == "" {
		return nil, errors.New("credential has no subject")
	}

	cred := &Credential{
		Raw:           raw,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
	}
	return cred, nil
}
