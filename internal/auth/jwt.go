// Package auth verifies caller bearer tokens and yields a stable identity.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken indicates the request carried no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrExpiredToken indicates the token's exp claim has passed.
	ErrExpiredToken = errors.New("token expired")
	// ErrInvalidToken covers bad signatures, malformed tokens and tokens
	// without a usable identity claim.
	ErrInvalidToken = errors.New("token invalid")
)

// Identity is the verified caller.
type Identity struct {
	ID string
}

// Claims accepts the identity under sub, uid or user_id.
type Claims struct {
	jwt.RegisteredClaims
	UID    string `json:"uid,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

func (c Claims) identityID() string {
	for _, v := range []string{c.Subject, c.UID, c.UserID} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewVerifier builds a Verifier. An empty issuer disables the iss check.
func NewVerifier(secret, issuer string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, parser: jwt.NewParser(opts...)}
}

// Verify parses and validates token.
func (v *Verifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	id := claims.identityID()
	if id == "" {
		return Identity{}, fmt.Errorf("%w: no identity claim", ErrInvalidToken)
	}
	return Identity{ID: id}, nil
}

// Issue signs a token for id valid for ttl. Used by tooling and tests.
func (v *Verifier) Issue(id string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
