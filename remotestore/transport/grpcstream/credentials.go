package grpcstream

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teranos/docsync/errors"
)

// JWTCredentials mints short-lived bearer tokens signed with an HMAC
// secret. CredentialDidChange on the coordinator is the trigger for
// swapping in a new UserID/secret after a sign-in.
type JWTCredentials struct {
	secret []byte
	userID string
	expiry time.Duration
}

// NewJWTCredentials builds a CredentialsProvider for userID, signing tokens
// with secret and minting a fresh one every call (tokens are short-lived by
// design so a compromised one has a small blast radius).
func NewJWTCredentials(secret []byte, userID string, expiry time.Duration) *JWTCredentials {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &JWTCredentials{secret: secret, userID: userID, expiry: expiry}
}

type claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

func (c *JWTCredentials) Token(ctx context.Context) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(c.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "docsync",
		},
		UserID: c.userID,
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign credential token")
	}
	return signed, nil
}

// WithUser returns a copy of c bound to a different user, for use after
// CredentialDidChange fires on the coordinator.
func (c *JWTCredentials) WithUser(userID string) *JWTCredentials {
	return &JWTCredentials{secret: c.secret, userID: userID, expiry: c.expiry}
}
