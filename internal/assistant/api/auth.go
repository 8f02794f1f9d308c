package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
)

// gatewayClaims is the claims shape minted by the chat gateway.
type gatewayClaims struct {
	jwt.RegisteredClaims
}

// Verifier checks inbound gateway tokens. The gateway signs requests
// with a shared HMAC key; the token subject is the end user's id.
type Verifier struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// NewVerifier creates a Verifier for the shared key and expected issuer.
func NewVerifier(key []byte, issuer string) (*Verifier, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	return &Verifier{key: key, issuer: issuer, now: time.Now}, nil
}

// Verify parses the bearer token and returns the user id it vouches
// for.
func (v *Verifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperrors.New(apperrors.CodeAuthExpired, "bearer token is required")
	}

	var claims gatewayClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", mapJWTError(err)
	}
	if claims.Subject == "" {
		return "", apperrors.New(apperrors.CodeAuthExpired, "token has no subject")
	}
	return claims.Subject, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.Wrap(apperrors.CodeAuthExpired, "token expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return apperrors.Wrap(apperrors.CodePermissionDenied, "token rejected", err)
	}
	return apperrors.Wrap(apperrors.CodeAuthExpired, "token invalid", err)
}
