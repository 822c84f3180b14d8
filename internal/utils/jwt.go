package utils // package utils provides helpers for issuing and reading identity tokens

import (
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or
// claim checks.
var ErrInvalidToken = errors.New("invalid token")

// IdentityClaims are the claims an identity provider puts in the bearer
// token.  Email is required; Name and Picture are optional profile data.
type IdentityClaims struct {
    Email   string `json:"email"`
    Name    string `json:"name,omitempty"`
    Picture string `json:"picture,omitempty"`
    jwt.RegisteredClaims
}

// AccessToken is a signed JWT together with its expiry.
type AccessToken struct {
    Token string
    Exp   time.Time
}

// NewAccessToken signs an HS256 identity token for email, valid for ttl.
// It backs the development token command and tests; production tokens are
// issued by the identity provider with the same secret.
func NewAccessToken(secret, email, name string, ttl time.Duration) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := IdentityClaims{
        Email: email,
        Name:  name,
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   email,
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, fmt.Errorf("sign token: %w", err)
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw with secret and returns its claims.  The
// email is trimmed and lower-cased.
func ParseAccessToken(secret, raw string) (IdentityClaims, error) {
    var claims IdentityClaims
    tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
        return []byte(secret), nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
    if err != nil || !tok.Valid {
        return IdentityClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
    }
    claims.Email = strings.ToLower(strings.TrimSpace(claims.Email))
    if claims.Email == "" {
        return IdentityClaims{}, fmt.Errorf("%w: missing email claim", ErrInvalidToken)
    }
    return claims, nil
}
