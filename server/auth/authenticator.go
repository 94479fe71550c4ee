package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	// CookieName is the cookie carrying the access token.
	CookieName = "personakit.access-token"

	// Issuer is the expected iss claim of access tokens.
	Issuer = "personakit"
)

// User is the verified identity attached to a request. Identity is issued
// by the external sign-in system; this package only verifies its tokens.
type User struct {
	// ID is the opaque user identifier (the token's sub claim).
	ID string
	// Name is a display name, may be empty.
	Name string
	// Tier is the plan tier used for quota limits, may be empty.
	Tier string
}

type claims struct {
	Name string `json:"name,omitempty"`
	Tier string `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies access tokens minted by the identity system.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// AuthenticateToUser resolves a request's Authorization and Cookie headers
// to a verified user. Returns an error when no valid token is present.
func (a *Authenticator) AuthenticateToUser(_ context.Context, authHeader, cookieHeader string) (*User, error) {
	token := tokenFromHeaders(authHeader, cookieHeader)
	if token == "" {
		return nil, errors.New("no access token provided")
	}

	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(Issuer))
	if err != nil {
		return nil, errors.Wrap(err, "parse access token")
	}
	if !parsed.Valid {
		return nil, errors.New("invalid access token")
	}
	if c.Subject == "" {
		return nil, errors.New("access token has no subject")
	}
	return &User{
		ID:   c.Subject,
		Name: c.Name,
		Tier: c.Tier,
	}, nil
}

func tokenFromHeaders(authHeader, cookieHeader string) string {
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if cookieHeader != "" {
		header := http.Header{}
		header.Add("Cookie", cookieHeader)
		request := http.Request{Header: header}
		if cookie, err := request.Cookie(CookieName); err == nil {
			return cookie.Value
		}
	}
	return ""
}
