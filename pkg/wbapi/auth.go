package wbapi

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

// TokenResponse is returned by login and register.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
}

// RegisterRequest creates a new operator account.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// ErrTokenExpired is returned when a stored token is past its exp claim.
var ErrTokenExpired = eris.New("wbapi: token expired")

func (c *httpClient) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	body := map[string]string{"username": username, "password": password}
	var out TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("/api/auth/auth/login", nil), body, &out); err != nil {
		return nil, eris.Wrap(err, "wbapi: login")
	}
	if out.AccessToken == "" {
		return nil, eris.New("wbapi: login: empty access token")
	}
	return &out, nil
}

func (c *httpClient) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("/api/auth/auth/register", nil), req, &out); err != nil {
		return nil, eris.Wrap(err, "wbapi: register")
	}
	return &out, nil
}

// TokenExpiry reads the exp claim of a bearer token without verifying its
// signature. The zero time means the token carries no expiry.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, eris.Wrap(err, "wbapi: parse token")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, eris.Wrap(err, "wbapi: read token expiry")
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// CheckToken fails with ErrTokenExpired when the token expires before now.
// Tokens that cannot be parsed are left for the backend to judge.
func CheckToken(token string, now time.Time) error {
	if token == "" {
		return eris.New("wbapi: not logged in")
	}
	exp, err := TokenExpiry(token)
	if err != nil || exp.IsZero() {
		return nil
	}
	if !now.Before(exp) {
		return ErrTokenExpired
	}
	return nil
}
