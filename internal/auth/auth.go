package auth

import (
	"errors"
	"net/http"
	"os"
	"strings"
)

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
)

type Claims struct {
	Subject string
	Token   string
}

type Authenticator interface {
	Authenticate(r *http.Request) (Claims, error)
}

// TokenAuthenticator accepts a static API token and an optional dev token.
// With neither configured it runs open, which is only meant for local use.
type TokenAuthenticator struct {
	DevToken string
	APIToken string
}

func NewAuthenticatorFromEnv() *TokenAuthenticator {
	return &TokenAuthenticator{
		DevToken: os.Getenv("FOSSCLEAR_DEV_TOKEN"),
		APIToken: os.Getenv("FOSSCLEAR_API_TOKEN"),
	}
}

func (a *TokenAuthenticator) Authenticate(r *http.Request) (Claims, error) {
	if a.DevToken == "" && a.APIToken == "" {
		return Claims{Subject: "anonymous"}, nil
	}

	bearer, err := extractBearer(r)
	if err != nil {
		return Claims{}, err
	}

	if a.DevToken != "" && bearer == a.DevToken {
		return Claims{Subject: "dev", Token: bearer}, nil
	}
	if a.APIToken != "" && bearer == a.APIToken {
		return Claims{Subject: "api", Token: bearer}, nil
	}

	return Claims{}, ErrInvalidToken
}

func extractBearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
