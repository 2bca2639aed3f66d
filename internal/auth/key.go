// Package auth validates API keys for the DMS feed and the admin API.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ErrSecretNotConfigured is returned when an authenticator is built without a
// usable secret.
var ErrSecretNotConfigured = errors.New("auth: api key secret is not configured")

// Reason says why a key was rejected.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonKeyRequired Reason = "key required"
	ReasonInvalidKey  Reason = "invalid key"
)

// Code is the machine-readable error code sent to callers.
func (r Reason) Code() string {
	switch r {
	case ReasonKeyRequired:
		return "MISSING_API_KEY"
	case ReasonInvalidKey:
		return "INVALID_API_KEY"
	default:
		return ""
	}
}

// Status is the HTTP status conventionally used for the reason.
func (r Reason) Status() int {
	switch r {
	case ReasonKeyRequired:
		return http.StatusUnauthorized
	case ReasonInvalidKey:
		return http.StatusForbidden
	default:
		return http.StatusOK
	}
}

type Result struct {
	Authenticated bool
	Reason        Reason
}

// Authenticator compares caller keys against one configured secret. It is
// immutable and safe for concurrent use.
type Authenticator struct {
	secret []byte
	name   string
	log    *zap.Logger
}

// NewAuthenticator fails when secret is empty or only whitespace.
func NewAuthenticator(name, secret string, log *zap.Logger) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretNotConfigured
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Authenticator{
		secret: []byte(secret),
		name:   name,
		log:    log.Named("auth"),
	}, nil
}

// Authenticate checks providedKey. An empty key counts as absent.
func (a *Authenticator) Authenticate(providedKey string) Result {
	if providedKey == "" {
		a.log.Warn("api key rejected", zap.String("authenticator", a.name), zap.String("reason", "missing"))
		return Result{Reason: ReasonKeyRequired}
	}
	if !equal([]byte(providedKey), a.secret) {
		a.log.Warn("api key rejected", zap.String("authenticator", a.name), zap.String("reason", "mismatch"))
		return Result{Reason: ReasonInvalidKey}
	}
	a.log.Info("api key accepted", zap.String("authenticator", a.name))
	return Result{Authenticated: true}
}

// AuthenticateRequest reads the key from the named query parameter.
func (a *Authenticator) AuthenticateRequest(r *http.Request, param string) Result {
	return a.Authenticate(r.URL.Query().Get(param))
}

// equal runs in time that depends only on the lengths of its inputs.
func equal(provided, secret []byte) bool {
	return subtle.ConstantTimeCompare(provided, secret) == 1
}
