// Package auth resolves the user behind an incoming request. Logging in and issuing
// sessions happen elsewhere; a request without a valid session is simply anonymous.
package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/RadEZorack/augmego-core/pkg/config"
	"github.com/RadEZorack/augmego-core/pkg/state"
)

// ErrInvalidSession is returned when a session was presented but could not be trusted.
var ErrInvalidSession = errors.New("invalid session")

// Resolver maps a request to a user. It returns (nil, nil) for requests carrying no
// session at all.
type Resolver interface {
	ResolveUser(r *http.Request) (*state.Identity, error)
}

// New builds the resolver selected by cfg.Mode.
func New(cfg config.AuthConfig) (Resolver, error) {
	switch cfg.Mode {
	case "jwt":
		return NewJWTResolver(cfg.CookieName, []byte(cfg.JWTSecret)), nil
	case "cookie":
		if len(cfg.SessionKeys) == 0 {
			return nil, errors.New("auth.sessionKeys is required for cookie sessions")
		}
		return NewSessionResolver(cfg.SessionName, cfg.SessionKeys...), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}
