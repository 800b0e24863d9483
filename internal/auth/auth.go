// Package auth guards the signaling WebSocket when AUTH_MODE is api_key or
// jwt.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/guilhermesalviano/bbcat/internal/config"
)

type Verifier interface {
	Verify(credential string) error
}

var ErrMissingCredentials = errors.New("missing credentials")

// NewVerifier returns the verifier for cfg.AuthMode. AuthModeNone yields a
// verifier that accepts anything.
func NewVerifier(cfg config.Config) (Verifier, error) {
	switch cfg.AuthMode {
	case config.AuthModeNone, "":
		return allowAll{}, nil
	case config.AuthModeAPIKey:
		kr, err := ParseKeyRing(cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", config.AuthModeAPIKey, err)
		}
		return kr, nil
	case config.AuthModeJWT:
		if strings.TrimSpace(cfg.JWTSecret) == "" {
			return nil, fmt.Errorf("%s: empty secret", config.AuthModeJWT)
		}
		return NewJWTVerifier(cfg.JWTSecret, nil), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
}

type allowAll struct{}

func (allowAll) Verify(string) error { return nil }

// CredentialFromRequest extracts the credential for mode from a WebSocket
// upgrade request.
//
// Browsers cannot set headers on a WebSocket handshake, so a query parameter
// (`apiKey` or `token`) is accepted alongside the X-API-Key and
// Authorization: Bearer headers used by bbcatctl.
func CredentialFromRequest(mode config.AuthMode, r *http.Request) (string, error) {
	switch mode {
	case config.AuthModeNone, "":
		return "", nil
	case config.AuthModeAPIKey:
		if v := strings.TrimSpace(r.Header.Get("X-API-Key")); v != "" {
			return v, nil
		}
		if v := bearer(r); v != "" {
			return v, nil
		}
		if v := r.URL.Query().Get("apiKey"); v != "" {
			return v, nil
		}
		return "", ErrMissingCredentials
	case config.AuthModeJWT:
		if v := bearer(r); v != "" {
			return v, nil
		}
		if v := r.URL.Query().Get("token"); v != "" {
			return v, nil
		}
		return "", ErrMissingCredentials
	default:
		return "", fmt.Errorf("unsupported auth mode %q", mode)
	}
}

func bearer(r *http.Request) string {
	v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
