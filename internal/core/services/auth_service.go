package services

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"rillnet/internal/core/ports"
	"rillnet/pkg/config"
)

// authService implements ports.AuthService against the static
// accounts/tokens configured under `auth.accounts[]` and
// `auth.tokens[]`: Authorization headers of the form
// "Basic base64(username:password)" are checked against accounts,
// "Bearer token" against the token list. Constant-time comparison
// avoids timing side channels on the credential check.
type authService struct {
	basicCreds map[string]struct{} // "Basic base64(user:pass)" membership
	tokens     map[string]struct{} // "Bearer token" membership
}

func NewAuthService(cfg config.AuthConfig) ports.AuthService {
	s := &authService{
		basicCreds: make(map[string]struct{}, len(cfg.Accounts)),
		tokens:     make(map[string]struct{}, len(cfg.Tokens)),
	}
	for _, acc := range cfg.Accounts {
		encoded := base64.StdEncoding.EncodeToString([]byte(acc.Username + ":" + acc.Password))
		s.basicCreds["Basic "+encoded] = struct{}{}
	}
	for _, t := range cfg.Tokens {
		s.tokens["Bearer "+t] = struct{}{}
	}
	return s
}

// Authorize reports whether authorization matches a configured account
// or token. When no accounts or tokens are configured, every request
// is authorized, since auth fields are all optional.
func (s *authService) Authorize(authorization string) bool {
	if len(s.basicCreds) == 0 && len(s.tokens) == 0 {
		return true
	}
	if authorization == "" {
		return false
	}

	switch {
	case strings.HasPrefix(authorization, "Basic "):
		return containsConstantTime(s.basicCreds, authorization)
	case strings.HasPrefix(authorization, "Bearer "):
		return containsConstantTime(s.tokens, authorization)
	default:
		return false
	}
}

func containsConstantTime(set map[string]struct{}, value string) bool {
	found := false
	for known := range set {
		if len(known) == len(value) && subtle.ConstantTimeCompare([]byte(known), []byte(value)) == 1 {
			found = true
		}
	}
	return found
}

