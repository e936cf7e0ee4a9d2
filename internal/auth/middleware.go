// Package auth guards the API with a static bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/concord-collective/concord/internal/platform/httpx"
	"github.com/concord-collective/concord/internal/shared"
)

// TokenVerifier checks presented tokens against a bcrypt hash of the
// configured API token. A successful comparison is remembered so the
// hash is not recomputed on every request.
type TokenVerifier struct {
	hash []byte

	mu    sync.RWMutex
	known string
}

// NewTokenVerifier builds a verifier from a bcrypt token hash. An empty
// hash rejects every request.
func NewTokenVerifier(hash string) *TokenVerifier {
	return &TokenVerifier{hash: []byte(hash)}
}

// Verify reports whether the presented token matches the configured hash.
func (v *TokenVerifier) Verify(token string) bool {
	if v == nil || len(v.hash) == 0 || token == "" {
		return false
	}
	v.mu.RLock()
	known := v.known
	v.mu.RUnlock()
	if known != "" && subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
		return true
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(token)); err != nil {
		return false
	}
	v.mu.Lock()
	v.known = token
	v.mu.Unlock()
	return true
}

// Middleware rejects requests without a valid Authorization bearer token.
func Middleware(verifier *TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if !verifier.Verify(token) {
				httpx.RespondError(w, shared.ErrInvalidToken)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
