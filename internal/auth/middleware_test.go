package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newGuardedServer(t *testing.T, hash string) *httptest.Server {
	t.Helper()
	handler := Middleware(NewTokenVerifier(hash))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func get(t *testing.T, url, authorization string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	server := newGuardedServer(t, string(hash))

	assert.Equal(t, http.StatusNoContent, get(t, server.URL, "Bearer s3cret"))
	// Second call hits the remembered-token fast path.
	assert.Equal(t, http.StatusNoContent, get(t, server.URL, "Bearer s3cret"))
}

func TestMiddlewareRejects(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	server := newGuardedServer(t, string(hash))

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic s3cret",
		"wrong token":    "Bearer nope",
	}
	for name, header := range cases {
		assert.Equal(t, http.StatusUnauthorized, get(t, server.URL, header), name)
	}
}

func TestMiddlewareRejectsWhenUnconfigured(t *testing.T) {
	server := newGuardedServer(t, "")
	assert.Equal(t, http.StatusUnauthorized, get(t, server.URL, "Bearer anything"))
}
