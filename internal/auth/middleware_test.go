package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusOnly(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
}

func TestMiddleware(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	keys := NewKeySet([]string{" " + strings.ToUpper(HashAPIKey(key)) + " ", ""})

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{name: "X-API-Key", header: "X-API-Key", value: key, want: http.StatusOK},
		{name: "bearer", header: "Authorization", value: "Bearer " + key, want: http.StatusOK},
		{name: "missing", want: http.StatusUnauthorized},
		{name: "invalid", header: "X-API-Key", value: KeyPrefix + "nope", want: http.StatusUnauthorized},
		{name: "basic auth ignored", header: "Authorization", value: "Basic " + key, want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var capturedCtx context.Context
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				capturedCtx = r.Context()
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("POST", "/verify", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()

			Middleware(keys, statusOnly)(handler).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, KeyID(key), KeyIDFromContext(capturedCtx))
			}
		})
	}
}

func TestMiddleware_DisabledWithoutKeys(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, KeyIDFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	Middleware(NewKeySet(nil), statusOnly)(handler).ServeHTTP(rec, httptest.NewRequest("POST", "/verify", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, KeyPrefix))
	assert.Len(t, a, len(KeyPrefix)+2*KeyLength)
	assert.NotEqual(t, a, b)
	assert.Len(t, HashAPIKey(a), 64)
	assert.Len(t, KeyID(a), 8)
}
