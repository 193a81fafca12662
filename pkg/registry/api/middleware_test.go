package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftbridge/message-registry/pkg/registry"
)

func newIdentityRouter(ja *jwtauth.JWTAuth) chi.Router {
	r := chi.NewRouter()
	r.Use(jwtauth.Verifier(ja))
	r.Use(jwtauth.Authenticator)
	r.Use(CallerIdentity)
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		caller, _ := CallerFromContext(r.Context())
		w.Write([]byte(caller))
	})
	return r
}

func TestCallerIdentity(t *testing.T) {
	ja := jwtauth.New("HS256", []byte("test-secret"), nil)
	router := newIdentityRouter(ja)

	_, tokenString, err := ja.Encode(map[string]interface{}{"sub": testAlice})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testAlice, w.Body.String())
}

func TestCallerIdentity_MissingSubject(t *testing.T) {
	ja := jwtauth.New("HS256", []byte("test-secret"), nil)
	router := newIdentityRouter(ja)

	_, tokenString, err := ja.Encode(map[string]interface{}{"role": "anonymous"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token has no subject")
}

func TestCallerIdentity_NoToken(t *testing.T) {
	ja := jwtauth.New("HS256", []byte("test-secret"), nil)
	router := newIdentityRouter(ja)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCallerFromContext(t *testing.T) {
	ctx := WithCaller(context.Background(), testAlice)

	caller, ok := CallerFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, testAlice, caller)

	_, ok = CallerFromContext(context.Background())
	assert.False(t, ok)
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{registry.ErrUnauthorized, http.StatusUnauthorized},
		{registry.ErrNotFound, http.StatusNotFound},
		{registry.ErrDeleted, http.StatusGone},
		{registry.ErrAccessDenied, http.StatusForbidden},
		{registry.ErrNotSender, http.StatusForbidden},
		{registry.ErrInsufficientFee, http.StatusPaymentRequired},
		{registry.ErrDuplicateContent, http.StatusConflict},
		{registry.ErrAlreadyDeleted, http.StatusConflict},
		{registry.ErrNoBalance, http.StatusConflict},
		{registry.ErrEmptyContentRef, http.StatusBadRequest},
		{registry.ErrInvalidQuota, http.StatusBadRequest},
		{registry.ErrInvalidAdmin, http.StatusBadRequest},
		{registry.ErrTransferFailed, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFromError(tt.err), "error %v", tt.err)
	}

	// Wrapped errors map the same way
	wrapped := &registry.MessageError{MessageID: 1, Op: "retrieve", Err: registry.ErrDeleted}
	assert.Equal(t, http.StatusGone, statusFromError(wrapped))
}
