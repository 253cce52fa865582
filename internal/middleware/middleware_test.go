package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddiedev/tenext-app/internal/model"
	"github.com/reddiedev/tenext-app/internal/session"
	"github.com/reddiedev/tenext-app/pkg/logger"
)

const secret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func claimsFor(sub, name, role string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name: name,
		Role: role,
	}
}

func TestAuth(t *testing.T) {
	var gotUser model.User
	var gotToken string
	handler := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = GetUser(r.Context())
		gotToken, _ = session.ContextCredentials{}.Token(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	valid := signToken(t, jwt.SigningMethodHS256, []byte(secret), claimsFor("u1", "Alice", "csr"))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), claimsFor("u1", "", "")), http.StatusUnauthorized},
		{"no subject", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(secret), claimsFor("", "x", "")), http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}

	assert.Equal(t, model.User{ID: "u1", Name: "Alice", Role: model.RoleStaff}, gotUser)
	assert.Equal(t, valid, gotToken)
}

func TestAuthNormalizesRole(t *testing.T) {
	var gotUser model.User
	handler := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = GetUser(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, []byte(secret), claimsFor("u2", "", "superuser")))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, model.RoleCustomer, gotUser.Role)
	assert.Equal(t, "u2", gotUser.Name)
}

func TestRequireStaff(t *testing.T) {
	handler := RequireStaff(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for role, want := range map[model.Role]int{
		model.RoleCustomer: http.StatusForbidden,
		model.RoleStaff:    http.StatusOK,
		model.RoleAdmin:    http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), UserKey, model.User{ID: "u", Role: role}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, string(role))
	}
}

func TestLogging(t *testing.T) {
	var correlationID string
	handler := Logging(logger.NewNop())(Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID = GetCorrelationID(r.Context())
		_, ok := w.(http.Flusher)
		assert.True(t, ok)
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, []byte(secret), claimsFor("u1", "A", "")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "corr-1", correlationID)
	assert.Equal(t, "corr-1", rec.Header().Get("X-Correlation-ID"))

	rec = httptest.NewRecorder()
	Logging(logger.NewNop())(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestUserRateLimit(t *testing.T) {
	handler := UserRateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), UserKey, model.User{ID: userID}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
	assert.Equal(t, http.StatusOK, send("b"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserKey, model.User{ID: "a"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded","retry_after":60}`, rec.Body.String())
}

func TestValidation(t *testing.T) {
	assert.NoError(t, ValidateMessageContent("hello"))
	assert.Error(t, ValidateMessageContent("  \n"))
	assert.Error(t, ValidateMessageContent(strings.Repeat("a", MaxContentLength+1)))
	assert.Error(t, ValidateMessageContent("bad \xff byte"))

	assert.NoError(t, ValidateThreadID("0190a6b2-8c3e-7d4a-9b1f-2e3d4c5b6a79"))
	assert.EqualError(t, ValidateThreadID("nope"), "thread id must be a UUID")

	var fieldErr *FieldError
	require.ErrorAs(t, ValidateMessageContent(""), &fieldErr)
	assert.Equal(t, "content", fieldErr.Field)

	assert.NoError(t, ValidateTitle("Billing"))
	assert.NoError(t, ValidateTitle(""))
	assert.EqualError(t, ValidateTitle(strings.Repeat("t", MaxTitleLength+1)), "title exceeds 256 bytes")

	assert.NoError(t, ValidateSystemPrompt(""))
	assert.NoError(t, ValidateSystemPrompt("Answer in French."))
	assert.EqualError(t, ValidateSystemPrompt(strings.Repeat("p", MaxSystemPromptLength+1)), "system_prompt exceeds 8192 bytes")
}
