package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClaims struct {
	subject string
}

func (c testClaims) GetSubject() (string, error) { return c.subject, nil }

// testTokenValidator accepts a fixed set of tokens.
type testTokenValidator struct {
	valid map[string]string
}

func (v *testTokenValidator) ValidateToken(token string) (SubjectGetter, error) {
	subject, ok := v.valid[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return testClaims{subject: subject}, nil
}

func newValidator() *testTokenValidator {
	return &testTokenValidator{valid: map[string]string{
		"good-token":  "ops-dashboard",
		"empty-token": "",
	}}
}

func protected(t *testing.T) http.Handler {
	t.Helper()
	return AuthMiddleware(newValidator())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := GetSubject(r)
		require.NoError(t, err)
		_, _ = w.Write([]byte(subject))
	}))
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "valid token", header: "Bearer good-token", wantStatus: http.StatusOK, wantBody: "ops-dashboard"},
		{name: "lowercase scheme", header: "bearer good-token", wantStatus: http.StatusOK, wantBody: "ops-dashboard"},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good-token", wantStatus: http.StatusUnauthorized},
		{name: "no token", header: "Bearer", wantStatus: http.StatusUnauthorized},
		{name: "extra parts", header: "Bearer good-token extra", wantStatus: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer forged", wantStatus: http.StatusUnauthorized},
		{name: "empty subject", header: "Bearer empty-token", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/tenders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			protected(t).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}
}

func TestGetSubject_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := GetSubject(req)
	assert.Error(t, err)
}

func TestWithSubject(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithSubject(req.Context(), "cli"))

	subject, err := GetSubject(req)
	require.NoError(t, err)
	assert.Equal(t, "cli", subject)
}
