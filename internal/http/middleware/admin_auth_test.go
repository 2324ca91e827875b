package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveAdmin(t *testing.T, secret, header string) (*httptest.ResponseRecorder, *AdminClaims) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/admin/reminders", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	var seen *AdminClaims
	AdminJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := AdminClaimsFromContext(r.Context()); ok {
			seen = &claims
		}
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, req)
	return rec, seen
}

func TestAdminJWT(t *testing.T) {
	now := time.Now()
	valid, err := IssueAdminToken("secret", "owner@salon.test", time.Hour, now)
	require.NoError(t, err)
	wrongKey, err := IssueAdminToken("other", "owner@salon.test", time.Hour, now)
	require.NoError(t, err)
	expired, err := IssueAdminToken("secret", "owner@salon.test", time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, AdminClaims{
		Role:             AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{Role: AdminRole}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		header string
		want   int
		body   string
	}{
		{name: "valid", secret: "secret", header: "Bearer " + valid, want: http.StatusNoContent},
		{name: "disabled", secret: "", header: "Bearer " + valid, want: http.StatusUnauthorized, body: "admin auth disabled"},
		{name: "missing header", secret: "secret", want: http.StatusUnauthorized, body: "missing authorization header"},
		{name: "basic scheme", secret: "secret", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "wrong key", secret: "secret", header: "Bearer " + wrongKey, want: http.StatusUnauthorized, body: "invalid token"},
		{name: "expired", secret: "secret", header: "Bearer " + expired, want: http.StatusUnauthorized, body: "token expired"},
		{name: "no role", secret: "secret", header: "Bearer " + noRole, want: http.StatusUnauthorized, body: "admin role required"},
		{name: "wrong alg", secret: "secret", header: "Bearer " + hs512, want: http.StatusUnauthorized},
		{name: "no expiry", secret: "secret", header: "Bearer " + noExpiry, want: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, claims := serveAdmin(t, tc.secret, tc.header)
			assert.Equal(t, tc.want, rec.Code)
			if tc.body != "" {
				assert.Contains(t, rec.Body.String(), tc.body)
			}
			if tc.want == http.StatusNoContent {
				require.NotNil(t, claims)
				assert.Equal(t, "owner@salon.test", claims.Subject)
			}
		})
	}
}

func TestIssueAdminTokenRequiresSecret(t *testing.T) {
	_, err := IssueAdminToken("", "x", time.Hour, time.Now())
	assert.Error(t, err)
}
