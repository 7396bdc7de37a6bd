package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/conduit/internal/auth"
)

func protectedHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		if !ok {
			t.Fatalf("user id missing from context")
		}
		w.Write([]byte(id))
	})
}

func TestJWTAuth_Valid(t *testing.T) {
	tokens := auth.NewTokens("test-secret", time.Hour)
	tok, _ := tokens.Issue("user-7")

	req := httptest.NewRequest(http.MethodGet, "/user", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()

	JWTAuth(tokens)(protectedHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "user-7" {
		t.Fatalf("unexpected user id %q", rec.Body.String())
	}
}

func TestJWTAuth_Rejects(t *testing.T) {
	tokens := auth.NewTokens("test-secret", time.Hour)
	other, _ := auth.NewTokens("other", time.Hour).Issue("user-7")

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Token abc",
		"bad signature":  "Bearer " + other,
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/user", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()

		JWTAuth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatalf("%s: handler must not be called", name)
		})).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}
