package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestFirstLanguage(t *testing.T) {
	// WHAT: the first concrete tag of Accept-Language wins; wildcards
	// and empty headers yield nothing.
	for _, tc := range []struct{ in, want string }{
		{"", ""},
		{"fr-FR,fr;q=0.9,en;q=0.8", "fr-FR"},
		{"de;q=0.7", "de"},
		{"*", ""},
		{" en-US ; q=1.0 ", "en-US"},
	} {
		if got := firstLanguage(tc.in); got != tc.want {
			t.Errorf("firstLanguage(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRequireAdmin(t *testing.T) {
	// WHAT: with a hash configured, only admin + the right password
	// passes; with nil hash the middleware is a no-op.
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) })

	hit := func(hash []byte, user, pass string, withAuth bool) int {
		req := httptest.NewRequest(http.MethodPost, "/api/audits", nil)
		if withAuth {
			req.SetBasicAuth(user, pass)
		}
		rec := httptest.NewRecorder()
		requireAdmin(hash)(ok).ServeHTTP(rec, req)
		return rec.Code
	}

	if got := hit(hash, "admin", "s3cret", true); got != 200 {
		t.Errorf("valid credentials = %d, want 200", got)
	}
	if got := hit(hash, "admin", "wrong", true); got != 401 {
		t.Errorf("bad password = %d, want 401", got)
	}
	if got := hit(hash, "root", "s3cret", true); got != 401 {
		t.Errorf("bad user = %d, want 401", got)
	}
	if got := hit(hash, "", "", false); got != 401 {
		t.Errorf("missing auth = %d, want 401", got)
	}
	if got := hit(nil, "", "", false); got != 200 {
		t.Errorf("disabled auth = %d, want 200", got)
	}
}
