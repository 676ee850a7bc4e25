package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := NewSigner("test-secret", "campus-idp")
	verifier := NewVerifier("test-secret", "campus-idp")

	want := Identity{UserID: "c-7", Role: RoleCounselor, Program: "BSCS", CounselorID: "c-7"}
	token, err := signer.Sign(want, time.Hour)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	got, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got != want {
		t.Fatalf("identity mismatch: got %+v", got)
	}

	if _, err := NewVerifier("wrong-secret", "campus-idp").Verify(token); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
	if _, err := NewVerifier("test-secret", "other-idp").Verify(token); err == nil {
		t.Fatal("expected verification error with wrong issuer")
	}
}

func TestVerifyRejectsExpiredAndRoleless(t *testing.T) {
	signer := NewSigner("s", "")
	verifier := NewVerifier("s", "")

	expired, err := signer.Sign(Identity{UserID: "u1", Role: RoleStudent}, -time.Hour)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := verifier.Verify(expired); err == nil {
		t.Fatal("expected expired token to be rejected")
	}

	roleless, err := signer.Sign(Identity{UserID: "u1", Role: "janitor"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := verifier.Verify(roleless); err == nil {
		t.Fatal("expected unknown role to be rejected")
	}
}

func TestRequireRole(t *testing.T) {
	signer := NewSigner("s", "")
	verifier := NewVerifier("s", "")
	h := RequireIdentity(verifier, RequireRole(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromContext(r.Context())
		if id.UserID != "a-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}), RoleAdmin))

	student, _ := signer.Sign(Identity{UserID: "s-1", Role: RoleStudent}, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+student)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rw.Code)
	}

	admin, _ := signer.Sign(Identity{UserID: "a-1", Role: RoleAdmin}, time.Hour)
	req = httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rw.Code)
	}
}

func TestIsStaff(t *testing.T) {
	cases := map[Role]bool{RoleStudent: false, RoleCounselor: true, RoleAdmin: true, "guest": false}
	for role, want := range cases {
		if got := (Identity{UserID: "u", Role: role}).IsStaff(); got != want {
			t.Fatalf("%s: expected IsStaff=%v, got %v", role, want, got)
		}
	}
}
