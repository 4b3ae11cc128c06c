package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lvdashuaibi/onevote/internal/apperr"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	token, err := svc.Issue("voter-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	subject, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if subject != "voter-1" {
		t.Errorf("Verify() subject = %q, want voter-1", subject)
	}
}

func TestVerifyRejects(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	expired := NewTokenService("test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, err := expired.Issue("voter-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	otherKey, err := NewTokenService("other-secret", time.Hour).Issue("voter-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "voter-1",
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  apperr.Kind
	}{
		{"empty", "", apperr.AuthInvalid},
		{"garbage", "not-a-jwt", apperr.AuthInvalid},
		{"expired", expiredToken, apperr.AuthExpired},
		{"wrong key", otherKey, apperr.AuthInvalid},
		{"no subject", noSubject, apperr.AuthInvalid},
		{"no expiry", noExpiry, apperr.AuthInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token)
			if got := apperr.KindOf(err); got != tt.want {
				t.Errorf("Verify() kind = %v, want %v (err = %v)", got, tt.want, err)
			}
		})
	}
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if _, err := svc.Verify(token); !apperr.Is(err, apperr.AuthInvalid) {
		t.Errorf("Verify() error = %v, want AuthInvalid", err)
	}
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "secret123" {
		t.Fatal("Hash() returned the plain password")
	}

	ok, err := h.Compare(hash, "secret123")
	if err != nil || !ok {
		t.Errorf("Compare(correct) = %v, %v", ok, err)
	}
	ok, err = h.Compare(hash, "wrong")
	if err != nil || ok {
		t.Errorf("Compare(wrong) = %v, %v", ok, err)
	}
	if _, err := h.Compare("not-a-hash", "secret123"); err == nil {
		t.Error("Compare(corrupt hash) should return an error")
	}
}

func TestNewPasswordHasherFallsBackToDefaultCost(t *testing.T) {
	if h := NewPasswordHasher(100); h.cost != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", h.cost, bcrypt.DefaultCost)
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"":              "",
		"Bearer":        "",
		"Bearer ":       "",
		"Basic abc":     "",
		"Bearer abc":    "abc",
		"bearer abc":    "abc",
		"BEARER abc":    "abc",
		"Bearer  abc  ": "abc",
	}
	for header, want := range tests {
		if got := BearerToken(header); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
