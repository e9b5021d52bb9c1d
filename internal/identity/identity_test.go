package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestFromToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := sign(t, Claims{
		Email:        "ana@gym.test",
		Role:         "authenticated",
		UserMetadata: map[string]any{"full_name": "Ana"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})

	id, err := FromToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if id.UserID != "user-1" || id.Email != "ana@gym.test" || id.DisplayName != "Ana" {
		t.Errorf("identity = %+v", id)
	}
	if !id.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", id.ExpiresAt, exp)
	}
	if id.Expired(time.Now()) {
		t.Error("token should not be expired")
	}
	if !id.Expired(exp.Add(time.Second)) {
		t.Error("token should be expired after exp")
	}
}

func TestFromTokenErrors(t *testing.T) {
	if _, err := FromToken(""); !errors.Is(err, ErrNoToken) {
		t.Errorf("empty token err = %v, want ErrNoToken", err)
	}
	if _, err := FromToken("not-a-jwt"); err == nil {
		t.Error("expected parse error")
	}
	noSub := sign(t, Claims{Email: "x@y"})
	if _, err := FromToken(noSub); !errors.Is(err, ErrNoSubject) {
		t.Errorf("no subject err = %v, want ErrNoSubject", err)
	}
}
