package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Unknown},
		{"direct", New(NotFound, "x"), NotFound},
		{"wrapped", fmt.Errorf("外层: %w", New(AlreadyVoted, "x")), AlreadyVoted},
		{"plain error", errors.New("连接断开"), Unavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPublicMessageHidesCause(t *testing.T) {
	err := Wrap(Unavailable, "服务繁忙", errors.New("dial tcp 10.0.0.1:3306: i/o timeout"))

	if got := PublicMessage(err); got != "服务繁忙" {
		t.Errorf("PublicMessage() = %q, want %q", got, "服务繁忙")
	}
	if got := PublicMessage(errors.New("secret")); got != "服务暂不可用" {
		t.Errorf("PublicMessage(plain) = %q", got)
	}
}

func TestExtensionsAndRetryable(t *testing.T) {
	err := New(Conflict, "dup")
	if code := err.Extensions()["code"]; code != "CONFLICT" {
		t.Errorf("Extensions()[code] = %v, want CONFLICT", code)
	}
	if err.Retryable() {
		t.Error("Conflict should not be retryable")
	}
	if !New(Unavailable, "down").Retryable() {
		t.Error("Unavailable should be retryable")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := Wrap(InvalidInput, "bad", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
	if !Is(err, InvalidInput) || Is(err, NotFound) {
		t.Error("Is() returned the wrong result")
	}
}
