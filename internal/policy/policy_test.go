package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/lvdashuaibi/onevote/internal/apperr"
	"github.com/lvdashuaibi/onevote/internal/model"
)

type fakeFinder struct {
	voters map[string]*model.Voter
	err    error
}

func (f *fakeFinder) FindVoterByID(ctx context.Context, voterID string) (*model.Voter, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.voters[voterID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "选民不存在")
	}
	return v, nil
}

func TestIsAdmin(t *testing.T) {
	finder := &fakeFinder{voters: map[string]*model.Voter{
		"admin": {ID: "admin", Role: model.RoleAdmin},
		"voter": {ID: "voter", Role: model.RoleVoter},
		"weird": {ID: "weird", Role: model.Role(42)},
	}}
	p := New(finder, nil)

	tests := []struct {
		subject string
		want    Decision
	}{
		{"admin", Authorized},
		{"voter", Denied},
		{"weird", Denied},
		{"missing", Denied},
		{"", Denied},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			if got := p.IsAdmin(context.Background(), tt.subject); got != tt.want {
				t.Errorf("IsAdmin(%q) = %v, want %v", tt.subject, got, tt.want)
			}
		})
	}
}

func TestIsAdminLookupFailedIsNotAuthorized(t *testing.T) {
	p := New(&fakeFinder{err: apperr.Wrap(apperr.Unavailable, "存储不可用", errors.New("timeout"))}, nil)

	d := p.IsAdmin(context.Background(), "admin")
	if d != LookupFailed {
		t.Fatalf("IsAdmin() = %v, want LookupFailed", d)
	}
	if d.Allowed() {
		t.Error("LookupFailed must not be allowed")
	}

	err := p.RequireAdmin(context.Background(), "admin")
	if !apperr.Is(err, apperr.Forbidden) {
		t.Errorf("RequireAdmin() error = %v, want Forbidden", err)
	}
}

func TestRequireAdmin(t *testing.T) {
	p := New(&fakeFinder{voters: map[string]*model.Voter{
		"admin": {ID: "admin", Role: model.RoleAdmin},
		"voter": {ID: "voter", Role: model.RoleVoter},
	}}, nil)

	if err := p.RequireAdmin(context.Background(), "admin"); err != nil {
		t.Errorf("RequireAdmin(admin) error = %v", err)
	}
	if err := p.RequireAdmin(context.Background(), "voter"); !apperr.Is(err, apperr.Forbidden) {
		t.Errorf("RequireAdmin(voter) error = %v, want Forbidden", err)
	}
}
