// Package policy 根据主体ID做授权判断。
// 判断结果是三态的：查询失败不会被当作授权通过。
package policy

import (
	"context"
	"log/slog"

	"github.com/lvdashuaibi/onevote/internal/apperr"
	"github.com/lvdashuaibi/onevote/internal/model"
)

type Decision int

const (
	Denied Decision = iota
	Authorized
	LookupFailed
)

func (d Decision) String() string {
	switch d {
	case Authorized:
		return "authorized"
	case LookupFailed:
		return "lookup_failed"
	default:
		return "denied"
	}
}

// Allowed 只有 Authorized 返回true
func (d Decision) Allowed() bool {
	return d == Authorized
}

type VoterFinder interface {
	FindVoterByID(ctx context.Context, voterID string) (*model.Voter, error)
}

type Policy struct {
	voters VoterFinder
	logger *slog.Logger
}

func New(voters VoterFinder, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{voters: voters, logger: logger}
}

func (p *Policy) lookup(ctx context.Context, subjectID string) (*model.Voter, Decision) {
	if subjectID == "" {
		return nil, Denied
	}
	voter, err := p.voters.FindVoterByID(ctx, subjectID)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, Denied
		}
		p.logger.Warn("授权查询选民失败", "event", "policy_lookup_failed", "subject_id", subjectID, "error", err)
		return nil, LookupFailed
	}
	return voter, Authorized
}

// IsAdmin 判断主体是否为管理员
func (p *Policy) IsAdmin(ctx context.Context, subjectID string) Decision {
	voter, d := p.lookup(ctx, subjectID)
	if d != Authorized {
		return d
	}
	switch voter.Role {
	case model.RoleAdmin:
		return Authorized
	case model.RoleVoter:
		return Denied
	default:
		return Denied
	}
}

// RequireAdmin 把判断结果转换为错误：Denied和LookupFailed都返回 Forbidden
func (p *Policy) RequireAdmin(ctx context.Context, subjectID string) error {
	d := p.IsAdmin(ctx, subjectID)
	if d.Allowed() {
		return nil
	}
	if d == LookupFailed {
		return apperr.New(apperr.Forbidden, "无法确认管理员身份")
	}
	return apperr.New(apperr.Forbidden, "用户不是管理员")
}
