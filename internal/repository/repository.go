package repository

import (
	"context"
	"time"

	"github.com/lvdashuaibi/onevote/internal/model"
)

// VoteTx 投票事务内可执行的操作。
// 所有写入在事务函数返回nil时一起提交，返回错误时全部回滚。
type VoteTx interface {
	// CandidateForUpdate 加锁读取候选人，不存在返回 NotFound
	CandidateForUpdate(ctx context.Context, candidateID string) (*model.Candidate, error)

	// VoterForUpdate 加锁读取选民，不存在返回 NotFound
	VoterForUpdate(ctx context.Context, voterID string) (*model.Voter, error)

	// AppendVote 追加投票记录并把候选人票数加一
	AppendVote(ctx context.Context, candidateID string, record model.VoteRecord) error

	// MarkVoted 以 has_voted=false 为条件把选民标记为已投票，条件不满足返回 AlreadyVoted。
	// at 写入 updated_at，与投票记录的 cast_at 相同
	MarkVoted(ctx context.Context, voterID string, at time.Time) error
}

// Store 凭据存储与候选人登记的统一接口，MySQL和内存实现都满足它
type Store interface {
	CreateVoter(ctx context.Context, voter *model.Voter) error
	FindVoterByIdentity(ctx context.Context, identity string) (*model.Voter, error)
	FindVoterByID(ctx context.Context, voterID string) (*model.Voter, error)
	SaveVoter(ctx context.Context, voter *model.Voter) error

	CreateCandidate(ctx context.Context, candidate *model.Candidate) error
	UpdateCandidate(ctx context.Context, candidateID string, patch model.CandidatePatch) (*model.Candidate, error)
	DeleteCandidate(ctx context.Context, candidateID string) (*model.Candidate, error)
	ListCandidates(ctx context.Context) ([]*model.Candidate, error)
	ListTally(ctx context.Context) ([]model.PartyTally, error)
	AuditTally(ctx context.Context) ([]model.TallyAudit, error)

	RunVoteTx(ctx context.Context, fn func(ctx context.Context, tx VoteTx) error) error

	Close() error
}
