package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/lvdashuaibi/onevote/internal/apperr"
	"github.com/lvdashuaibi/onevote/internal/model"
	"github.com/lvdashuaibi/onevote/internal/repository"
)

// VoteStore 提供跨选民和候选人的投票事务
type VoteStore interface {
	RunVoteTx(ctx context.Context, fn func(ctx context.Context, tx repository.VoteTx) error) error
}

type VoteService struct {
	store     VoteStore
	cache     CandidateCache
	publisher VotePublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewVoteService(store VoteStore, cache CandidateCache, publisher VotePublisher, logger *slog.Logger) *VoteService {
	if cache == nil {
		cache = noopCache{}
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &VoteService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		logger:    resolveLogger(logger),
		now:       time.Now,
	}
}

// CastVote 投票，每个选民只能成功一次。
// 候选人票数、投票记录和选民的已投票标记在同一个事务内提交。
func (s *VoteService) CastVote(ctx context.Context, candidateID, voterID string) error {
	castAt := s.now().UTC()

	err := s.store.RunVoteTx(ctx, func(ctx context.Context, tx repository.VoteTx) error {
		if _, err := tx.CandidateForUpdate(ctx, candidateID); err != nil {
			return err
		}

		voter, err := tx.VoterForUpdate(ctx, voterID)
		if err != nil {
			return err
		}

		switch voter.Role {
		case model.RoleAdmin:
			return apperr.New(apperr.Forbidden, "管理员不能投票")
		case model.RoleVoter:
		default:
			return apperr.New(apperr.Forbidden, "未知角色不能投票")
		}

		if voter.HasVoted {
			return apperr.New(apperr.AlreadyVoted, "您已经投过票")
		}

		if err := tx.AppendVote(ctx, candidateID, model.VoteRecord{VoterID: voterID, CastAt: castAt}); err != nil {
			return err
		}

		// 条件更新，并发投票中只有一个请求能成功
		return tx.MarkVoted(ctx, voterID, castAt)
	})
	if err != nil {
		s.logger.Info("投票被拒绝", "event", "vote_rejected",
			"candidate_id", candidateID,
			"voter_id", voterID,
			"kind", apperr.KindOf(err).String(),
		)
		return err
	}

	s.logger.Info("投票成功", "event", "vote_recorded", "candidate_id", candidateID, "voter_id", voterID)

	// 事务已提交，以下步骤失败只记录日志
	if err := s.cache.InvalidateCandidates(ctx); err != nil {
		s.logger.Warn("删除票数缓存失败", "event", "tally_cache_invalidate_failed", "error", err)
	}

	event := &model.VoteEvent{CandidateID: candidateID, VoterID: voterID, CastAt: castAt}
	if err := s.publisher.SendVoteEvent(ctx, event); err != nil {
		s.logger.Warn("发送投票事件失败", "event", "vote_event_publish_failed", "voter_id", voterID, "error", err)
	}

	return nil
}
