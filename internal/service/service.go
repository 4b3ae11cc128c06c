package service

import (
	"context"
	"log/slog"

	"github.com/lvdashuaibi/onevote/internal/model"
)

// CandidateCache 候选人列表与排行的缓存，未启用Redis时使用noopCache。
// 读库前先取Generation，写缓存时带上它；期间发生过InvalidateCandidates则写入被丢弃。
type CandidateCache interface {
	Generation(ctx context.Context) (int64, error)
	GetCandidateList(ctx context.Context) ([]model.CandidateSummary, bool, error)
	SetCandidateList(ctx context.Context, gen int64, list []model.CandidateSummary) error
	GetTally(ctx context.Context) ([]model.PartyTally, bool, error)
	SetTally(ctx context.Context, gen int64, tally []model.PartyTally) error
	InvalidateCandidates(ctx context.Context) error
}

// VotePublisher 投票事件发布，事务提交后调用
type VotePublisher interface {
	SendVoteEvent(ctx context.Context, event *model.VoteEvent) error
}

type noopCache struct{}

func (noopCache) Generation(context.Context) (int64, error) { return 0, nil }
func (noopCache) GetCandidateList(context.Context) ([]model.CandidateSummary, bool, error) {
	return nil, false, nil
}
func (noopCache) SetCandidateList(context.Context, int64, []model.CandidateSummary) error { return nil }
func (noopCache) GetTally(context.Context) ([]model.PartyTally, bool, error)              { return nil, false, nil }
func (noopCache) SetTally(context.Context, int64, []model.PartyTally) error               { return nil }
func (noopCache) InvalidateCandidates(context.Context) error                              { return nil }

type noopPublisher struct{}

func (noopPublisher) SendVoteEvent(context.Context, *model.VoteEvent) error { return nil }

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
