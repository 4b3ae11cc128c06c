package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lvdashuaibi/onevote/internal/apperr"
	"github.com/lvdashuaibi/onevote/internal/model"
)

type CandidateStore interface {
	CreateCandidate(ctx context.Context, candidate *model.Candidate) error
	UpdateCandidate(ctx context.Context, candidateID string, patch model.CandidatePatch) (*model.Candidate, error)
	DeleteCandidate(ctx context.Context, candidateID string) (*model.Candidate, error)
	ListCandidates(ctx context.Context) ([]*model.Candidate, error)
	ListTally(ctx context.Context) ([]model.PartyTally, error)
	AuditTally(ctx context.Context) ([]model.TallyAudit, error)
}

// AdminChecker 管理员校验，拒绝时返回 Forbidden
type AdminChecker interface {
	RequireAdmin(ctx context.Context, subjectID string) error
}

// CandidateService 候选人登记：公开查询走缓存，写操作仅限管理员
type CandidateService struct {
	store  CandidateStore
	policy AdminChecker
	cache  CandidateCache
	logger *slog.Logger
	now    func() time.Time
}

func NewCandidateService(store CandidateStore, policy AdminChecker, cache CandidateCache, logger *slog.Logger) *CandidateService {
	if cache == nil {
		cache = noopCache{}
	}
	return &CandidateService{
		store:  store,
		policy: policy,
		cache:  cache,
		logger: resolveLogger(logger),
		now:    time.Now,
	}
}

// ListPublic 返回候选人的姓名和党派
func (s *CandidateService) ListPublic(ctx context.Context) ([]model.CandidateSummary, error) {
	// 先从缓存获取
	list, found, err := s.cache.GetCandidateList(ctx)
	if err != nil {
		s.logger.Warn("读取候选人缓存失败", "event", "candidate_cache_read_failed", "error", err)
	}
	if found {
		return list, nil
	}

	// 代数必须在读库之前取，读库期间的失效会让下面的写缓存落空
	gen, genErr := s.cache.Generation(ctx)
	if genErr != nil {
		s.logger.Warn("读取缓存代数失败", "event", "candidate_cache_gen_failed", "error", genErr)
	}

	candidates, err := s.store.ListCandidates(ctx)
	if err != nil {
		return nil, err
	}
	list = make([]model.CandidateSummary, 0, len(candidates))
	for _, c := range candidates {
		list = append(list, model.CandidateSummary{Name: c.Name, Party: c.Party})
	}

	if genErr == nil {
		if err := s.cache.SetCandidateList(ctx, gen, list); err != nil {
			s.logger.Warn("写入候选人缓存失败", "event", "candidate_cache_write_failed", "error", err)
		}
	}
	return list, nil
}

// ListWithTally 按票数降序返回党派票数
func (s *CandidateService) ListWithTally(ctx context.Context) ([]model.PartyTally, error) {
	tally, found, err := s.cache.GetTally(ctx)
	if err != nil {
		s.logger.Warn("读取票数缓存失败", "event", "tally_cache_read_failed", "error", err)
	}
	if found {
		return tally, nil
	}

	gen, genErr := s.cache.Generation(ctx)
	if genErr != nil {
		s.logger.Warn("读取缓存代数失败", "event", "tally_cache_gen_failed", "error", genErr)
	}

	tally, err = s.store.ListTally(ctx)
	if err != nil {
		return nil, err
	}
	if tally == nil {
		tally = []model.PartyTally{}
	}

	if genErr == nil {
		if err := s.cache.SetTally(ctx, gen, tally); err != nil {
			s.logger.Warn("写入票数缓存失败", "event", "tally_cache_write_failed", "error", err)
		}
	}
	return tally, nil
}

func validateCandidateFields(name, party string, age int) error {
	if strings.TrimSpace(name) == "" {
		return apperr.New(apperr.InvalidInput, "候选人姓名不能为空")
	}
	if strings.TrimSpace(party) == "" {
		return apperr.New(apperr.InvalidInput, "党派不能为空")
	}
	if age < 0 {
		return apperr.New(apperr.InvalidInput, "年龄不能为负数")
	}
	return nil
}

// Create 创建候选人
func (s *CandidateService) Create(ctx context.Context, input model.CandidateInput, requesterID string) (*model.Candidate, error) {
	if err := s.policy.RequireAdmin(ctx, requesterID); err != nil {
		return nil, err
	}
	if err := validateCandidateFields(input.Name, input.Party, input.Age); err != nil {
		return nil, err
	}

	candidate := &model.Candidate{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(input.Name),
		Party:     strings.TrimSpace(input.Party),
		Age:       input.Age,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateCandidate(ctx, candidate); err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("候选人已创建", "event", "candidate_created", "candidate_id", candidate.ID, "requester_id", requesterID)
	return candidate, nil
}

// Update 部分更新候选人
func (s *CandidateService) Update(ctx context.Context, candidateID string, patch model.CandidatePatch, requesterID string) (*model.Candidate, error) {
	if err := s.policy.RequireAdmin(ctx, requesterID); err != nil {
		return nil, err
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, apperr.New(apperr.InvalidInput, "候选人姓名不能为空")
	}
	if patch.Party != nil && strings.TrimSpace(*patch.Party) == "" {
		return nil, apperr.New(apperr.InvalidInput, "党派不能为空")
	}
	if patch.Age != nil && *patch.Age < 0 {
		return nil, apperr.New(apperr.InvalidInput, "年龄不能为负数")
	}

	candidate, err := s.store.UpdateCandidate(ctx, candidateID, patch)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("候选人已更新", "event", "candidate_updated", "candidate_id", candidateID, "requester_id", requesterID)
	return candidate, nil
}

// Delete 删除候选人
func (s *CandidateService) Delete(ctx context.Context, candidateID string, requesterID string) (*model.Candidate, error) {
	if err := s.policy.RequireAdmin(ctx, requesterID); err != nil {
		return nil, err
	}

	candidate, err := s.store.DeleteCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("候选人已删除", "event", "candidate_deleted", "candidate_id", candidateID, "requester_id", requesterID)
	return candidate, nil
}

// AuditTally 管理员核对每个候选人的票数与投票记录
func (s *CandidateService) AuditTally(ctx context.Context, requesterID string) ([]model.TallyAudit, error) {
	if err := s.policy.RequireAdmin(ctx, requesterID); err != nil {
		return nil, err
	}
	audits, err := s.store.AuditTally(ctx)
	if err != nil {
		return nil, err
	}
	if audits == nil {
		audits = []model.TallyAudit{}
	}
	return audits, nil
}

func (s *CandidateService) invalidate(ctx context.Context) {
	if err := s.cache.InvalidateCandidates(ctx); err != nil {
		s.logger.Warn("删除候选人缓存失败", "event", "candidate_cache_invalidate_failed", "error", err)
	}
}
