package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lvdashuaibi/onevote/internal/apperr"
	"github.com/lvdashuaibi/onevote/internal/model"
)

// MemoryRepository 进程内存储，用于本地开发和测试。
// 一把互斥锁串行化所有写操作，投票事务在暂存副本上执行，成功后整体替换。
type MemoryRepository struct {
	mu         sync.Mutex
	voters     map[string]*model.Voter
	identities map[string]string // identity -> voter id
	adminID    string
	candidates map[string]*model.Candidate
	order      []string // 候选人插入顺序
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		voters:     make(map[string]*model.Voter),
		identities: make(map[string]string),
		candidates: make(map[string]*model.Candidate),
	}
}

func cloneVoter(v *model.Voter) *model.Voter {
	c := *v
	return &c
}

func cloneCandidate(c *model.Candidate) *model.Candidate {
	cp := *c
	cp.Votes = append([]model.VoteRecord(nil), c.Votes...)
	return &cp
}

// CreateVoter 创建选民
func (r *MemoryRepository) CreateVoter(ctx context.Context, voter *model.Voter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.identities[voter.Identity]; ok {
		return apperr.New(apperr.Conflict, "该身份证号已注册")
	}
	if voter.Role == model.RoleAdmin && r.adminID != "" {
		return apperr.New(apperr.Conflict, "管理员已存在，只允许一个管理员")
	}
	if _, ok := r.voters[voter.ID]; ok {
		return apperr.New(apperr.Conflict, "选民ID重复")
	}

	r.voters[voter.ID] = cloneVoter(voter)
	r.identities[voter.Identity] = voter.ID
	if voter.Role == model.RoleAdmin {
		r.adminID = voter.ID
	}
	return nil
}

func (r *MemoryRepository) FindVoterByIdentity(ctx context.Context, identity string) (*model.Voter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.identities[identity]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "选民不存在")
	}
	return cloneVoter(r.voters[id]), nil
}

func (r *MemoryRepository) FindVoterByID(ctx context.Context, voterID string) (*model.Voter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.voters[voterID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "选民不存在")
	}
	return cloneVoter(v), nil
}

// SaveVoter 保存选民的可变字段。has_voted 只能由 false 变为 true。
func (r *MemoryRepository) SaveVoter(ctx context.Context, voter *model.Voter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.voters[voter.ID]
	if !ok {
		return apperr.New(apperr.NotFound, "选民不存在")
	}

	stored.PasswordHash = voter.PasswordHash
	stored.Name = voter.Name
	stored.Age = voter.Age
	stored.Email = voter.Email
	stored.Mobile = voter.Mobile
	stored.Address = voter.Address
	stored.HasVoted = stored.HasVoted || voter.HasVoted
	stored.UpdatedAt = voter.UpdatedAt
	return nil
}

func (r *MemoryRepository) CreateCandidate(ctx context.Context, candidate *model.Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.candidates[candidate.ID]; ok {
		return apperr.New(apperr.Conflict, "候选人ID重复")
	}
	c := cloneCandidate(candidate)
	c.VoteCount = 0
	c.Votes = nil
	r.candidates[c.ID] = c
	r.order = append(r.order, c.ID)
	return nil
}

func (r *MemoryRepository) UpdateCandidate(ctx context.Context, candidateID string, patch model.CandidatePatch) (*model.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.candidates[candidateID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "候选人不存在")
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Party != nil {
		c.Party = *patch.Party
	}
	if patch.Age != nil {
		c.Age = *patch.Age
	}
	return cloneCandidate(c), nil
}

func (r *MemoryRepository) DeleteCandidate(ctx context.Context, candidateID string) (*model.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.candidates[candidateID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "候选人不存在")
	}
	delete(r.candidates, candidateID)
	for i, id := range r.order {
		if id == candidateID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	// 投票明细不对外返回，与MySQL实现保持一致
	out := cloneCandidate(c)
	out.Votes = nil
	return out, nil
}

// ListCandidates 按插入顺序返回候选人，不含投票明细
func (r *MemoryRepository) ListCandidates(ctx context.Context) ([]*model.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*model.Candidate, 0, len(r.order))
	for _, id := range r.order {
		c := cloneCandidate(r.candidates[id])
		c.Votes = nil
		out = append(out, c)
	}
	return out, nil
}

// ListTally 按票数降序，票数相同按插入顺序
func (r *MemoryRepository) ListTally(ctx context.Context) ([]model.PartyTally, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.PartyTally, 0, len(r.order))
	for _, id := range r.order {
		c := r.candidates[id]
		out = append(out, model.PartyTally{Party: c.Party, Count: c.VoteCount})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out, nil
}

func (r *MemoryRepository) AuditTally(ctx context.Context) ([]model.TallyAudit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.TallyAudit, 0, len(r.order))
	for _, id := range r.order {
		c := r.candidates[id]
		out = append(out, model.TallyAudit{
			CandidateID: c.ID,
			Party:       c.Party,
			VoteCount:   c.VoteCount,
			RecordCount: len(c.Votes),
			Consistent:  c.VoteCount == len(c.Votes),
		})
	}
	return out, nil
}

// RunVoteTx 在全局锁内执行投票事务
func (r *MemoryRepository) RunVoteTx(ctx context.Context, fn func(ctx context.Context, tx VoteTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memoryTx{
		repo:       r,
		candidates: make(map[string]*model.Candidate),
		voters:     make(map[string]*model.Voter),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	// 提交暂存的修改
	for id, c := range tx.candidates {
		r.candidates[id] = c
	}
	for id, v := range tx.voters {
		r.voters[id] = v
	}
	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

type memoryTx struct {
	repo       *MemoryRepository
	candidates map[string]*model.Candidate
	voters     map[string]*model.Voter
}

func (t *memoryTx) candidate(id string) (*model.Candidate, bool) {
	if c, ok := t.candidates[id]; ok {
		return c, true
	}
	c, ok := t.repo.candidates[id]
	if !ok {
		return nil, false
	}
	staged := cloneCandidate(c)
	t.candidates[id] = staged
	return staged, true
}

func (t *memoryTx) voter(id string) (*model.Voter, bool) {
	if v, ok := t.voters[id]; ok {
		return v, true
	}
	v, ok := t.repo.voters[id]
	if !ok {
		return nil, false
	}
	staged := cloneVoter(v)
	t.voters[id] = staged
	return staged, true
}

func (t *memoryTx) CandidateForUpdate(ctx context.Context, candidateID string) (*model.Candidate, error) {
	c, ok := t.candidate(candidateID)
	if !ok {
		return nil, apperr.New(apperr.NotFound, "候选人不存在")
	}
	return cloneCandidate(c), nil
}

func (t *memoryTx) VoterForUpdate(ctx context.Context, voterID string) (*model.Voter, error) {
	v, ok := t.voter(voterID)
	if !ok {
		return nil, apperr.New(apperr.NotFound, "选民不存在")
	}
	return cloneVoter(v), nil
}

func (t *memoryTx) AppendVote(ctx context.Context, candidateID string, record model.VoteRecord) error {
	c, ok := t.candidate(candidateID)
	if !ok {
		return apperr.New(apperr.NotFound, "候选人不存在")
	}
	c.Votes = append(c.Votes, record)
	c.VoteCount++
	return nil
}

func (t *memoryTx) MarkVoted(ctx context.Context, voterID string, at time.Time) error {
	v, ok := t.voter(voterID)
	if !ok {
		return apperr.New(apperr.NotFound, "选民不存在")
	}
	if v.HasVoted {
		return apperr.New(apperr.AlreadyVoted, "您已经投过票")
	}
	v.HasVoted = true
	v.UpdatedAt = at
	return nil
}
