package model

import (
	"fmt"
	"time"
)

// Role 用户角色，只允许 Admin 和 Voter 两种取值
type Role int

const (
	RoleVoter Role = iota + 1
	RoleAdmin
)

// ParseRole 解析角色字符串，空字符串视为普通选民
func ParseRole(s string) (Role, error) {
	switch s {
	case "", "voter":
		return RoleVoter, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("未知角色: %q", s)
	}
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleVoter:
		return "voter"
	default:
		return "unknown"
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Voter 选民账户
type Voter struct {
	ID           string    `json:"id"`
	Identity     string    `json:"identity"` // 身份证号，全局唯一
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	HasVoted     bool      `json:"hasVoted"`
	Name         string    `json:"name"`
	Age          int       `json:"age"`
	Email        string    `json:"email,omitempty"`
	Mobile       string    `json:"mobile,omitempty"`
	Address      string    `json:"address"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Profile 对外展示的选民信息，不包含密码
type Profile struct {
	ID       string `json:"id"`
	Identity string `json:"identity"`
	Role     Role   `json:"role"`
	HasVoted bool   `json:"hasVoted"`
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Email    string `json:"email,omitempty"`
	Mobile   string `json:"mobile,omitempty"`
	Address  string `json:"address"`
}

func (v *Voter) Profile() Profile {
	return Profile{
		ID:       v.ID,
		Identity: v.Identity,
		Role:     v.Role,
		HasVoted: v.HasVoted,
		Name:     v.Name,
		Age:      v.Age,
		Email:    v.Email,
		Mobile:   v.Mobile,
		Address:  v.Address,
	}
}

// VoteRecord 投票记录，只追加不修改
type VoteRecord struct {
	VoterID string    `json:"voterId"`
	CastAt  time.Time `json:"castAt"`
}

// Candidate 候选人
type Candidate struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Party     string       `json:"party"`
	Age       int          `json:"age"`
	VoteCount int          `json:"voteCount"`
	Votes     []VoteRecord `json:"votes,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// CandidateInput 创建候选人的请求
type CandidateInput struct {
	Name  string `json:"name"`
	Party string `json:"party"`
	Age   int    `json:"age"`
}

// CandidatePatch 候选人部分更新，nil字段保持不变
type CandidatePatch struct {
	Name  *string `json:"name"`
	Party *string `json:"party"`
	Age   *int    `json:"age"`
}

// CandidateSummary 公开候选人列表项
type CandidateSummary struct {
	Name  string `json:"name"`
	Party string `json:"party"`
}

// PartyTally 党派票数
type PartyTally struct {
	Party string `json:"party"`
	Count int    `json:"count"`
}

// TallyAudit 单个候选人的票数核对结果
type TallyAudit struct {
	CandidateID string `json:"candidateId"`
	Party       string `json:"party"`
	VoteCount   int    `json:"voteCount"`
	RecordCount int    `json:"recordCount"`
	Consistent  bool   `json:"consistent"`
}

// SignupRequest 注册请求
type SignupRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Address  string `json:"address"`
}

// SignupResponse 注册响应
type SignupResponse struct {
	Profile Profile `json:"response"`
	Token   string  `json:"token"`
}

// VoteEvent Kafka投票事件，事务提交后发送
type VoteEvent struct {
	CandidateID string    `json:"candidateId"`
	VoterID     string    `json:"voterId"`
	CastAt      time.Time `json:"castAt"`
}
