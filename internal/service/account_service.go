package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lvdashuaibi/onevote/internal/apperr"
	"github.com/lvdashuaibi/onevote/internal/auth"
	"github.com/lvdashuaibi/onevote/internal/model"
)

type VoterStore interface {
	CreateVoter(ctx context.Context, voter *model.Voter) error
	FindVoterByIdentity(ctx context.Context, identity string) (*model.Voter, error)
	FindVoterByID(ctx context.Context, voterID string) (*model.Voter, error)
	SaveVoter(ctx context.Context, voter *model.Voter) error
}

// AccountService 注册、登录、个人信息和修改密码
type AccountService struct {
	voters VoterStore
	hasher *auth.PasswordHasher
	tokens *auth.TokenService
	logger *slog.Logger
	now    func() time.Time
}

func NewAccountService(voters VoterStore, hasher *auth.PasswordHasher, tokens *auth.TokenService, logger *slog.Logger) *AccountService {
	return &AccountService{
		voters: voters,
		hasher: hasher,
		tokens: tokens,
		logger: resolveLogger(logger),
		now:    time.Now,
	}
}

func validateSignup(req *model.SignupRequest) (model.Role, error) {
	req.Identity = strings.TrimSpace(req.Identity)
	req.Name = strings.TrimSpace(req.Name)

	if req.Identity == "" {
		return 0, apperr.New(apperr.InvalidInput, "身份证号不能为空")
	}
	if req.Name == "" {
		return 0, apperr.New(apperr.InvalidInput, "姓名不能为空")
	}
	if req.Age < 0 {
		return 0, apperr.New(apperr.InvalidInput, "年龄不能为负数")
	}
	if len(req.Password) < auth.MinPasswordLength {
		return 0, apperr.New(apperr.InvalidInput, "密码长度不能少于6位")
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return 0, apperr.Wrap(apperr.InvalidInput, "角色只能是 admin 或 voter", err)
	}
	return role, nil
}

// Signup 注册选民并返回令牌，系统内最多一个管理员
func (s *AccountService) Signup(ctx context.Context, req model.SignupRequest) (*model.SignupResponse, error) {
	role, err := validateSignup(&req)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "注册失败，请稍后重试", err)
	}

	now := s.now().UTC()
	voter := &model.Voter{
		ID:           uuid.NewString(),
		Identity:     req.Identity,
		PasswordHash: hash,
		Role:         role,
		Name:         req.Name,
		Age:          req.Age,
		Email:        strings.TrimSpace(req.Email),
		Mobile:       strings.TrimSpace(req.Mobile),
		Address:      strings.TrimSpace(req.Address),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.voters.CreateVoter(ctx, voter); err != nil {
		s.logger.Info("注册失败", "event", "account_signup_rejected", "role", role.String(), "kind", apperr.KindOf(err).String())
		return nil, err
	}

	token, err := s.tokens.Issue(voter.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "签发令牌失败", err)
	}

	s.logger.Info("注册成功", "event", "account_signup_succeeded", "voter_id", voter.ID, "role", role.String())
	return &model.SignupResponse{Profile: voter.Profile(), Token: token}, nil
}

// Login 校验身份证号和密码，成功返回令牌。账户不存在与密码错误返回同样的错误。
func (s *AccountService) Login(ctx context.Context, identity, password string) (string, error) {
	invalid := apperr.New(apperr.AuthInvalid, "身份证号或密码错误")

	voter, err := s.voters.FindVoterByIdentity(ctx, strings.TrimSpace(identity))
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return "", invalid
		}
		return "", err
	}

	ok, err := s.hasher.Compare(voter.PasswordHash, password)
	if err != nil {
		s.logger.Error("密码校验异常", "event", "account_login_compare_failed", "voter_id", voter.ID, "error", err)
		return "", invalid
	}
	if !ok {
		return "", invalid
	}

	token, err := s.tokens.Issue(voter.ID)
	if err != nil {
		return "", apperr.Wrap(apperr.Unavailable, "签发令牌失败", err)
	}
	return token, nil
}

// GetProfile 返回选民信息，不包含密码
func (s *AccountService) GetProfile(ctx context.Context, subjectID string) (*model.Profile, error) {
	voter, err := s.voters.FindVoterByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	profile := voter.Profile()
	return &profile, nil
}

// ChangePassword 修改密码，需要提供当前密码。已签发的其他令牌在过期前仍然有效。
func (s *AccountService) ChangePassword(ctx context.Context, subjectID, currentPassword, newPassword string) error {
	if len(newPassword) < auth.MinPasswordLength {
		return apperr.New(apperr.InvalidInput, "新密码长度不能少于6位")
	}

	voter, err := s.voters.FindVoterByID(ctx, subjectID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Compare(voter.PasswordHash, currentPassword)
	if err != nil || !ok {
		return apperr.New(apperr.AuthInvalid, "当前密码错误")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "修改密码失败，请稍后重试", err)
	}
	voter.PasswordHash = hash
	voter.UpdatedAt = s.now().UTC()

	if err := s.voters.SaveVoter(ctx, voter); err != nil {
		return err
	}

	s.logger.Info("密码已修改", "event", "account_password_changed", "voter_id", voter.ID)
	return nil
}
