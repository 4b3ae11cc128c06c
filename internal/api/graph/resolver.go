package graph

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/lvdashuaibi/onevote/internal/model"
	"github.com/lvdashuaibi/onevote/internal/service"
)

// Resolver GraphQL解析器
type Resolver struct {
	accounts   *service.AccountService
	candidates *service.CandidateService
	votes      *service.VoteService
}

func (r *Resolver) Candidates(ctx context.Context) ([]*CandidateSummaryResolver, error) {
	list, err := r.candidates.ListPublic(ctx)
	if err != nil {
		return nil, publicError(err)
	}
	out := make([]*CandidateSummaryResolver, len(list))
	for i := range list {
		out[i] = &CandidateSummaryResolver{summary: list[i]}
	}
	return out, nil
}

func (r *Resolver) VoteCount(ctx context.Context) ([]*PartyTallyResolver, error) {
	tally, err := r.candidates.ListWithTally(ctx)
	if err != nil {
		return nil, publicError(err)
	}
	out := make([]*PartyTallyResolver, len(tally))
	for i := range tally {
		out[i] = &PartyTallyResolver{tally: tally[i]}
	}
	return out, nil
}

func (r *Resolver) Me(ctx context.Context) (*ProfileResolver, error) {
	subjectID, err := subjectFrom(ctx)
	if err != nil {
		return nil, publicError(err)
	}
	profile, err := r.accounts.GetProfile(ctx, subjectID)
	if err != nil {
		return nil, publicError(err)
	}
	return &ProfileResolver{profile: *profile}, nil
}

func (r *Resolver) AuditTally(ctx context.Context) ([]*TallyAuditResolver, error) {
	subjectID, err := subjectFrom(ctx)
	if err != nil {
		return nil, publicError(err)
	}
	audits, err := r.candidates.AuditTally(ctx, subjectID)
	if err != nil {
		return nil, publicError(err)
	}
	out := make([]*TallyAuditResolver, len(audits))
	for i := range audits {
		out[i] = &TallyAuditResolver{audit: audits[i]}
	}
	return out, nil
}

type SignupInput struct {
	Identity string
	Password string
	Role     *string
	Name     string
	Age      int32
	Email    *string
	Mobile   *string
	Address  *string
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *Resolver) Signup(ctx context.Context, args struct{ Input SignupInput }) (*AuthPayloadResolver, error) {
	in := args.Input
	resp, err := r.accounts.Signup(ctx, model.SignupRequest{
		Identity: in.Identity,
		Password: in.Password,
		Role:     deref(in.Role),
		Name:     in.Name,
		Age:      int(in.Age),
		Email:    deref(in.Email),
		Mobile:   deref(in.Mobile),
		Address:  deref(in.Address),
	})
	if err != nil {
		return nil, publicError(err)
	}
	return &AuthPayloadResolver{resp: resp}, nil
}

func (r *Resolver) Login(ctx context.Context, args struct {
	Identity string
	Password string
}) (string, error) {
	token, err := r.accounts.Login(ctx, args.Identity, args.Password)
	if err != nil {
		return "", publicError(err)
	}
	return token, nil
}

func (r *Resolver) ChangePassword(ctx context.Context, args struct {
	CurrentPassword string
	NewPassword     string
}) (bool, error) {
	subjectID, err := subjectFrom(ctx)
	if err != nil {
		return false, publicError(err)
	}
	if err := r.accounts.ChangePassword(ctx, subjectID, args.CurrentPassword, args.NewPassword); err != nil {
		return false, publicError(err)
	}
	return true, nil
}

type CandidateInput struct {
	Name  string
	Party string
	Age   int32
}

type CandidatePatchInput struct {
	Name  *string
	Party *string
	Age   *int32
}

func (r *Resolver) CreateCandidate(ctx context.Context, args struct{ Input CandidateInput }) (*CandidateResolver, error) {
	subjectID, err := subjectFrom(ctx)
	if err != nil {
		return nil, publicError(err)
	}
	candidate, err := r.candidates.Create(ctx, model.CandidateInput{
		Name:  args.Input.Name,
		Party: args.Input.Party,
		Age:   int(args.Input.Age),
	}, subjectID)
	if err != nil {
		return nil, publicError(err)
	}
	return &CandidateResolver{candidate: candidate}, nil
}

func (r *Resolver) UpdateCandidate(ctx context.Context, args struct {
	ID    graphql.ID
	Input CandidatePatchInput
}) (*CandidateResolver, error) {
	subjectID, err := subjectFrom(ctx)
	if err != nil {
		return nil, publicError(err)
	}

	patch := model.CandidatePatch{Name: args.Input.Name, Party: args.Input.Party}
	if args.Input.Age != nil {
		age := int(*args.Input.Age)
		patch.Age = &age
	}

	candidate, err := r.candidates.Update(ctx, string(args.ID), patch, subjectID)
	if err != nil {
		return nil, publicError(err)
	}
	return &CandidateResolver{candidate: candidate}, nil
}

func (r *Resolver) DeleteCandidate(ctx context.Context, args struct{ ID graphql.ID }) (*CandidateResolver, error) {
	subjectID, err := subjectFrom(ctx)
	if err != nil {
		return nil, publicError(err)
	}
	candidate, err := r.candidates.Delete(ctx, string(args.ID), subjectID)
	if err != nil {
		return nil, publicError(err)
	}
	return &CandidateResolver{candidate: candidate}, nil
}

func (r *Resolver) CastVote(ctx context.Context, args struct{ CandidateID graphql.ID }) (bool, error) {
	subjectID, err := subjectFrom(ctx)
	if err != nil {
		return false, publicError(err)
	}
	if err := r.votes.CastVote(ctx, string(args.CandidateID), subjectID); err != nil {
		return false, publicError(err)
	}
	return true, nil
}

// ProfileResolver 选民信息解析器
type ProfileResolver struct {
	profile model.Profile
}

func (r *ProfileResolver) ID() graphql.ID   { return graphql.ID(r.profile.ID) }
func (r *ProfileResolver) Identity() string { return r.profile.Identity }
func (r *ProfileResolver) Role() string     { return r.profile.Role.String() }
func (r *ProfileResolver) HasVoted() bool   { return r.profile.HasVoted }
func (r *ProfileResolver) Name() string     { return r.profile.Name }
func (r *ProfileResolver) Age() int32       { return int32(r.profile.Age) }
func (r *ProfileResolver) Address() string  { return r.profile.Address }

func (r *ProfileResolver) Email() *string {
	if r.profile.Email == "" {
		return nil
	}
	return &r.profile.Email
}

func (r *ProfileResolver) Mobile() *string {
	if r.profile.Mobile == "" {
		return nil
	}
	return &r.profile.Mobile
}

type AuthPayloadResolver struct {
	resp *model.SignupResponse
}

func (r *AuthPayloadResolver) Token() string { return r.resp.Token }

func (r *AuthPayloadResolver) Profile() *ProfileResolver {
	return &ProfileResolver{profile: r.resp.Profile}
}

// CandidateResolver 候选人解析器，不暴露投票明细
type CandidateResolver struct {
	candidate *model.Candidate
}

func (r *CandidateResolver) ID() graphql.ID   { return graphql.ID(r.candidate.ID) }
func (r *CandidateResolver) Name() string     { return r.candidate.Name }
func (r *CandidateResolver) Party() string    { return r.candidate.Party }
func (r *CandidateResolver) Age() int32       { return int32(r.candidate.Age) }
func (r *CandidateResolver) VoteCount() int32 { return int32(r.candidate.VoteCount) }

type CandidateSummaryResolver struct {
	summary model.CandidateSummary
}

func (r *CandidateSummaryResolver) Name() string  { return r.summary.Name }
func (r *CandidateSummaryResolver) Party() string { return r.summary.Party }

type PartyTallyResolver struct {
	tally model.PartyTally
}

func (r *PartyTallyResolver) Party() string { return r.tally.Party }
func (r *PartyTallyResolver) Count() int32  { return int32(r.tally.Count) }

type TallyAuditResolver struct {
	audit model.TallyAudit
}

func (r *TallyAuditResolver) CandidateID() graphql.ID { return graphql.ID(r.audit.CandidateID) }
func (r *TallyAuditResolver) Party() string           { return r.audit.Party }
func (r *TallyAuditResolver) VoteCount() int32        { return int32(r.audit.VoteCount) }
func (r *TallyAuditResolver) RecordCount() int32      { return int32(r.audit.RecordCount) }
func (r *TallyAuditResolver) Consistent() bool        { return r.audit.Consistent }
