package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lvdashuaibi/onevote/internal/apperr"
	"github.com/lvdashuaibi/onevote/internal/model"
)

func seedVoter(t *testing.T, r *MemoryRepository, id string, role model.Role) {
	t.Helper()
	err := r.CreateVoter(context.Background(), &model.Voter{ID: id, Identity: "id-" + id, Role: role, Name: id})
	if err != nil {
		t.Fatalf("CreateVoter(%s) error = %v", id, err)
	}
}

func seedCandidate(t *testing.T, r *MemoryRepository, id, party string) {
	t.Helper()
	err := r.CreateCandidate(context.Background(), &model.Candidate{ID: id, Name: id, Party: party})
	if err != nil {
		t.Fatalf("CreateCandidate(%s) error = %v", id, err)
	}
}

func TestMemoryCreateVoterConflicts(t *testing.T) {
	r := NewMemoryRepository()
	seedVoter(t, r, "a", model.RoleAdmin)

	err := r.CreateVoter(context.Background(), &model.Voter{ID: "b", Identity: "id-a", Role: model.RoleVoter})
	if !apperr.Is(err, apperr.Conflict) {
		t.Errorf("duplicate identity error = %v, want Conflict", err)
	}

	err = r.CreateVoter(context.Background(), &model.Voter{ID: "c", Identity: "id-c", Role: model.RoleAdmin})
	if !apperr.Is(err, apperr.Conflict) {
		t.Errorf("second admin error = %v, want Conflict", err)
	}
}

func TestMemoryReadsAreCopies(t *testing.T) {
	r := NewMemoryRepository()
	seedVoter(t, r, "v", model.RoleVoter)

	v, _ := r.FindVoterByID(context.Background(), "v")
	v.HasVoted = true

	again, _ := r.FindVoterByID(context.Background(), "v")
	if again.HasVoted {
		t.Error("mutating a returned voter changed the stored voter")
	}
}

func TestMemorySaveVoterNeverClearsHasVoted(t *testing.T) {
	r := NewMemoryRepository()
	seedVoter(t, r, "v", model.RoleVoter)
	seedCandidate(t, r, "c1", "A")

	err := r.RunVoteTx(context.Background(), func(ctx context.Context, tx VoteTx) error {
		if err := tx.AppendVote(ctx, "c1", model.VoteRecord{VoterID: "v", CastAt: time.Now()}); err != nil {
			return err
		}
		return tx.MarkVoted(ctx, "v", time.Now())
	})
	if err != nil {
		t.Fatalf("RunVoteTx() error = %v", err)
	}

	if err := r.SaveVoter(context.Background(), &model.Voter{ID: "v", Name: "renamed", HasVoted: false}); err != nil {
		t.Fatalf("SaveVoter() error = %v", err)
	}
	v, _ := r.FindVoterByID(context.Background(), "v")
	if !v.HasVoted {
		t.Error("SaveVoter cleared hasVoted")
	}
	if v.Name != "renamed" {
		t.Errorf("Name = %q, want renamed", v.Name)
	}
}

func TestMemoryVoteTxRollsBackOnError(t *testing.T) {
	r := NewMemoryRepository()
	seedVoter(t, r, "v", model.RoleVoter)
	seedCandidate(t, r, "c1", "A")

	boom := errors.New("boom")
	err := r.RunVoteTx(context.Background(), func(ctx context.Context, tx VoteTx) error {
		if err := tx.AppendVote(ctx, "c1", model.VoteRecord{VoterID: "v"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunVoteTx() error = %v, want boom", err)
	}

	audits, _ := r.AuditTally(context.Background())
	if audits[0].VoteCount != 0 || audits[0].RecordCount != 0 {
		t.Errorf("partial commit: %+v", audits[0])
	}
	v, _ := r.FindVoterByID(context.Background(), "v")
	if v.HasVoted {
		t.Error("voter marked as voted after rollback")
	}
}

func TestMemoryMarkVotedTwice(t *testing.T) {
	r := NewMemoryRepository()
	seedVoter(t, r, "v", model.RoleVoter)

	mark := func() error {
		return r.RunVoteTx(context.Background(), func(ctx context.Context, tx VoteTx) error {
			return tx.MarkVoted(ctx, "v", time.Now())
		})
	}
	if err := mark(); err != nil {
		t.Fatalf("first MarkVoted error = %v", err)
	}
	if err := mark(); !apperr.Is(err, apperr.AlreadyVoted) {
		t.Errorf("second MarkVoted error = %v, want AlreadyVoted", err)
	}
}

func TestMemoryListTallyOrder(t *testing.T) {
	r := NewMemoryRepository()
	seedCandidate(t, r, "c1", "A")
	seedCandidate(t, r, "c2", "B")
	seedCandidate(t, r, "c3", "C")

	for i, voter := range []string{"v1", "v2", "v3"} {
		seedVoter(t, r, voter, model.RoleVoter)
		target := "c2"
		if i == 2 {
			target = "c3"
		}
		err := r.RunVoteTx(context.Background(), func(ctx context.Context, tx VoteTx) error {
			return tx.AppendVote(ctx, target, model.VoteRecord{VoterID: voter})
		})
		if err != nil {
			t.Fatalf("AppendVote error = %v", err)
		}
	}

	tally, err := r.ListTally(context.Background())
	if err != nil {
		t.Fatalf("ListTally() error = %v", err)
	}
	want := []model.PartyTally{{Party: "B", Count: 2}, {Party: "C", Count: 1}, {Party: "A", Count: 0}}
	if len(tally) != len(want) {
		t.Fatalf("len(tally) = %d, want %d", len(tally), len(want))
	}
	for i := range want {
		if tally[i] != want[i] {
			t.Errorf("tally[%d] = %+v, want %+v", i, tally[i], want[i])
		}
	}
}

func TestMemoryUpdateAndDeleteCandidate(t *testing.T) {
	r := NewMemoryRepository()
	seedCandidate(t, r, "c1", "A")
	seedCandidate(t, r, "c2", "B")

	party := "A2"
	updated, err := r.UpdateCandidate(context.Background(), "c1", model.CandidatePatch{Party: &party})
	if err != nil {
		t.Fatalf("UpdateCandidate() error = %v", err)
	}
	if updated.Party != "A2" || updated.Name != "c1" {
		t.Errorf("UpdateCandidate() = %+v", updated)
	}

	if _, err := r.DeleteCandidate(context.Background(), "c1"); err != nil {
		t.Fatalf("DeleteCandidate() error = %v", err)
	}
	if _, err := r.DeleteCandidate(context.Background(), "c1"); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("second DeleteCandidate() error = %v, want NotFound", err)
	}

	list, _ := r.ListCandidates(context.Background())
	if len(list) != 1 || list[0].ID != "c2" {
		t.Errorf("ListCandidates() = %+v", list)
	}
}

func TestMemoryMarkVotedUsesCastTime(t *testing.T) {
	r := NewMemoryRepository()
	seedVoter(t, r, "v", model.RoleVoter)
	seedCandidate(t, r, "c1", "A")

	castAt := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	err := r.RunVoteTx(context.Background(), func(ctx context.Context, tx VoteTx) error {
		if err := tx.AppendVote(ctx, "c1", model.VoteRecord{VoterID: "v", CastAt: castAt}); err != nil {
			return err
		}
		return tx.MarkVoted(ctx, "v", castAt)
	})
	if err != nil {
		t.Fatalf("RunVoteTx() error = %v", err)
	}

	v, _ := r.FindVoterByID(context.Background(), "v")
	if !v.UpdatedAt.Equal(castAt) {
		t.Errorf("UpdatedAt = %v, want %v", v.UpdatedAt, castAt)
	}
}

func TestMemoryDeleteCandidateOmitsVotes(t *testing.T) {
	r := NewMemoryRepository()
	seedVoter(t, r, "v", model.RoleVoter)
	seedCandidate(t, r, "c1", "A")

	err := r.RunVoteTx(context.Background(), func(ctx context.Context, tx VoteTx) error {
		return tx.AppendVote(ctx, "c1", model.VoteRecord{VoterID: "v", CastAt: time.Now()})
	})
	if err != nil {
		t.Fatalf("RunVoteTx() error = %v", err)
	}

	deleted, err := r.DeleteCandidate(context.Background(), "c1")
	if err != nil {
		t.Fatalf("DeleteCandidate() error = %v", err)
	}
	if len(deleted.Votes) != 0 {
		t.Errorf("deleted candidate exposes votes: %+v", deleted.Votes)
	}
	if deleted.VoteCount != 1 || deleted.Party != "A" {
		t.Errorf("DeleteCandidate() = %+v", deleted)
	}
}
