package proposal

import (
	"testing"
	"time"
)

func TestCreate_ApprovalDefaultsToApproveReject(t *testing.T) {
	m := NewManager()
	p, err := m.Create(CreateOptions{Type: KindApproval, Title: "ship it", CreatedBy: "alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID != "prop-1" {
		t.Fatalf("expected prop-1, got %s", p.ID)
	}
	if len(p.Options) != 2 || p.Options[0].ID != "approve" || p.Options[1].ID != "reject" {
		t.Fatalf("unexpected default options: %+v", p.Options)
	}
	if p.Resolution.Type != ResolutionPlurality {
		t.Fatalf("expected default plurality resolution, got %v", p.Resolution.Type)
	}
}

func TestVote_PluralityResolvesOnMoreVotesForOneChoice(t *testing.T) {
	m := NewManager()
	p, _ := m.Create(CreateOptions{Type: KindDecision, Title: "pick a color", CreatedBy: "alice",
		Options:    []Option{{ID: "red"}, {ID: "blue"}},
		Resolution: Resolution{Quorum: 3}})

	m.Vote(p.ID, "alice", "red", "")
	m.Vote(p.ID, "bob", "red", "")
	got, err := m.Vote(p.ID, "carol", "blue", "")
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if got.Status != StatusResolved {
		t.Fatalf("expected resolved, got %v", got.Status)
	}
	if got.Result == nil || got.Result.Winner != "red" {
		t.Fatalf("expected red to win, got %+v", got.Result)
	}
}

func TestVote_TieBreaksFirstInOrderByDefault(t *testing.T) {
	m := NewManager()
	p, _ := m.Create(CreateOptions{Type: KindDecision, Title: "tie", CreatedBy: "alice",
		Options:    []Option{{ID: "red"}, {ID: "blue"}},
		Resolution: Resolution{Quorum: 2}})

	m.Vote(p.ID, "alice", "red", "")
	got, _ := m.Vote(p.ID, "bob", "blue", "")
	if got.Result == nil || got.Result.Winner != "red" {
		t.Fatalf("expected first-in-order tiebreak to pick red, got %+v", got.Result)
	}
}

func TestVote_RevotingReplacesPriorChoice(t *testing.T) {
	m := NewManager()
	p, _ := m.Create(CreateOptions{Type: KindDecision, Title: "x", CreatedBy: "alice",
		Options: []Option{{ID: "a"}, {ID: "b"}},
		Resolution: Resolution{Quorum: 2}})

	m.Vote(p.ID, "alice", "a", "")
	got, _ := m.Vote(p.ID, "alice", "b", "")
	if got.Status != StatusActive {
		t.Fatalf("expected still active below quorum, got %v", got.Status)
	}
	if len(got.Votes) != 1 || got.Votes["alice"].Choice != "b" {
		t.Fatalf("expected single revised vote, got %+v", got.Votes)
	}
}

func TestVote_QuorumBlocksResolutionUntilMet(t *testing.T) {
	m := NewManager()
	p, _ := m.Create(CreateOptions{Type: KindDecision, Title: "x", CreatedBy: "alice",
		Options:    []Option{{ID: "a"}, {ID: "b"}},
		Resolution: Resolution{Quorum: 3},
	})
	got, _ := m.Vote(p.ID, "alice", "a", "")
	if got.Status != StatusActive {
		t.Fatalf("expected active below quorum, got %v", got.Status)
	}
}

func TestVote_RejectsInactiveProposal(t *testing.T) {
	m := NewManager()
	p, _ := m.Create(CreateOptions{Type: KindDecision, Title: "x", CreatedBy: "alice", Options: []Option{{ID: "a"}}})
	m.Cancel(p.ID, "alice")
	if _, err := m.Vote(p.ID, "bob", "a", ""); err != ErrNotActive {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestCancel_RequiresCreator(t *testing.T) {
	m := NewManager()
	p, _ := m.Create(CreateOptions{Type: KindDecision, Title: "x", CreatedBy: "alice"})
	if err := m.Cancel(p.ID, "bob"); err != ErrNotCreator {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	if err := m.Cancel(p.ID, "alice"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
}

func TestStatus_LazilyExpiresPastDeadline(t *testing.T) {
	m := NewManager()
	p, _ := m.Create(CreateOptions{Type: KindDecision, Title: "x", CreatedBy: "alice", ExpiresAt: time.Now().Add(-time.Second)})
	got, err := m.Status(p.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got.Status != StatusExpired {
		t.Fatalf("expected expired, got %v", got.Status)
	}
}

func TestStatus_UnknownProposalReturnsNotFound(t *testing.T) {
	m := NewManager()
	if _, err := m.Status("prop-404"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
