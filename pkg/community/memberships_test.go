package community

import (
	"context"
	"errors"
	"testing"

	"github.com/mohallaa/mohallaa/pkg/optimistic"
	"github.com/mohallaa/mohallaa/pkg/remote"
	"github.com/mohallaa/mohallaa/pkg/toast"
)

func TestDoubleJoinWritesOnce(t *testing.T) {
	f := newFixture(t)
	m := NewMemberships(f.deps, []Community{{ID: "c1", Name: "Koramangala", MemberCount: 10}})
	ctx := context.Background()

	f.remote.hold()
	first := make(chan optimistic.Outcome, 1)
	go func() {
		o, _ := m.Join(ctx, "c1")
		first <- o
	}()
	waitFor(t, func() bool { return m.Busy("c1") })

	outcome, err := m.Join(ctx, "c1")
	if outcome != optimistic.OutcomeDropped || !errors.Is(err, optimistic.ErrTargetBusy) {
		t.Fatalf("second Join = %v, %v; want dropped, ErrTargetBusy", outcome, err)
	}
	f.remote.release()

	if o := <-first; o != optimistic.OutcomeConfirmed {
		t.Fatalf("first Join = %v", o)
	}
	if n := f.remote.writes.Load(); n != 1 {
		t.Errorf("writes = %d, want 1", n)
	}
	got := m.State().Get()[0]
	if !got.Joined || got.MemberCount != 11 {
		t.Errorf("community = %+v, want joined with 11 members", got)
	}
	if n := f.toasts.Count(toast.TypeSuccess); n != 1 {
		t.Errorf("success toasts = %d, want 1", n)
	}
}

func TestLeaveFailureRestoresMembership(t *testing.T) {
	f := newFixture(t)
	f.mem.SetFault(failWrites(CollectionMembers))
	m := NewMemberships(f.deps, []Community{{ID: "c1", MemberCount: 5, Joined: true}})

	outcome, err := m.Leave(context.Background(), "c1")
	if outcome != optimistic.OutcomeRolledBack || err == nil {
		t.Fatalf("Leave = %v, %v", outcome, err)
	}
	got := m.State().Get()[0]
	if !got.Joined || got.MemberCount != 5 {
		t.Errorf("community = %+v, want restored", got)
	}
	all := f.toasts.All()
	if len(all) != 1 || all[0].Title != "Could not leave" {
		t.Errorf("toasts = %+v", all)
	}
}

func TestMembershipsLoad(t *testing.T) {
	f := newFixture(t)
	f.mem.Seed(CollectionCommunities,
		remote.Row{"id": "c1", "name": "Indiranagar", "member_count": 4},
		remote.Row{"id": "c2", "name": "HSR Layout", "member_count": 9},
	)
	f.mem.Seed(CollectionMembers, remote.Row{"id": "u1:c1", "community_id": "c1", "user_id": "u1"})

	m := NewMemberships(f.deps, nil)
	if err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := m.State().Get()
	if len(got) != 2 || got[0].Name != "HSR Layout" {
		t.Fatalf("communities = %+v, want ordered by name", got)
	}
	if got[0].Joined || !got[1].Joined {
		t.Errorf("joined flags wrong: %+v", got)
	}
}
