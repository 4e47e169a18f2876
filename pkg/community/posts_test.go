package community

import (
	"context"
	"sync"
	"testing"

	"github.com/mohallaa/mohallaa/pkg/optimistic"
	"github.com/mohallaa/mohallaa/pkg/remote"
	"github.com/mohallaa/mohallaa/pkg/toast"
)

func TestVoteFailureRestoresCounts(t *testing.T) {
	f := newFixture(t)
	f.mem.SetFault(failWrites(CollectionPostVotes))
	posts := NewPosts(f.deps, []Post{{ID: "p1", Upvotes: 3}})

	var (
		mu   sync.Mutex
		seen []int
	)
	posts.State().Subscribe(func(ps []Post) {
		mu.Lock()
		seen = append(seen, ps[0].Upvotes)
		mu.Unlock()
	})

	outcome, err := posts.Vote(context.Background(), "p1", VoteUp)
	if outcome != optimistic.OutcomeRolledBack {
		t.Fatalf("outcome = %v, want rolled-back", outcome)
	}
	if err == nil || remote.CodeOf(err) != remote.CodeUnavailable {
		t.Fatalf("err = %v, want unavailable", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 4 || seen[1] != 3 {
		t.Errorf("upvotes seen = %v, want [4 3]", seen)
	}
	got := posts.State().Get()[0]
	if got.Upvotes != 3 || got.UserVote != VoteNone {
		t.Errorf("post = %+v, want 3 upvotes and no vote", got)
	}
	all := f.toasts.All()
	if len(all) != 1 || all[0].Level != toast.TypeError || all[0].Title != "Vote failed" {
		t.Errorf("toasts = %+v, want one Vote failed error", all)
	}
}

func TestVoteAddSwitchRemove(t *testing.T) {
	f := newFixture(t)
	posts := NewPosts(f.deps, []Post{{ID: "p1", Upvotes: 3, Downvotes: 1}})
	ctx := context.Background()

	steps := []struct {
		dir        VoteType
		up, down   int
		vote       VoteType
		storedRows int
	}{
		{VoteUp, 4, 1, VoteUp, 1},
		{VoteDown, 3, 2, VoteDown, 1},
		{VoteDown, 3, 1, VoteNone, 0},
	}
	for i, s := range steps {
		if outcome, err := posts.Vote(ctx, "p1", s.dir); outcome != optimistic.OutcomeConfirmed || err != nil {
			t.Fatalf("step %d: Vote = %v, %v", i, outcome, err)
		}
		got := posts.State().Get()[0]
		if got.Upvotes != s.up || got.Downvotes != s.down || got.UserVote != s.vote {
			t.Errorf("step %d: post = %+v", i, got)
		}
		rows, _ := f.mem.Read(ctx, CollectionPostVotes, remote.Filter{})
		if len(rows) != s.storedRows {
			t.Errorf("step %d: stored votes = %d, want %d", i, len(rows), s.storedRows)
		}
	}
	if f.toasts.Len() != 0 {
		t.Errorf("votes should be silent on success, got %+v", f.toasts.All())
	}
}

func TestBookmarkSuccessShowsOneToast(t *testing.T) {
	f := newFixture(t)
	posts := NewPosts(f.deps, []Post{{ID: "p1"}})

	outcome, err := posts.ToggleBookmark(context.Background(), "p1")
	if outcome != optimistic.OutcomeConfirmed || err != nil {
		t.Fatalf("ToggleBookmark = %v, %v", outcome, err)
	}
	if !posts.State().Get()[0].Bookmarked {
		t.Error("post should be bookmarked")
	}
	all := f.toasts.All()
	if len(all) != 1 || all[0].Level != toast.TypeSuccess || all[0].Message != "Post saved" {
		t.Errorf("toasts = %+v, want one Post saved", all)
	}
	rows, _ := f.mem.Read(context.Background(), CollectionBookmarks, remote.Filter{})
	if len(rows) != 1 || rows[0].ID() != "u1:p1" {
		t.Errorf("bookmarks = %v", rows)
	}

	f.toasts.Reset()
	if _, err := posts.ToggleBookmark(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	if posts.State().Get()[0].Bookmarked {
		t.Error("post should no longer be bookmarked")
	}
	if all := f.toasts.All(); len(all) != 1 || all[0].Message != "Post removed from saved" {
		t.Errorf("toasts = %+v", all)
	}
}

func TestVoteAndBookmarkRollbacksAreIndependent(t *testing.T) {
	f := newFixture(t)
	f.mem.SetFault(failWrites(CollectionBookmarks))
	posts := NewPosts(f.deps, []Post{{ID: "p1", Upvotes: 3}})
	ctx := context.Background()

	f.remote.hold()
	done := make(chan optimistic.Outcome, 1)
	go func() {
		o, _ := posts.ToggleBookmark(ctx, "p1")
		done <- o
	}()
	waitFor(t, func() bool { return posts.Busy(BookmarkTarget("p1")) })

	// The vote write is held too; release both once the vote is applied.
	voteDone := make(chan optimistic.Outcome, 1)
	go func() {
		o, _ := posts.Vote(ctx, "p1", VoteUp)
		voteDone <- o
	}()
	waitFor(t, func() bool { return posts.Busy(VoteTarget("p1")) })
	f.remote.release()

	if o := <-done; o != optimistic.OutcomeRolledBack {
		t.Fatalf("bookmark outcome = %v", o)
	}
	if o := <-voteDone; o != optimistic.OutcomeConfirmed {
		t.Fatalf("vote outcome = %v", o)
	}
	got := posts.State().Get()[0]
	if got.Bookmarked || got.Upvotes != 4 || got.UserVote != VoteUp {
		t.Errorf("post = %+v, want vote kept and bookmark reverted", got)
	}
}

func TestLoadMarksUserState(t *testing.T) {
	f := newFixture(t)
	f.mem.Seed(CollectionPosts,
		remote.Row{"id": "p1", "title": "Water outage", "upvotes": 2, "created_at": "2024-05-01T10:00:00Z"},
		remote.Row{"id": "p2", "title": "Lost cat", "created_at": "2024-05-02T10:00:00Z"},
	)
	f.mem.Seed(CollectionPostVotes, remote.Row{"id": "u1:p1", "post_id": "p1", "user_id": "u1", "vote_type": "upvote"})
	f.mem.Seed(CollectionBookmarks, remote.Row{"id": "u1:p2", "post_id": "p2", "user_id": "u1"})

	posts := NewPosts(f.deps, nil)
	if err := posts.Load(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	got := posts.State().Get()
	if len(got) != 2 || got[0].ID != "p2" {
		t.Fatalf("posts = %+v, want newest first", got)
	}
	if !got[0].Bookmarked || got[1].UserVote != VoteUp {
		t.Errorf("user state not applied: %+v", got)
	}
}

func TestVoteUnknownPost(t *testing.T) {
	f := newFixture(t)
	posts := NewPosts(f.deps, nil)
	if _, err := posts.Vote(context.Background(), "nope", VoteUp); err == nil {
		t.Fatal("expected error for unknown post")
	}
	if f.remote.calls() != 0 {
		t.Error("no remote call expected")
	}
}
