package community

import (
	"context"
	"testing"
	"time"

	"github.com/mohallaa/mohallaa/pkg/auth"
	"github.com/mohallaa/mohallaa/pkg/remote"
	"github.com/mohallaa/mohallaa/pkg/resource"
)

func seedPosts(f *fixture) {
	f.mem.Seed(CollectionPosts,
		remote.Row{"id": "p1", "title": "Oldest", "created_at": "2024-05-01T10:00:00Z"},
		remote.Row{"id": "p2", "title": "Middle", "created_at": "2024-05-02T10:00:00Z"},
		remote.Row{"id": "p3", "title": "Newest", "created_at": "2024-05-03T10:00:00Z"},
	)
}

func loadFeed(t *testing.T, feed *Feed) FeedPage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := feed.Resource().Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Err != nil {
		t.Fatalf("feed error: %v", snap.Err)
	}
	return snap.Data
}

func postIDs(ps []Post) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func TestFeedPersonalized(t *testing.T) {
	f := newFixture(t)
	seedPosts(f)
	f.mem.Seed(CollectionPostScores,
		remote.Row{"id": "s1", "user_id": "u1", "post_id": "p1", "score": 0.9},
		remote.Row{"id": "s2", "user_id": "u1", "post_id": "p2", "score": 0.5},
		remote.Row{"id": "s3", "user_id": "u1", "post_id": "p3", "score": 0.5},
		remote.Row{"id": "s4", "user_id": "u2", "post_id": "p2", "score": 1.0},
	)
	feed := NewFeed(f.deps, FeedOptions{})
	defer feed.Close()

	page := loadFeed(t, feed)
	if page.Source != SourcePersonalized {
		t.Fatalf("source = %s", page.Source)
	}
	got := postIDs(page.Posts)
	want := []string{"p1", "p3", "p2"}
	if len(got) != len(want) {
		t.Fatalf("posts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("posts = %v, want %v", got, want)
		}
	}
	if page.Posts[0].Score != 0.9 {
		t.Errorf("score = %v", page.Posts[0].Score)
	}
}

func TestFeedEmptyPersonalization(t *testing.T) {
	tests := []struct {
		name   string
		policy EmptyPolicy
		source FeedSource
		count  int
	}{
		{"fallback", EmptyFallback, SourceChronological, 3},
		{"show nothing", EmptyShowNothing, SourceEmpty, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			seedPosts(f)
			feed := NewFeed(f.deps, FeedOptions{Empty: tt.policy})
			defer feed.Close()

			page := loadFeed(t, feed)
			if page.Source != tt.source || len(page.Posts) != tt.count {
				t.Fatalf("page = %s with %d posts, want %s with %d", page.Source, len(page.Posts), tt.source, tt.count)
			}
			if tt.count > 0 && page.Posts[0].ID != "p3" {
				t.Errorf("chronological feed not newest first: %v", postIDs(page.Posts))
			}
		})
	}
}

func TestFeedSignedOutIsChronological(t *testing.T) {
	f := newFixture(t)
	f.sess.Logout()
	seedPosts(f)
	feed := NewFeed(f.deps, FeedOptions{Limit: 2})
	defer feed.Close()

	page := loadFeed(t, feed)
	if page.Source != SourceChronological || len(page.Posts) != 2 {
		t.Fatalf("page = %+v", page)
	}
}

func TestFeedSyncRefetchesOnUserChange(t *testing.T) {
	f := newFixture(t)
	f.sess.Logout()
	seedPosts(f)
	f.mem.Seed(CollectionPostScores, remote.Row{"id": "s1", "user_id": "u1", "post_id": "p2", "score": 1})
	feed := NewFeed(f.deps, FeedOptions{})
	defer feed.Close()
	if page := loadFeed(t, feed); page.Source != SourceChronological {
		t.Fatalf("source = %s", page.Source)
	}

	reads := f.remote.reads.Load()
	feed.Sync()
	if f.remote.reads.Load() != reads {
		t.Error("Sync without a user change should not refetch")
	}

	f.sess.Login(auth.Principal{ID: "u1"})
	feed.Sync()
	waitFor(t, func() bool { return feed.Page().Source == SourcePersonalized })
	if got := postIDs(feed.Page().Posts); len(got) != 1 || got[0] != "p2" {
		t.Errorf("posts = %v", got)
	}
}

func TestFeedRefetchOnFocus(t *testing.T) {
	f := newFixture(t)
	seedPosts(f)
	vis := resource.NewVisibility(true)
	feed := NewFeed(f.deps, FeedOptions{Visibility: vis})
	defer feed.Close()
	loadFeed(t, feed)

	f.mem.Seed(CollectionPosts, remote.Row{"id": "p4", "created_at": "2024-05-04T10:00:00Z"})
	vis.SetVisible(false)
	vis.SetVisible(true)
	waitFor(t, func() bool {
		ps := feed.Page().Posts
		return len(ps) == 4 && ps[0].ID == "p4"
	})
}
