package community

import (
	"context"
	"sort"

	"github.com/mohallaa/mohallaa/pkg/remote"
	"github.com/mohallaa/mohallaa/pkg/resource"
)

// EmptyPolicy decides what a personalized feed shows when the user has no
// scored posts yet.
type EmptyPolicy int

const (
	// EmptyFallback shows the chronological feed.
	EmptyFallback EmptyPolicy = iota
	// EmptyShowNothing shows an empty feed.
	EmptyShowNothing
)

// FeedSource tells where a feed page came from.
type FeedSource string

const (
	SourcePersonalized  FeedSource = "personalized"
	SourceChronological FeedSource = "chronological"
	SourceEmpty         FeedSource = "empty"
)

// DefaultFeedLimit is the page size of a feed.
const DefaultFeedLimit = 20

// FeedPage is one loaded page of the feed.
type FeedPage struct {
	Posts  []Post
	Source FeedSource
}

// FeedOptions configures a Feed.
type FeedOptions struct {
	Empty      EmptyPolicy
	Limit      int
	Visibility *resource.Visibility
}

// Feed is the home feed of the current user. Signed-in users with
// post_scores rows get their posts ordered by score; everyone else gets the
// newest posts.
type Feed struct {
	deps  Deps
	opts  FeedOptions
	pages *resource.Resource[FeedPage]
}

// NewFeed creates the feed and starts loading it.
func NewFeed(d Deps, opts FeedOptions) *Feed {
	if opts.Limit <= 0 {
		opts.Limit = DefaultFeedLimit
	}
	f := &Feed{deps: d, opts: opts}

	ropts := []resource.Option[FeedPage]{
		resource.Deps[FeedPage](f.userID()),
		resource.WithLogger[FeedPage](d.logger("feed")),
	}
	if opts.Visibility != nil {
		ropts = append(ropts, resource.RefetchOnWindowFocus[FeedPage](opts.Visibility))
	}
	f.pages = resource.New(f.load, ropts...)
	return f
}

// Resource exposes the underlying fetch state.
func (f *Feed) Resource() *resource.Resource[FeedPage] { return f.pages }

// Page returns the last loaded page.
func (f *Feed) Page() FeedPage { return f.pages.Data() }

// Sync reloads the feed if the signed-in user changed.
func (f *Feed) Sync() { f.pages.SetDeps(f.userID()) }

// Refetch reloads the feed.
func (f *Feed) Refetch() { f.pages.Refetch() }

// Close stops the feed.
func (f *Feed) Close() { f.pages.Close() }

func (f *Feed) userID() string {
	if u := f.deps.currentUser(); u != nil {
		return u.ID
	}
	return ""
}

func (f *Feed) load(ctx context.Context) (FeedPage, error) {
	user := f.deps.currentUser()
	if user == nil {
		return f.chronological(ctx)
	}

	scores, err := f.deps.Remote.Read(ctx, CollectionPostScores, remote.Filter{
		Eq:      map[string]any{"user_id": user.ID},
		OrderBy: "score",
		Desc:    true,
		Limit:   f.opts.Limit,
	})
	if err != nil {
		return FeedPage{}, err
	}
	if len(scores) == 0 {
		if f.opts.Empty == EmptyShowNothing {
			return FeedPage{Posts: []Post{}, Source: SourceEmpty}, nil
		}
		return f.chronological(ctx)
	}

	scoreOf := make(map[string]float64, len(scores))
	for _, s := range scores {
		scoreOf[s.String("post_id")] = s.Float("score")
	}
	rows, err := f.deps.Remote.Read(ctx, CollectionPosts, remote.Filter{})
	if err != nil {
		return FeedPage{}, err
	}
	posts := make([]Post, 0, len(scores))
	for _, r := range rows {
		score, ok := scoreOf[r.ID()]
		if !ok {
			continue
		}
		p := PostFromRow(r)
		p.Score = score
		posts = append(posts, p)
	}
	if len(posts) == 0 {
		// Scores point at posts that no longer exist.
		if f.opts.Empty == EmptyShowNothing {
			return FeedPage{Posts: []Post{}, Source: SourceEmpty}, nil
		}
		return f.chronological(ctx)
	}
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].Score != posts[j].Score {
			return posts[i].Score > posts[j].Score
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return FeedPage{Posts: posts, Source: SourcePersonalized}, nil
}

func (f *Feed) chronological(ctx context.Context) (FeedPage, error) {
	rows, err := f.deps.Remote.Read(ctx, CollectionPosts, remote.Filter{
		OrderBy: remote.FieldCreatedAt,
		Desc:    true,
		Limit:   f.opts.Limit,
	})
	if err != nil {
		return FeedPage{}, err
	}
	posts := make([]Post, len(rows))
	for i, r := range rows {
		posts[i] = PostFromRow(r)
	}
	return FeedPage{Posts: posts, Source: SourceChronological}, nil
}
