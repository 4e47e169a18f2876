package community

import (
	"context"
	"time"

	"github.com/mohallaa/mohallaa/pkg/optimistic"
	"github.com/mohallaa/mohallaa/pkg/remote"
)

// VoteType is a user's vote on a post.
type VoteType string

const (
	VoteNone VoteType = ""
	VoteUp   VoteType = "upvote"
	VoteDown VoteType = "downvote"
)

// Post is the view model of one post.
type Post struct {
	ID          string
	CommunityID string
	AuthorID    string
	Title       string
	Content     string
	Upvotes     int
	Downvotes   int
	UserVote    VoteType
	Bookmarked  bool
	Score       float64
	CreatedAt   time.Time
}

// PostFromRow converts a posts row.
func PostFromRow(r remote.Row) Post {
	return Post{
		ID:          r.ID(),
		CommunityID: r.String("community_id"),
		AuthorID:    r.String("author_id"),
		Title:       r.String("title"),
		Content:     r.String("content"),
		Upvotes:     r.Int("upvotes"),
		Downvotes:   r.Int("downvotes"),
		CreatedAt:   r.Time(remote.FieldCreatedAt),
	}
}

func postKey(p Post) string { return p.ID }

// withVote returns p carrying vote, with counters adjusted from its current
// vote.
func withVote(p Post, vote VoteType) Post {
	switch p.UserVote {
	case VoteUp:
		p.Upvotes--
	case VoteDown:
		p.Downvotes--
	}
	switch vote {
	case VoteUp:
		p.Upvotes++
	case VoteDown:
		p.Downvotes++
	}
	p.UserVote = vote
	return p
}

// Posts holds a list of posts and the votes and bookmarks of the current
// user on them.
type Posts struct {
	deps  Deps
	coord *optimistic.Coordinator[[]Post]
}

// NewPosts creates the hook with an initial list.
func NewPosts(d Deps, initial []Post) *Posts {
	return &Posts{
		deps:  d,
		coord: optimistic.New(optimistic.NewState(initial), d.coordinatorOptions("posts")...),
	}
}

// State returns the posts cell.
func (p *Posts) State() *optimistic.State[[]Post] { return p.coord.State() }

// Busy reports whether an action on target is pending.
func (p *Posts) Busy(target string) bool { return p.coord.Busy(target) }

// VoteTarget is the target of vote actions on a post.
func VoteTarget(postID string) string { return key("vote", postID) }

// BookmarkTarget is the target of bookmark actions on a post.
func BookmarkTarget(postID string) string { return key("bookmark", postID) }

func (p *Posts) find(id string) (Post, bool) {
	for _, it := range p.coord.State().Get() {
		if it.ID == id {
			return it, true
		}
	}
	return Post{}, false
}

// Load reads posts (optionally of one community) with the current user's
// votes and bookmarks.
func (p *Posts) Load(ctx context.Context, communityID string) error {
	f := remote.Filter{OrderBy: remote.FieldCreatedAt, Desc: true, Limit: 50}
	if communityID != "" {
		f.Eq = map[string]any{"community_id": communityID}
	}
	rows, err := p.deps.Remote.Read(ctx, CollectionPosts, f)
	if err != nil {
		return err
	}
	posts := make([]Post, len(rows))
	for i, r := range rows {
		posts[i] = PostFromRow(r)
	}

	if user := p.deps.currentUser(); user != nil {
		mine := remote.Filter{Eq: map[string]any{"user_id": user.ID}}
		votes, err := p.deps.Remote.Read(ctx, CollectionPostVotes, mine)
		if err != nil {
			return err
		}
		marks, err := p.deps.Remote.Read(ctx, CollectionBookmarks, mine)
		if err != nil {
			return err
		}
		voteOf := make(map[string]VoteType, len(votes))
		for _, v := range votes {
			voteOf[v.String("post_id")] = VoteType(v.String("vote_type"))
		}
		marked := make(map[string]bool, len(marks))
		for _, b := range marks {
			marked[b.String("post_id")] = true
		}
		for i := range posts {
			posts[i].UserVote = voteOf[posts[i].ID]
			posts[i].Bookmarked = marked[posts[i].ID]
		}
	}

	p.coord.State().Set(posts)
	return nil
}

// Vote records the user's vote on a post. Voting the same direction again
// removes the vote; voting the other direction switches it.
func (p *Posts) Vote(ctx context.Context, postID string, dir VoteType) (optimistic.Outcome, error) {
	user, err := p.deps.requireUser()
	if err != nil {
		return optimistic.OutcomeDropped, err
	}
	cur, ok := p.find(postID)
	if !ok {
		return optimistic.OutcomeDropped, p.deps.reject(errUnknown("post", postID))
	}

	next := dir
	if cur.UserVote == dir {
		next = VoteNone
	}
	voteKey := key(user.ID, postID)

	patch := optimistic.PatchItem(postKey, postID,
		func(it Post) Post { return withVote(it, next) },
		func(cur, snap Post) Post {
			cur.Upvotes, cur.Downvotes, cur.UserVote = snap.Upvotes, snap.Downvotes, snap.UserVote
			return cur
		},
	)
	a := patch.Action(VoteTarget(postID), func(ctx context.Context) (optimistic.Confirm[[]Post], error) {
		if next == VoteNone {
			err := p.deps.Remote.Remove(ctx, CollectionPostVotes, voteKey)
			if remote.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		_, err := p.deps.Remote.Write(ctx, CollectionPostVotes, remote.Upsert(voteKey, remote.Row{
			"post_id":   postID,
			"user_id":   user.ID,
			"vote_type": string(next),
		}))
		return nil, err
	})
	a.Messages.Error = optimistic.Message{Title: "Vote failed"}
	return p.coord.Run(ctx, a)
}

// ToggleBookmark saves or unsaves a post for the current user.
func (p *Posts) ToggleBookmark(ctx context.Context, postID string) (optimistic.Outcome, error) {
	user, err := p.deps.requireUser()
	if err != nil {
		return optimistic.OutcomeDropped, err
	}
	cur, ok := p.find(postID)
	if !ok {
		return optimistic.OutcomeDropped, p.deps.reject(errUnknown("post", postID))
	}

	saved := !cur.Bookmarked
	markKey := key(user.ID, postID)

	patch := optimistic.PatchItem(postKey, postID,
		func(it Post) Post { it.Bookmarked = saved; return it },
		func(cur, snap Post) Post { cur.Bookmarked = snap.Bookmarked; return cur },
	)
	a := patch.Action(BookmarkTarget(postID), func(ctx context.Context) (optimistic.Confirm[[]Post], error) {
		if !saved {
			err := p.deps.Remote.Remove(ctx, CollectionBookmarks, markKey)
			if remote.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		_, err := p.deps.Remote.Write(ctx, CollectionBookmarks, remote.Upsert(markKey, remote.Row{
			"post_id": postID,
			"user_id": user.ID,
		}))
		return nil, err
	})
	a.Messages = optimistic.Messages{
		Success: optimistic.Message{Text: "Post saved"},
		Error:   optimistic.Message{Title: "Could not save post"},
	}
	if !saved {
		a.Messages.Success = optimistic.Message{Text: "Post removed from saved"}
	}
	return p.coord.Run(ctx, a)
}
