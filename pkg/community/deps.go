package community

import (
	"log/slog"
	"time"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
	"github.com/mohallaa/mohallaa/pkg/auth"
	"github.com/mohallaa/mohallaa/pkg/optimistic"
	"github.com/mohallaa/mohallaa/pkg/remote"
	"github.com/mohallaa/mohallaa/pkg/toast"
)

// Collections used by the hooks.
const (
	CollectionPosts         = "posts"
	CollectionPostVotes     = "post_votes"
	CollectionBookmarks     = "bookmarks"
	CollectionCommunities   = "communities"
	CollectionMembers       = "community_members"
	CollectionNotifications = "notifications"
	CollectionMessages      = "messages"
	CollectionListings      = "listings"
	CollectionPostScores    = "post_scores"
)

// Deps are the collaborators shared by every hook.
type Deps struct {
	Remote   remote.Remote
	Auth     auth.Provider
	Notifier toast.Notifier
	Logger   *slog.Logger

	// Registry, when set, serializes actions on the same target across hooks.
	Registry *optimistic.Registry

	// Metrics, when set, records optimistic outcomes.
	Metrics *optimistic.Metrics

	// Timeout bounds every commit. Zero uses optimistic.DefaultTimeout.
	Timeout time.Duration

	// Policy decides what a second action on a busy target does.
	Policy optimistic.Policy

	// Options are applied after the fields above and win over them.
	Options []optimistic.Option
}

func (d Deps) notifier() toast.Notifier {
	if d.Notifier == nil {
		return toast.Discard
	}
	return d.Notifier
}

func (d Deps) logger(component string) *slog.Logger {
	l := d.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", component)
}

func (d Deps) coordinatorOptions(name string) []optimistic.Option {
	opts := []optimistic.Option{
		optimistic.WithName(name),
		optimistic.WithNotifier(d.notifier()),
		optimistic.WithLogger(d.logger(name)),
		optimistic.WithPolicy(d.Policy, 0),
	}
	if d.Registry != nil {
		opts = append(opts, optimistic.WithRegistry(d.Registry))
	}
	if d.Metrics != nil {
		opts = append(opts, optimistic.WithMetrics(d.Metrics))
	}
	if d.Timeout > 0 {
		opts = append(opts, optimistic.WithTimeout(d.Timeout))
	}
	return append(opts, d.Options...)
}

// currentUser returns the signed-in user or nil.
func (d Deps) currentUser() *auth.Principal {
	if d.Auth == nil {
		return nil
	}
	return d.Auth.CurrentUser()
}

// requireUser returns the current user, or shows an error notification and
// returns an auth-required error.
func (d Deps) requireUser() (auth.Principal, error) {
	p, err := auth.Require(d.Auth)
	if err != nil {
		d.notifier().Notify(toast.TypeError, "Sign in required", apperrors.UserMessage(err))
		return auth.Principal{}, err
	}
	return p, nil
}

// reject shows a validation failure and returns it.
func (d Deps) reject(err error) error {
	d.notifier().Notify(toast.TypeError, "", apperrors.UserMessage(err))
	return err
}

func key(parts ...string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ":" + p
	}
	return out
}
