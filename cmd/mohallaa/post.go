package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohallaa/mohallaa/internal/config"
	"github.com/mohallaa/mohallaa/pkg/auth"
	"github.com/mohallaa/mohallaa/pkg/community"
	"github.com/mohallaa/mohallaa/pkg/remote/client"
	"github.com/mohallaa/mohallaa/pkg/toast"
)

type postFlags struct {
	server    string
	user      string
	community string
}

func postCmd() *cobra.Command {
	var f postFlags

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Vote on and bookmark posts through a running server",
		Long: `Act on posts as a user, the same way the app does: the change is
shown at once and rolled back if the server refuses it.

The token is minted locally from auth.secret, so the config must match
the server's.`,
	}
	cmd.PersistentFlags().StringVar(&f.server, "server", "", "API base URL (default http://<server.addr>/v1)")
	cmd.PersistentFlags().StringVarP(&f.user, "user", "u", "", "User ID to act as (required)")
	cmd.PersistentFlags().StringVar(&f.community, "community", "", "Community the post belongs to")
	cmd.MarkPersistentFlagRequired("user")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "vote <post-id> up|down",
			Short: "Vote on a post; repeating the same vote removes it",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				var dir community.VoteType
				switch strings.ToLower(args[1]) {
				case "up":
					dir = community.VoteUp
				case "down":
					dir = community.VoteDown
				default:
					return fmt.Errorf("vote must be up or down, got %q", args[1])
				}
				return withPosts(cmd.Context(), f, args[0], func(ctx context.Context, p *community.Posts) error {
					_, err := p.Vote(ctx, args[0], dir)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "bookmark <post-id>",
			Short: "Save or unsave a post",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPosts(cmd.Context(), f, args[0], func(ctx context.Context, p *community.Posts) error {
					_, err := p.ToggleBookmark(ctx, args[0])
					return err
				})
			},
		},
	)
	return cmd
}

// withPosts loads the posts hook for f and runs fn against postID, then
// prints the post as the app would now show it.
func withPosts(ctx context.Context, f postFlags, postID string, fn func(context.Context, *community.Posts) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	principal := auth.Principal{ID: f.user}
	token, err := auth.NewVerifier(cfg.Auth.Secret, auth.WithIssuer(cfg.Auth.Issuer)).Issue(principal, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	c, err := client.New(serverURL(cfg, f.server), client.WithToken(token), client.WithLogger(logger))
	if err != nil {
		return err
	}

	session := auth.NewSession()
	session.Login(principal)
	posts := community.NewPosts(community.Deps{
		Remote:   c,
		Auth:     session,
		Notifier: cliNotifier(),
		Logger:   logger,
		Options:  cfg.OptimisticOptions(),
	}, nil)

	if err := posts.Load(ctx, f.community); err != nil {
		return err
	}
	if err := fn(ctx, posts); err != nil {
		return err
	}
	for _, p := range posts.State().Get() {
		if p.ID == postID {
			info("%s  ▲%d ▼%d  vote=%s saved=%t", p.Title, p.Upvotes, p.Downvotes, voteLabel(p.UserVote), p.Bookmarked)
		}
	}
	return nil
}

func serverURL(cfg *config.Config, flag string) string {
	if flag != "" {
		return flag
	}
	return "http://" + cfg.Server.Addr + "/v1"
}

func voteLabel(v community.VoteType) string {
	if v == community.VoteNone {
		return "none"
	}
	return string(v)
}

// cliNotifier prints toasts to the terminal.
func cliNotifier() toast.Notifier {
	return toast.NotifierFunc(func(level toast.Type, title, message string) {
		text := message
		if title != "" {
			text = title + ": " + message
		}
		switch level {
		case toast.TypeSuccess:
			success("%s", text)
		case toast.TypeError, toast.TypeWarning:
			warn("%s", text)
		default:
			info("%s", text)
		}
	})
}
