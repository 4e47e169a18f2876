// Package optimistic makes user actions appear to succeed instantly while
// the remote side effect is confirmed in the background.
//
// A Coordinator owns one piece of local view state (a State cell) and runs
// Actions against it in three phases:
//
//  1. Apply transforms the local state synchronously and a snapshot of the
//     pre-apply state is captured.
//  2. Commit performs the remote call.
//  3. On success the optional Confirm folds authoritative data into the
//     state; on failure Revert restores the state from the snapshot.
//
// Every applied action ends in exactly one Outcome: confirmed, rolled back,
// or superseded by a newer action for the same target.
//
// # Targets
//
// Actions name the logical entity they mutate ("vote:post-42"). A Registry
// maps each target to the token of its pending action, and the Coordinator's
// Policy decides what a second action for a busy target does:
//
//   - DropWhileBusy (default): the second action is rejected untouched
//   - Supersede: the pending commit is cancelled and resolves as superseded;
//     if the newer action then fails, it rolls back to the state before the
//     displaced one
//   - Queue: the second action waits its turn, then applies and commits
//
// # Example
//
//	posts := optimistic.NewState(initialPosts)
//	coord := optimistic.New(posts,
//	    optimistic.WithNotifier(toast.NewNotifier(emitter)),
//	    optimistic.WithTimeout(10*time.Second),
//	)
//
//	patch := optimistic.UpdateItem(postKey, id, func(p Post) Post {
//	    p.Bookmarked = !p.Bookmarked
//	    return p
//	})
//	outcome, err := coord.Run(ctx, patch.Action("bookmark:"+id, func(ctx context.Context) (optimistic.Confirm[[]Post], error) {
//	    return nil, api.Bookmark(ctx, id)
//	}))
//
// Apply and Revert must be pure: they may only read their arguments and
// must not modify them in place. The helpers in this package copy slices
// before changing them.
package optimistic
