package community

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mohallaa/mohallaa/pkg/optimistic"
	"github.com/mohallaa/mohallaa/pkg/remote"
)

// Notification is the view model of one notification.
type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Message   string
	Link      string
	Read      bool
	CreatedAt time.Time
}

// NotificationFromRow converts a notifications row.
func NotificationFromRow(r remote.Row) Notification {
	return Notification{
		ID:        r.ID(),
		UserID:    r.String("user_id"),
		Type:      r.String("type"),
		Title:     r.String("title"),
		Message:   r.String("message"),
		Link:      r.String("link"),
		Read:      r.Bool("read"),
		CreatedAt: r.Time(remote.FieldCreatedAt),
	}
}

func notificationKey(n Notification) string { return n.ID }

// NotificationTarget is the target of actions on one notification.
func NotificationTarget(id string) string { return key("notification", id) }

// allNotificationsTarget is the target of MarkAllRead.
const allNotificationsTarget = "notifications:all"

// Notifications holds the current user's notifications and keeps them in
// sync with the change feed.
type Notifications struct {
	deps  Deps
	coord *optimistic.Coordinator[[]Notification]

	mu    sync.Mutex
	unsub remote.Unsubscribe
}

// NewNotifications creates the hook.
func NewNotifications(d Deps) *Notifications {
	return &Notifications{
		deps:  d,
		coord: optimistic.New(optimistic.NewState([]Notification{}), d.coordinatorOptions("notifications")...),
	}
}

// State returns the notifications cell.
func (n *Notifications) State() *optimistic.State[[]Notification] { return n.coord.State() }

// UnreadCount returns the number of unread notifications.
func (n *Notifications) UnreadCount() int {
	c := 0
	for _, it := range n.coord.State().Get() {
		if !it.Read {
			c++
		}
	}
	return c
}

// Load reads the newest notifications of the current user.
func (n *Notifications) Load(ctx context.Context) error {
	user, err := n.deps.requireUser()
	if err != nil {
		return err
	}
	rows, err := n.deps.Remote.Read(ctx, CollectionNotifications, remote.Filter{
		Eq:      map[string]any{"user_id": user.ID},
		OrderBy: remote.FieldCreatedAt,
		Desc:    true,
		Limit:   50,
	})
	if err != nil {
		return err
	}
	out := make([]Notification, len(rows))
	for i, r := range rows {
		out[i] = NotificationFromRow(r)
	}
	n.coord.State().Set(out)
	return nil
}

// Listen subscribes to the current user's notification changes until ctx
// is done or Close is called. Pushed rows are merged by ID; rows with a
// pending local action keep their local state.
func (n *Notifications) Listen(ctx context.Context) error {
	user, err := n.deps.requireUser()
	if err != nil {
		return err
	}
	unsub, err := n.deps.Remote.Subscribe(ctx, CollectionNotifications,
		remote.Filter{Eq: map[string]any{"user_id": user.ID}}, n.apply)
	if err != nil {
		return err
	}

	n.mu.Lock()
	prev := n.unsub
	n.unsub = unsub
	n.mu.Unlock()
	if prev != nil {
		prev()
	}
	return nil
}

// Close stops listening.
func (n *Notifications) Close() {
	n.mu.Lock()
	unsub := n.unsub
	n.unsub = nil
	n.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (n *Notifications) pending(id string) bool {
	return n.coord.Busy(NotificationTarget(id)) || n.coord.Busy(allNotificationsTarget)
}

// apply merges one pushed change into the state. Whether the row has a
// pending action is decided under the state lock, where no pending action
// can resolve.
func (n *Notifications) apply(c remote.Change) {
	if c.Kind == remote.ChangeDelete {
		n.coord.State().Update(func(cur []Notification) []Notification {
			if n.pending(c.Key) {
				return cur
			}
			return optimistic.RemoveItem(notificationKey, c.Key).Apply(cur)
		})
		return
	}

	incoming := NotificationFromRow(c.Row)
	n.coord.State().Update(func(cur []Notification) []Notification {
		merged := optimistic.MergeItems(notificationKey, cur, []Notification{incoming}, n.pending)
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].CreatedAt.After(merged[j].CreatedAt) })
		return merged
	})
}

func (n *Notifications) markRead(ctx context.Context, id string) error {
	_, err := n.deps.Remote.Write(ctx, CollectionNotifications, remote.Update(id, remote.Row{"read": true}))
	return err
}

// MarkRead marks one notification as read.
func (n *Notifications) MarkRead(ctx context.Context, id string) (optimistic.Outcome, error) {
	if _, err := n.deps.requireUser(); err != nil {
		return optimistic.OutcomeDropped, err
	}
	patch := optimistic.PatchItem(notificationKey, id,
		func(it Notification) Notification { it.Read = true; return it },
		func(cur, snap Notification) Notification { cur.Read = snap.Read; return cur },
	)
	a := patch.Action(NotificationTarget(id), func(ctx context.Context) (optimistic.Confirm[[]Notification], error) {
		return nil, n.markRead(ctx, id)
	})
	a.Messages.Error = optimistic.Message{Title: "Could not update notification"}
	return n.coord.Run(ctx, a)
}

// MarkAllRead marks every loaded notification as read.
func (n *Notifications) MarkAllRead(ctx context.Context) (optimistic.Outcome, error) {
	if _, err := n.deps.requireUser(); err != nil {
		return optimistic.OutcomeDropped, err
	}

	if n.UnreadCount() == 0 {
		return optimistic.OutcomeConfirmed, nil
	}

	var unread []string
	patch := markAllRead(&unread)
	a := optimistic.Action[[]Notification]{
		Target: allNotificationsTarget,
		Apply:  patch.Apply,
		Revert: patch.Revert,
		Commit: func(ctx context.Context) (optimistic.Confirm[[]Notification], error) {
			for _, id := range unread {
				if err := n.markRead(ctx, id); err != nil && !remote.IsNotFound(err) {
					return nil, err
				}
			}
			return nil, nil
		},
		Messages: optimistic.Messages{
			Success: optimistic.Message{Text: "All notifications marked as read"},
			Error:   optimistic.Message{Title: "Could not update notifications"},
		},
	}
	return n.coord.Run(ctx, a)
}

// markAllRead marks every unread item, recording their ids in marked as it
// applies. Reverting restores the read flag each marked item had in the
// snapshot.
func markAllRead(marked *[]string) optimistic.Patch[[]Notification] {
	return optimistic.Patch[[]Notification]{
		Apply: func(cur []Notification) []Notification {
			out := append([]Notification(nil), cur...)
			*marked = (*marked)[:0]
			for i := range out {
				if !out[i].Read {
					out[i].Read = true
					*marked = append(*marked, out[i].ID)
				}
			}
			return out
		},
		Revert: func(cur, snap []Notification) []Notification {
			was := make(map[string]bool, len(snap))
			for _, it := range snap {
				was[it.ID] = it.Read
			}
			out := append([]Notification(nil), cur...)
			for i := range out {
				if read, ok := was[out[i].ID]; ok {
					out[i].Read = read
				}
			}
			return out
		},
	}
}

// Delete removes a notification.
func (n *Notifications) Delete(ctx context.Context, id string) (optimistic.Outcome, error) {
	if _, err := n.deps.requireUser(); err != nil {
		return optimistic.OutcomeDropped, err
	}
	patch := optimistic.RemoveItem(notificationKey, id)
	a := patch.Action(NotificationTarget(id), func(ctx context.Context) (optimistic.Confirm[[]Notification], error) {
		err := n.deps.Remote.Remove(ctx, CollectionNotifications, id)
		if remote.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	})
	a.Messages.Error = optimistic.Message{Title: "Could not delete notification"}
	return n.coord.Run(ctx, a)
}
