package community

import (
	"context"
	"time"

	"github.com/mohallaa/mohallaa/pkg/optimistic"
	"github.com/mohallaa/mohallaa/pkg/remote"
)

// Community is the view model of one community.
type Community struct {
	ID          string
	Name        string
	Description string
	MemberCount int
	Joined      bool
	CreatedAt   time.Time
}

// CommunityFromRow converts a communities row.
func CommunityFromRow(r remote.Row) Community {
	return Community{
		ID:          r.ID(),
		Name:        r.String("name"),
		Description: r.String("description"),
		MemberCount: r.Int("member_count"),
		CreatedAt:   r.Time(remote.FieldCreatedAt),
	}
}

func communityKey(c Community) string { return c.ID }

// MembershipTarget is the target of join and leave actions.
func MembershipTarget(communityID string) string { return key("membership", communityID) }

// Memberships lists communities and the current user's membership in each.
type Memberships struct {
	deps  Deps
	coord *optimistic.Coordinator[[]Community]
}

// NewMemberships creates the hook with an initial list.
func NewMemberships(d Deps, initial []Community) *Memberships {
	return &Memberships{
		deps:  d,
		coord: optimistic.New(optimistic.NewState(initial), d.coordinatorOptions("memberships")...),
	}
}

// State returns the communities cell.
func (m *Memberships) State() *optimistic.State[[]Community] { return m.coord.State() }

// Busy reports whether a join or leave of communityID is pending.
func (m *Memberships) Busy(communityID string) bool {
	return m.coord.Busy(MembershipTarget(communityID))
}

// Load reads communities and marks the ones the current user belongs to.
func (m *Memberships) Load(ctx context.Context) error {
	rows, err := m.deps.Remote.Read(ctx, CollectionCommunities, remote.Filter{OrderBy: "name"})
	if err != nil {
		return err
	}
	out := make([]Community, len(rows))
	for i, r := range rows {
		out[i] = CommunityFromRow(r)
	}

	if user := m.deps.currentUser(); user != nil {
		members, err := m.deps.Remote.Read(ctx, CollectionMembers, remote.Filter{Eq: map[string]any{"user_id": user.ID}})
		if err != nil {
			return err
		}
		joined := make(map[string]bool, len(members))
		for _, r := range members {
			joined[r.String("community_id")] = true
		}
		for i := range out {
			out[i].Joined = joined[out[i].ID]
		}
	}

	m.coord.State().Set(out)
	return nil
}

// Join adds the current user to a community.
func (m *Memberships) Join(ctx context.Context, communityID string) (optimistic.Outcome, error) {
	return m.set(ctx, communityID, true)
}

// Leave removes the current user from a community.
func (m *Memberships) Leave(ctx context.Context, communityID string) (optimistic.Outcome, error) {
	return m.set(ctx, communityID, false)
}

func (m *Memberships) set(ctx context.Context, communityID string, join bool) (optimistic.Outcome, error) {
	user, err := m.deps.requireUser()
	if err != nil {
		return optimistic.OutcomeDropped, err
	}
	memberKey := key(user.ID, communityID)

	patch := optimistic.PatchItem(communityKey, communityID,
		func(c Community) Community {
			if c.Joined == join {
				return c
			}
			c.Joined = join
			if join {
				c.MemberCount++
			} else if c.MemberCount > 0 {
				c.MemberCount--
			}
			return c
		},
		func(cur, snap Community) Community {
			cur.Joined, cur.MemberCount = snap.Joined, snap.MemberCount
			return cur
		},
	)

	a := patch.Action(MembershipTarget(communityID), func(ctx context.Context) (optimistic.Confirm[[]Community], error) {
		if !join {
			err := m.deps.Remote.Remove(ctx, CollectionMembers, memberKey)
			if remote.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		_, err := m.deps.Remote.Write(ctx, CollectionMembers, remote.Upsert(memberKey, remote.Row{
			"community_id": communityID,
			"user_id":      user.ID,
			"role":         "member",
		}))
		return nil, err
	})
	if join {
		a.Messages = optimistic.Messages{
			Success: optimistic.Message{Text: "You joined the community"},
			Error:   optimistic.Message{Title: "Could not join"},
		}
	} else {
		a.Messages = optimistic.Messages{
			Success: optimistic.Message{Text: "You left the community"},
			Error:   optimistic.Message{Title: "Could not leave"},
		}
	}
	return m.coord.Run(ctx, a)
}
