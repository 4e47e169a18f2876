package community

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
	"github.com/mohallaa/mohallaa/pkg/optimistic"
	"github.com/mohallaa/mohallaa/pkg/remote"
)

// MaxMessageLength is the longest message, in runes, Send accepts.
const MaxMessageLength = 2000

// tempPrefix marks IDs of messages not yet stored.
const tempPrefix = "temp-"

// Message is the view model of one chat message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
}

// Pending reports whether m has not been stored yet.
func (m Message) Pending() bool { return strings.HasPrefix(m.ID, tempPrefix) }

// MessageFromRow converts a messages row.
func MessageFromRow(r remote.Row) Message {
	return Message{
		ID:             r.ID(),
		ConversationID: r.String("conversation_id"),
		SenderID:       r.String("sender_id"),
		Content:        r.String("content"),
		CreatedAt:      r.Time(remote.FieldCreatedAt),
	}
}

func messageKey(m Message) string { return m.ID }

// ValidateMessage checks text before it is sent.
func ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperrors.New(apperrors.CodeEmptyMessage)
	}
	if n := utf8.RuneCountInString(text); n > MaxMessageLength {
		return apperrors.New(apperrors.CodeMessageTooLong)
	}
	return nil
}

// Conversation holds the messages of one conversation, oldest first.
type Conversation struct {
	id    string
	deps  Deps
	coord *optimistic.Coordinator[[]Message]
	now   func() time.Time

	mu    sync.Mutex
	unsub remote.Unsubscribe
}

// NewConversation creates the hook for conversationID. Sends run on
// separate targets so several messages may be in flight at once.
func NewConversation(d Deps, conversationID string) *Conversation {
	return &Conversation{
		id:    conversationID,
		deps:  d,
		coord: optimistic.New(optimistic.NewState([]Message{}), d.coordinatorOptions("conversation")...),
		now:   time.Now,
	}
}

// State returns the messages cell.
func (c *Conversation) State() *optimistic.State[[]Message] { return c.coord.State() }

func (c *Conversation) filter() remote.Filter {
	return remote.Filter{Eq: map[string]any{"conversation_id": c.id}}
}

// Load reads the conversation's messages.
func (c *Conversation) Load(ctx context.Context) error {
	if _, err := c.deps.requireUser(); err != nil {
		return err
	}
	f := c.filter()
	f.OrderBy = remote.FieldCreatedAt
	rows, err := c.deps.Remote.Read(ctx, CollectionMessages, f)
	if err != nil {
		return err
	}
	out := make([]Message, len(rows))
	for i, r := range rows {
		out[i] = MessageFromRow(r)
	}
	c.coord.State().Set(out)
	return nil
}

// Listen appends messages pushed by other participants.
func (c *Conversation) Listen(ctx context.Context) error {
	if _, err := c.deps.requireUser(); err != nil {
		return err
	}
	unsub, err := c.deps.Remote.Subscribe(ctx, CollectionMessages, c.filter(), func(ch remote.Change) {
		if ch.Kind == remote.ChangeDelete {
			c.coord.State().Update(func(cur []Message) []Message {
				return optimistic.RemoveItem(messageKey, ch.Key).Apply(cur)
			})
			return
		}
		m := MessageFromRow(ch.Row)
		c.coord.State().Update(func(cur []Message) []Message {
			for i, it := range cur {
				if it.ID == m.ID {
					out := append([]Message(nil), cur...)
					out[i] = m
					return out
				}
			}
			return append(append([]Message(nil), cur...), m)
		})
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	prev := c.unsub
	c.unsub = unsub
	c.mu.Unlock()
	if prev != nil {
		prev()
	}
	return nil
}

// Close stops listening.
func (c *Conversation) Close() {
	c.mu.Lock()
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Send posts text to the conversation. The message shows immediately under
// a temporary ID and is swapped for the stored row once the write succeeds.
func (c *Conversation) Send(ctx context.Context, text string) (optimistic.Outcome, error) {
	user, err := c.deps.requireUser()
	if err != nil {
		return optimistic.OutcomeDropped, err
	}
	if err := ValidateMessage(text); err != nil {
		return optimistic.OutcomeDropped, c.deps.reject(err)
	}
	text = strings.TrimSpace(text)

	tempID := tempPrefix + uuid.NewString()
	draft := Message{
		ID:             tempID,
		ConversationID: c.id,
		SenderID:       user.ID,
		Content:        text,
		CreatedAt:      c.now(),
	}

	patch := optimistic.InsertItem(messageKey, draft, optimistic.Back)
	a := patch.Action(key("message", tempID), func(ctx context.Context) (optimistic.Confirm[[]Message], error) {
		row, err := c.deps.Remote.Write(ctx, CollectionMessages, remote.Insert(remote.Row{
			"conversation_id": c.id,
			"sender_id":       user.ID,
			"content":         text,
		}))
		if err != nil {
			return nil, err
		}
		return optimistic.ReplaceKey(messageKey, tempID, MessageFromRow(row)), nil
	})
	a.Messages.Error = optimistic.Message{Title: "Message not sent"}
	return c.coord.Run(ctx, a)
}
