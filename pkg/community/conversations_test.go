package community

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
	"github.com/mohallaa/mohallaa/pkg/optimistic"
	"github.com/mohallaa/mohallaa/pkg/remote"
	"github.com/mohallaa/mohallaa/pkg/toast"
)

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name string
		text string
		code string
	}{
		{"ok", "hello", ""},
		{"empty", "", apperrors.CodeEmptyMessage},
		{"blank", "  \n\t", apperrors.CodeEmptyMessage},
		{"limit", strings.Repeat("न", MaxMessageLength), ""},
		{"too long", strings.Repeat("a", MaxMessageLength+1), apperrors.CodeMessageTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.text)
			if tt.code == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var e *apperrors.Error
			if !errors.As(err, &e) || e.Code != tt.code {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestSendInvalidMessageMakesNoRemoteCall(t *testing.T) {
	f := newFixture(t)
	conv := NewConversation(f.deps, "conv1")

	outcome, err := conv.Send(context.Background(), "   ")
	if outcome != optimistic.OutcomeDropped || !apperrors.IsCategory(err, apperrors.CategoryValidation) {
		t.Fatalf("Send = %v, %v", outcome, err)
	}
	if f.remote.calls() != 0 {
		t.Error("no remote call expected")
	}
	if len(conv.State().Get()) != 0 {
		t.Error("nothing should be inserted")
	}
	if f.toasts.Count(toast.TypeError) != 1 {
		t.Errorf("toasts = %+v", f.toasts.All())
	}
}

func TestSendReplacesTemporaryMessage(t *testing.T) {
	f := newFixture(t)
	conv := NewConversation(f.deps, "conv1")
	ctx := context.Background()

	f.remote.hold()
	done := make(chan optimistic.Outcome, 1)
	go func() {
		o, _ := conv.Send(ctx, " hi there ")
		done <- o
	}()
	waitFor(t, func() bool { return len(conv.State().Get()) == 1 })
	draft := conv.State().Get()[0]
	if !draft.Pending() || draft.Content != "hi there" || draft.SenderID != "u1" {
		t.Fatalf("draft = %+v", draft)
	}

	f.remote.release()
	if o := <-done; o != optimistic.OutcomeConfirmed {
		t.Fatalf("Send = %v", o)
	}
	got := conv.State().Get()
	if len(got) != 1 || got[0].Pending() || got[0].Content != "hi there" {
		t.Fatalf("messages = %+v", got)
	}
	rows, _ := f.mem.Read(ctx, CollectionMessages, remote.Filter{})
	if len(rows) != 1 || rows[0].ID() != got[0].ID {
		t.Errorf("stored = %v", rows)
	}
}

func TestSendFailureRemovesDraft(t *testing.T) {
	f := newFixture(t)
	f.mem.SetFault(failWrites(CollectionMessages))
	conv := NewConversation(f.deps, "conv1")

	if o, _ := conv.Send(context.Background(), "hello"); o != optimistic.OutcomeRolledBack {
		t.Fatalf("Send = %v", o)
	}
	if len(conv.State().Get()) != 0 {
		t.Errorf("draft left behind: %+v", conv.State().Get())
	}
	all := f.toasts.All()
	if len(all) != 1 || all[0].Title != "Message not sent" {
		t.Errorf("toasts = %+v", all)
	}
}

func TestConversationListenDoesNotDuplicateOwnMessage(t *testing.T) {
	f := newFixture(t)
	conv := NewConversation(f.deps, "conv1")
	ctx := context.Background()
	if err := conv.Listen(ctx); err != nil {
		t.Fatal(err)
	}
	defer conv.Close()

	if _, err := conv.Send(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mem.Write(ctx, CollectionMessages, remote.Insert(remote.Row{
		"conversation_id": "conv1", "sender_id": "u2", "content": "reply",
	})); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mem.Write(ctx, CollectionMessages, remote.Insert(remote.Row{
		"conversation_id": "other", "sender_id": "u3", "content": "elsewhere",
	})); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(conv.State().Get()) == 2 })

	got := conv.State().Get()
	if got[0].Content != "first" || got[1].Content != "reply" {
		t.Errorf("messages = %+v", got)
	}
	for _, m := range got {
		if m.Pending() {
			t.Errorf("pending message left: %+v", m)
		}
	}
}
