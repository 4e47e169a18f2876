// Package toast is the notification surface used to tell users how their
// actions turned out.
//
// Toasts are fire-and-forget: showing one never blocks and never fails.
// Delivery goes through an Emitter, which is whatever transport reaches the
// user (a WebSocket hub, a log, a test recorder).
//
// # Usage
//
//	toast.Success(emitter, "Post bookmarked")
//	toast.WithTitle(emitter, toast.TypeError, "Vote", "Could not save your vote")
//
// Components that only need to report outcomes depend on Notifier:
//
//	n := toast.NewNotifier(emitter)
//	n.Notify(toast.TypeSuccess, "Joined", "You are now a member")
//
// # Event Format
//
// Emitters receive the event name "mohallaa:toast" and a map payload:
//
//	{ "level": "success|error|warning|info", "title": "...", "message": "..." }
//
// The title key is present only when a title was given.
package toast
