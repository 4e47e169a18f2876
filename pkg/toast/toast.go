package toast

import (
	"log/slog"
	"sync"
)

// EventName is the event name emitted for toasts.
const EventName = "mohallaa:toast"

// Type represents the toast notification type.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
)

// Emitter delivers a named event to the user. Implementations must not block.
type Emitter interface {
	Emit(name string, data any)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(name string, data any)

// Emit calls f(name, data).
func (f EmitterFunc) Emit(name string, data any) { f(name, data) }

// Show displays a toast notification to the user.
func Show(e Emitter, level Type, message string) {
	if e == nil {
		return
	}
	e.Emit(EventName, map[string]any{
		"level":   string(level),
		"message": message,
	})
}

// Success shows a success toast.
//
//	toast.Success(e, "Changes saved!")
func Success(e Emitter, message string) {
	Show(e, TypeSuccess, message)
}

// Error shows an error toast.
//
//	toast.Error(e, "Failed to delete item")
func Error(e Emitter, message string) {
	Show(e, TypeError, message)
}

// Warning shows a warning toast.
func Warning(e Emitter, message string) {
	Show(e, TypeWarning, message)
}

// Info shows an info toast.
func Info(e Emitter, message string) {
	Show(e, TypeInfo, message)
}

// WithTitle shows a toast with a title and message.
//
//	toast.WithTitle(e, toast.TypeSuccess, "Settings", "Your changes have been saved.")
func WithTitle(e Emitter, level Type, title, message string) {
	if e == nil {
		return
	}
	data := map[string]any{
		"level":   string(level),
		"message": message,
	}
	if title != "" {
		data["title"] = title
	}
	e.Emit(EventName, data)
}

// Custom shows a toast with custom data.
func Custom(e Emitter, data map[string]any) {
	if e == nil {
		return
	}
	e.Emit(EventName, data)
}

// Notifier reports the outcome of a user action.
type Notifier interface {
	Notify(level Type, title, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Type, title, message string)

// Notify calls f(level, title, message).
func (f NotifierFunc) Notify(level Type, title, message string) { f(level, title, message) }

// NewNotifier returns a Notifier that emits toasts through e.
func NewNotifier(e Emitter) Notifier {
	return NotifierFunc(func(level Type, title, message string) {
		WithTitle(e, level, title, message)
	})
}

// Discard is a Notifier that drops every toast.
var Discard Notifier = NotifierFunc(func(Type, string, string) {})

// LogEmitter returns an Emitter that writes toasts to logger. Useful for
// headless processes and the CLI.
func LogEmitter(logger *slog.Logger) Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return EmitterFunc(func(name string, data any) {
		logger.Info("toast", "event", name, "data", data)
	})
}

// Toast is a recorded notification.
type Toast struct {
	Level   Type
	Title   string
	Message string
}

// Recorder is a Notifier that keeps every toast it receives.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

// Notify records the toast.
func (r *Recorder) Notify(level Type, title, message string) {
	r.mu.Lock()
	r.toasts = append(r.toasts, Toast{Level: level, Title: title, Message: message})
	r.mu.Unlock()
}

// All returns a copy of the recorded toasts in arrival order.
func (r *Recorder) All() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Toast, len(r.toasts))
	copy(out, r.toasts)
	return out
}

// Len returns the number of recorded toasts.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.toasts)
}

// Count returns the number of recorded toasts with the given level.
func (r *Recorder) Count(level Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.toasts {
		if t.Level == level {
			n++
		}
	}
	return n
}

// Reset clears the recorded toasts.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.toasts = nil
	r.mu.Unlock()
}
