// Package errors provides the structured error taxonomy shared by Mohallaa.
//
// Every error a user can see falls into one of a few categories:
//
//   - auth: an action needs a signed-in user and none is present
//   - validation: a local precondition failed before any remote call
//   - remote: the backend rejected, failed or timed out
//   - partial: some sources of a multi-source read failed
//   - config: the process configuration is unusable
//
// # Error Codes
//
// Each error has a code (e.g. "M100") mapping to a short, user-safe message
// and a longer detail. Callers build errors from codes and wrap the cause:
//
//	err := errors.New(errors.CodeRemoteFailed).Wrap(cause)
//	toast.Error(emitter, err.Message)
//
// The wrapped cause is logged, never shown to users; Message is what the
// notification surface displays.
package errors
