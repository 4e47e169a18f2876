// Package community contains the application hooks of Mohallaa: voting and
// bookmarking posts, joining communities, reading notifications, sending
// messages, creating marketplace listings and loading the personalized
// feed.
//
// Every mutating hook is an optimistic.Coordinator over a slice of view
// models. Hooks gate on the identity provider before doing anything: without
// a current user they return an auth-required error and show an error
// notification, and no remote call is made. Validation failures behave the
// same way. Remote failures roll the view back and show one error
// notification; the error is also returned so the caller can log it.
package community
