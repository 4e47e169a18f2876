// Package auth provides the identity context every Mohallaa hook consults
// before acting on behalf of a user.
//
// The package is provider agnostic: hooks depend on Provider, which answers
// one question synchronously, "who is the current user, if anyone?".
//
//	user := provider.CurrentUser()
//	if user == nil {
//	    return errors.New(errors.CodeAuthRequired)
//	}
//
// Session is the usual Provider for a running client: Login stores the
// principal, Logout clears it. HTTP servers use Middleware, which verifies
// bearer tokens with a Verifier and stores the principal on the request
// context where FromContext finds it.
//
// # Tokens
//
// Verifier issues and checks HS256 JSON Web Tokens. The subject claim holds
// the user ID; name and email travel as private claims.
//
//	v := auth.NewVerifier(secret)
//	token, _ := v.Issue(auth.Principal{ID: "u1"}, time.Hour)
//	p, err := v.Verify(token)
package auth
