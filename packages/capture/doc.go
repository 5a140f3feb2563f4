// Package capture extracts values from HTTP responses for use in subsequent requests.
//
// A [post-response] entry such as
//
//	token = "res.body.access_token"
//	count = "res.body.items | length"
//
// binds the value at the path (optionally piped through length, first or
// last) to a variable that later requests reference as {{token}}.
package capture
