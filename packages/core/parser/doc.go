// Package parser parses .reqx request documents.
//
// A document is a TOML file with the sections:
//   - [request]: method, url and optional name and timeout
//   - [headers] and [query]: ordered string pairs
//   - [body]: a structured JSON body (a top-level body string is sent raw)
//   - [assert]: path expressions mapped to expected values
//   - [post-response]: variables captured from the response
//
// Unknown sections and unknown keys in [request] are rejected so typos
// surface as parse errors instead of silently skipped checks.
package parser
