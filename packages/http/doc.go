// Package http is the transport boundary for reqx.
//
// It wraps the standard library's http package with:
//   - A Transport interface the runner dispatches through
//   - Configurable timeouts, redirects, proxy and TLS verification
//   - Materializing parsed request definitions into concrete requests
//   - Path lookups over status, headers and JSON bodies
//   - An opt-in retry decorator for transport failures
package http
