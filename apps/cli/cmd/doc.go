// Package cmd implements the reqx CLI commands using Cobra.
//
// Available commands:
//   - run: Execute the requests in .reqx files and report the results
//   - watch: Re-run on every change to requests, config or environments
//   - health: Poll one request until its assertions pass
//   - validate: Check file syntax without sending anything
//   - history: Show runs recorded with run --history
//   - init: Create a .reqx project with an example request
//   - version: Show reqx version information
//
// Commands exit with the codes defined in exitcodes.go; configuration
// problems found before any request is sent exit with ExitConfigError.
package cmd
