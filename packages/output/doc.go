// Package output renders run reports.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output
//   - JSON: The full run report, including a latency summary
//   - JUnit: JUnit XML, one testcase per request
//   - TAP: Test Anything Protocol, one line per assertion
//
// ExitCode maps a report's aggregate classification to the process exit
// code used by the CLI.
package output
