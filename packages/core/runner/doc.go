// Package runner executes a collection of parsed request documents.
//
// A run moves through loading, running, reporting and done. Each request
// moves through templating, dispatching, asserting and capturing; a failure
// while templating or dispatching ends the request as an execution error
// without asserting or capturing. Values captured by one request are
// visible to every later request in the same run and to nothing else.
//
// Requests run in declaration order by default. WithParallel dispatches
// them on a bounded worker pool, holding back any request that reads a
// variable captured by an earlier one until that capture is written.
//
// HealthCheck polls a single request until it passes or a deadline expires.
package runner
