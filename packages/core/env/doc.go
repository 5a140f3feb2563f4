// Package env resolves the variables a run can reference.
//
// It provides functionality for:
//   - Loading named environments from .reqx/environments/<name>.toml
//   - Eager expansion of ${VAR} process environment references
//   - Dotenv files that supplement the process environment
//   - A layered Scope (captures, environment, process) used by templating
package env
