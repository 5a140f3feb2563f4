// Package templating substitutes {{identifier}} placeholders in request
// fields. Identifiers are letters, digits, underscores and dots, with an
// optional leading $ for dynamic values; anything that cannot be resolved is
// an *UnresolvedVariableError and the field is never sent half-substituted.
package templating
