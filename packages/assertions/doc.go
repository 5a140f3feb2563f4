// Package assertions evaluates [assert] rules against a response.
//
// Each rule pairs a path (status, headers.<name>, body...) with one of:
//   - an exact literal (numbers compare by value, no string/number coercion)
//   - a loose literal (~text), compared in stringified form
//   - a resolved template value
//   - a named predicate such as exists, is_array or is_uuid
//   - a JSON schema file (schema:./user.json)
//
// Rules are independent: all of them are evaluated and reported in order.
package assertions
