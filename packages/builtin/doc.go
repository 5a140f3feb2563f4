// Package builtin provides the dynamic variables available in request files.
//
// Available values:
//   - $uuid: a random UUID v4
//   - $timestamp / $timestampMs: current Unix time in seconds / milliseconds
//   - $date: current UTC date (2006-01-02)
//   - $datetime: current UTC time in RFC 3339
//   - $random: random integer in [0, 1000)
//   - $randomString: 16 random alphanumeric characters
//   - $randomEmail: a random address at a random .com domain
//
// They are referenced as {{$uuid}} and evaluated on every substitution.
package builtin
