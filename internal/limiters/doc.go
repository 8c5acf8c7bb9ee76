// Package limiters holds the Redis-backed counters that throttle MFA
// verification and channel code issuance.
//
// # Limiters
//
//   - [AttemptLimiter] counts failed verifications per user and method, and
//     optionally per client IP.
//   - [IssueLimiter] caps how many SMS or email codes a user may request in
//     one window.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import goMFA or any sibling internal package.
//   - Decide consequences. The engine maps limiter errors to ErrRateLimited.
package limiters
