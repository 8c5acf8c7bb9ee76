// Package backup generates and consumes single-use MFA backup codes.
//
// Codes are drawn from a 32-symbol alphabet that omits the easily confused
// characters I, O, 0 and 1, so every symbol carries five bits of entropy.
// Persistence layers store only [Hash] values; [Set] holds them in memory
// with atomic single-use consumption.
package backup
