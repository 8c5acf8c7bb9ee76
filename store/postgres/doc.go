// Package postgres implements goMFA.Store on PostgreSQL with pgx.
//
// Schema migrations are embedded and applied with goose through [Migrate].
// Single-use guarantees rest on conditional UPDATE statements: a backup
// code or channel code is consumed only by the statement that flips it,
// and the replay counter only moves forward.
package postgres
