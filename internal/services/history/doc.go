// Package history persists capture outcomes so operators can answer "when
// did camera X last produce a frame, and how often does it fail".
//
// Two drivers: a JSON Lines file for zero-dependency deployments, and
// SQLite for queryable history. Disabled entirely when no driver is set.
package history
