// Package tam partitions a client's contact universe into pools and tracks
// how fast the available pool is being used up.
//
// Every contact lands in exactly one pool, first match wins:
//
//	won, in_sequence, permanently_suppressed, available_now,
//	in_cooldown, never_touched, in_cooldown (remainder)
//
// Snapshots are upserted per (date, client). Burn rate is the negated
// least-squares slope of available_now over the most recent snapshots,
// measured per week.
package tam
