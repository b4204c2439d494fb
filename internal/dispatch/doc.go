// Package dispatch runs the scheduled price broadcast.
//
// One cycle snapshots the user list and processes every user independently
// on a bounded worker group: read symbols, fetch a batch of quotes, format
// one message, deliver it. A failure or panic for one user is logged and
// counted; it never stops the cycle. The per-user notification interval is
// stored state only; every cycle covers every user.
package dispatch
