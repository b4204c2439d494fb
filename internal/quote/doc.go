// Package quote fetches market quotes and turns them into Snapshots.
//
// Source is the raw provider boundary (Yahoo via finance-go, or a static
// table). Provider wraps a Source with per-call timeouts, bounded retries
// with exponential backoff, batching and in-flight request coalescing.
package quote
