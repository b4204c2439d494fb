// Package subscription owns per-user subscription state and the global
// default symbol list.
//
// Every mutation is flushed to the storage backend before the call returns.
// A flush failure is logged and returned, but the in-memory change stays.
package subscription
