// Package notifier delivers outbound user messages.
//
// Deliver sends one text to one user (chat id = user id) through the chat
// adapter. Sends share a token bucket so a dispatch cycle cannot exceed the
// platform's flood limits. Failed sends are reported, not retried.
//
// The service keeps a small in-memory history of recent deliveries and
// publishes notifier.sent / notifier.failed events on the bus.
package notifier
