// Package notifier fans a rendered message out to many recipients.
//
// # Delivery
//
// Sends run concurrently under a worker limit and a shared token bucket.
// Each send has its own timeout. A failure is recorded only for the
// recipient it happened to; nothing is retried here. The caller decides
// what to do with the per-recipient Report (the scheduler leaves the flag
// unset so the next sweep tries again while the window is open).
//
// # Rendering
//
// The *Message helpers build Telegram HTML from a match snapshot. All
// upstream text is escaped.
package notifier
