// Package realtime implements the WebSocket connection manager behind the
// notification channel: connection registry with per-user and global caps,
// sliding-window message rate limiting, inbound message validation and
// routing, event fan-out, and stale-connection reaping.
//
// The Registry is the single point of serialization; all network I/O happens
// on snapshot copies taken outside its lock, so one slow client never stalls
// delivery to the rest.
package realtime
