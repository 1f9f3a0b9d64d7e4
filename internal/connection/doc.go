// Package connection implements a WebSocket client for the signaling relay.
//
// The client dials with exponential backoff, answers the relay's heartbeat
// pings, reports a stale connection when pings stop arriving, and delivers
// every inbound frame with its local receive time.
package connection
