// Package server accepts WebSocket connections and feeds their frames to
// the router.
//
// Each connection gets a uuid connection id, a read loop, and a heartbeat
// that pings every ping_interval. The read deadline is pushed out on every
// pong and frame; a peer silent for pong_timeout is dropped. Any read error
// or rejected frame ends only that connection, after which the router
// forgets its registration and pool entry.
package server
