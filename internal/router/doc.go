// Package router implements the signaling relay's message handling.
//
// Every inbound frame is a JSON object with a "type" field. The first frame
// on a connection must carry "id", which registers the connection under that
// identifier for its lifetime. After that:
//   - signaling_request: match the sender with a random waiting peer, reply
//     with signaling_response, then add the sender to the waiting pool
//   - evaluation: record "location" in the evaluation log
//   - anything else: forward the original bytes to the connection
//     registered as "target_id"
//
// Router state (sessions, waiting pool, PRNG) sits behind one mutex. Sends
// run outside it; a failed send evicts the peer.
package router
