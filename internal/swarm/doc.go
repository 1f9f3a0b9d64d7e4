// Package swarm drives many simulated clients against a signaling relay.
//
// Each Agent connects, sends signaling_request, and reacts to what the relay
// delivers: a signaling_response makes it create an offer for the matched
// peer, an inbound offer is answered, an inbound answer completes the
// exchange. Agents also report a random-walk location every eval interval.
//
// Offers and answers come from a Negotiator. PionNegotiator produces real
// WebRTC session descriptions; StaticNegotiator sends placeholders so the
// relay can be loaded without ICE gathering.
package swarm
