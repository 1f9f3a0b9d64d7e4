package swarm

import (
	"encoding/json"
	"errors"
	"time"
)

// Frame types sent and recognized by agents.
const (
	typeSignalingRequest  = "signaling_request"
	typeSignalingResponse = "signaling_response"
	typeOffer             = "offer"
	typeAnswer            = "answer"
	typeEvaluation        = "evaluation"
	typeError             = "error"
)

// ErrUnknownPeer is returned when an answer arrives for a peer that was
// never offered to.
var ErrUnknownPeer = errors.New("swarm: no pending offer for peer")

// Config configures a swarm run.
type Config struct {
	URL          string
	Clients      int
	IDPrefix     string        // Agent ids are IDPrefix + index
	EvalInterval time.Duration // 0 disables location reports
	StartSpacing time.Duration // Delay between agent starts
}

// Location is a position reported in evaluation frames.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// outFrame is every frame an agent sends. Each carries the agent's id.
type outFrame struct {
	Type     string          `json:"type"`
	ID       string          `json:"id"`
	TargetID string          `json:"target_id,omitempty"`
	SDP      json.RawMessage `json:"sdp,omitempty"`
	Location *Location       `json:"location,omitempty"`
}

// inFrame is the subset of relayed frames an agent reads.
type inFrame struct {
	Type     string          `json:"type"`
	ID       string          `json:"id"`
	TargetID string          `json:"target_id"`
	Request  string          `json:"request"`
	Reason   string          `json:"reason"`
	SDP      json.RawMessage `json:"sdp"`
}

// Stats counts one agent's signaling activity.
type Stats struct {
	Matches     int64
	OffersSent  int64
	AnswersSent int64
	Completed   int64 // Answers applied to our own offers
	Connected   int64 // Peer connections that reached ICE connected
	Evaluations int64
	Errors      int64
}

// add accumulates o into s.
func (s *Stats) add(o Stats) {
	s.Matches += o.Matches
	s.OffersSent += o.OffersSent
	s.AnswersSent += o.AnswersSent
	s.Completed += o.Completed
	s.Connected += o.Connected
	s.Evaluations += o.Evaluations
	s.Errors += o.Errors
}
