package router

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"time"
)

// Frame kinds handled by the relay. Any other kind is forwarded verbatim.
const (
	KindSignalingRequest  = "signaling_request"
	KindSignalingResponse = "signaling_response"
	KindEvaluation        = "evaluation"
	KindError             = "error"
)

// RequestOffer tells a matched requester to create the offer.
const RequestOffer = "offer"

// ReasonUnknownTarget is sent back when a relay target is not connected.
const ReasonUnknownTarget = "unknown_target"

var (
	ErrMalformedFrame  = errors.New("router: malformed frame")
	ErrMissingID       = errors.New("router: first frame has no id")
	ErrMissingTarget   = errors.New("router: relay frame has no target_id")
	ErrMissingLocation = errors.New("router: evaluation frame has no location")
)

// Frame is the structural envelope of an inbound message. Fields other than
// these are ignored and preserved only in the raw bytes.
type Frame struct {
	Type     string          `json:"type"`
	ID       string          `json:"id,omitempty"`
	TargetID string          `json:"target_id,omitempty"`
	Location json.RawMessage `json:"location,omitempty"`
}

// SignalingResponse is sent to a requester that has been matched.
type SignalingResponse struct {
	Type     string `json:"type"`
	TargetID string `json:"target_id"`
	Request  string `json:"request"`
}

// ErrorFrame notifies a sender that its frame was not delivered.
type ErrorFrame struct {
	Type     string `json:"type"`
	Reason   string `json:"reason"`
	TargetID string `json:"target_id,omitempty"`
}

// Config holds router behavior switches.
type Config struct {
	// RemoveMatched removes the chosen target from the waiting pool.
	RemoveMatched bool
	// NotifyUnknownTarget replies with an ErrorFrame when a relay target is
	// not registered.
	NotifyUnknownTarget bool

	// Now and Rand default to time.Now and a randomly seeded PCG.
	Now  func() time.Time
	Rand *rand.Rand
}

// Stats contains runtime statistics.
type Stats struct {
	FramesReceived  int64 `json:"frames_received"`
	MalformedFrames int64 `json:"malformed_frames"`
	Registrations   int64 `json:"registrations"`
	Matches         int64 `json:"matches"`
	Relayed         int64 `json:"relayed"`
	UnknownTargets  int64 `json:"unknown_targets"`
	Evaluations     int64 `json:"evaluations"`
	Evictions       int64 `json:"evictions"`

	Sessions int `json:"sessions"`
	Waiting  int `json:"waiting"`
}
