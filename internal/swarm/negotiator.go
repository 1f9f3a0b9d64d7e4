package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
)

// Negotiator produces session descriptions for peer connections.
// Descriptions are opaque JSON to the relay.
type Negotiator interface {
	// Offer creates an offer for peer.
	Offer(ctx context.Context, peer string) (json.RawMessage, error)
	// Answer accepts peer's offer and returns the answer.
	Answer(ctx context.Context, peer string, offer json.RawMessage) (json.RawMessage, error)
	// Accept applies peer's answer to the offer made earlier.
	Accept(peer string, answer json.RawMessage) error
	Close() error
}

// StaticNegotiator returns fixed placeholder descriptions.
type StaticNegotiator struct {
	mu      sync.Mutex
	offered map[string]bool
}

// NewStaticNegotiator creates a StaticNegotiator.
func NewStaticNegotiator() *StaticNegotiator {
	return &StaticNegotiator{offered: make(map[string]bool)}
}

// Offer implements Negotiator.
func (n *StaticNegotiator) Offer(_ context.Context, peer string) (json.RawMessage, error) {
	n.mu.Lock()
	n.offered[peer] = true
	n.mu.Unlock()
	return placeholder(webrtc.SDPTypeOffer)
}

// Answer implements Negotiator.
func (n *StaticNegotiator) Answer(context.Context, string, json.RawMessage) (json.RawMessage, error) {
	return placeholder(webrtc.SDPTypeAnswer)
}

// Accept implements Negotiator.
func (n *StaticNegotiator) Accept(peer string, _ json.RawMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.offered[peer] {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	delete(n.offered, peer)
	return nil
}

// Close implements Negotiator.
func (n *StaticNegotiator) Close() error { return nil }

func placeholder(t webrtc.SDPType) (json.RawMessage, error) {
	return json.Marshal(webrtc.SessionDescription{Type: t, SDP: "v=0"})
}

// iceGatherTimeout bounds vanilla ICE gathering per description.
const iceGatherTimeout = 10 * time.Second

// PionNegotiator creates real WebRTC peer connections with one data
// channel each and exchanges complete (vanilla ICE) descriptions.
type PionNegotiator struct {
	api    *webrtc.API
	config webrtc.Configuration

	mu    sync.Mutex
	peers map[string]*webrtc.PeerConnection

	connected atomic.Int64
}

// NewPionNegotiator creates a negotiator using iceServers (may be empty).
func NewPionNegotiator(iceServers []string) *PionNegotiator {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}

	return &PionNegotiator{
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
		config: cfg,
		peers:  make(map[string]*webrtc.PeerConnection),
	}
}

// Connected returns how many peer connections reached ICE connected.
func (n *PionNegotiator) Connected() int64 {
	return n.connected.Load()
}

// Offer implements Negotiator.
func (n *PionNegotiator) Offer(ctx context.Context, peer string) (json.RawMessage, error) {
	pc, err := n.newPeerConnection(peer)
	if err != nil {
		return nil, err
	}

	// Forces a data channel section into the offer.
	if _, err := pc.CreateDataChannel("mist", nil); err != nil {
		n.drop(peer)
		return nil, fmt.Errorf("create data channel: %w", err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		n.drop(peer)
		return nil, fmt.Errorf("create offer: %w", err)
	}
	return n.finishLocal(ctx, peer, pc, offer)
}

// Answer implements Negotiator.
func (n *PionNegotiator) Answer(ctx context.Context, peer string, offer json.RawMessage) (json.RawMessage, error) {
	var remote webrtc.SessionDescription
	if err := json.Unmarshal(offer, &remote); err != nil {
		return nil, fmt.Errorf("decode offer: %w", err)
	}

	pc, err := n.newPeerConnection(peer)
	if err != nil {
		return nil, err
	}
	if err := pc.SetRemoteDescription(remote); err != nil {
		n.drop(peer)
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		n.drop(peer)
		return nil, fmt.Errorf("create answer: %w", err)
	}
	return n.finishLocal(ctx, peer, pc, answer)
}

// Accept implements Negotiator.
func (n *PionNegotiator) Accept(peer string, answer json.RawMessage) error {
	var remote webrtc.SessionDescription
	if err := json.Unmarshal(answer, &remote); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}

	n.mu.Lock()
	pc, ok := n.peers[peer]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}

	if err := pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// Close closes every peer connection.
func (n *PionNegotiator) Close() error {
	n.mu.Lock()
	peers := n.peers
	n.peers = make(map[string]*webrtc.PeerConnection)
	n.mu.Unlock()

	var firstErr error
	for _, pc := range peers {
		if err := pc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// newPeerConnection replaces any existing connection for peer.
func (n *PionNegotiator) newPeerConnection(peer string) (*webrtc.PeerConnection, error) {
	pc, err := n.api.NewPeerConnection(n.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if state == webrtc.ICEConnectionStateConnected {
			n.connected.Add(1)
		}
	})

	n.mu.Lock()
	old := n.peers[peer]
	n.peers[peer] = pc
	n.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return pc, nil
}

// finishLocal sets desc locally, waits for ICE gathering, and returns the
// complete local description.
func (n *PionNegotiator) finishLocal(ctx context.Context, peer string, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) (json.RawMessage, error) {
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		n.drop(peer)
		return nil, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		n.drop(peer)
		return nil, fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		n.drop(peer)
		return nil, ctx.Err()
	}

	data, err := json.Marshal(pc.LocalDescription())
	if err != nil {
		return nil, fmt.Errorf("encode description: %w", err)
	}
	return data, nil
}

func (n *PionNegotiator) drop(peer string) {
	n.mu.Lock()
	pc := n.peers[peer]
	delete(n.peers, peer)
	n.mu.Unlock()
	if pc != nil {
		_ = pc.Close()
	}
}
