package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rickgao/mist-signaling/internal/metrics"
	"github.com/rickgao/mist-signaling/internal/session"
)

// Peer is one client connection as seen by the router.
type Peer interface {
	// ConnID identifies the transport connection, not the client.
	ConnID() string
	Send(data []byte) error
	Close() error
}

// Recorder receives a copy of every frame in and out.
type Recorder interface {
	Received(conn, client string, frame []byte)
	Sent(conn, client string, frame []byte)
}

// EvaluationLog stores location reports.
type EvaluationLog interface {
	Record(at time.Time, id string, location json.RawMessage)
}

// Router dispatches inbound frames for all connections.
type Router struct {
	cfg    Config
	logger *slog.Logger
	evals  EvaluationLog
	frames Recorder
	now    func() time.Time

	mu       sync.Mutex
	sessions *session.Registry[Peer]
	pool     *session.Pool
	rng      *rand.Rand
	stats    Stats
}

// New creates a Router. evals and frames may be nil.
func New(cfg Config, evals EvaluationLog, frames Recorder, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Router{
		cfg:      cfg,
		logger:   logger,
		evals:    evals,
		frames:   frames,
		now:      now,
		sessions: session.NewRegistry[Peer](),
		pool:     session.NewPool(),
		rng:      rng,
	}
}

// Dispatch handles one inbound frame from peer. A non-nil error means the
// connection should be closed.
func (r *Router) Dispatch(peer Peer, data []byte) error {
	r.mu.Lock()
	r.stats.FramesReceived++
	r.mu.Unlock()

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
		r.recordMalformed(peer, data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	id, err := r.identify(peer, f)
	if err != nil {
		r.recordMalformed(peer, data)
		return err
	}
	if r.frames != nil {
		r.frames.Received(peer.ConnID(), id, data)
	}

	switch f.Type {
	case KindSignalingRequest:
		metrics.FramesReceived.WithLabelValues(KindSignalingRequest).Inc()
		return r.handleRequest(peer, id)

	case KindEvaluation:
		metrics.FramesReceived.WithLabelValues(KindEvaluation).Inc()
		return r.handleEvaluation(id, f)

	default:
		metrics.FramesReceived.WithLabelValues("relay").Inc()
		return r.handleRelay(peer, id, f, data)
	}
}

// identify returns the registered identifier for peer, registering it from
// the frame when this is its first one.
func (r *Router) identify(peer Peer, f Frame) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.sessions.IdentifierOf(peer); ok {
		if f.ID != "" && f.ID != id {
			r.logger.Warn("ignoring id change on registered connection",
				"client", id,
				"frame_id", f.ID,
				"conn", peer.ConnID(),
			)
		}
		return id, nil
	}
	if f.ID == "" {
		return "", ErrMissingID
	}

	if prev, ok := r.sessions.Lookup(f.ID); ok {
		r.logger.Warn("identifier reused by new connection",
			"client", f.ID,
			"previous_conn", prev.ConnID(),
			"conn", peer.ConnID(),
		)
	}
	r.sessions.Register(peer, f.ID)
	r.stats.Registrations++
	metrics.Sessions.Set(float64(r.sessions.Len()))

	r.logger.Info("client registered", "client", f.ID, "conn", peer.ConnID())
	return f.ID, nil
}

func (r *Router) handleRequest(peer Peer, id string) error {
	r.mu.Lock()
	// Evicted or superseded since identify released the lock.
	if !r.sessions.Owns(peer, id) {
		r.mu.Unlock()
		r.logger.Debug("dropping request from stale connection", "client", id, "conn", peer.ConnID())
		return nil
	}
	target, matched := r.pool.PickRandom(r.rng, id)
	if matched {
		r.stats.Matches++
		if r.cfg.RemoveMatched {
			r.pool.Remove(target)
		}
	}
	r.pool.Add(id)
	metrics.WaitingPool.Set(float64(r.pool.Len()))
	r.mu.Unlock()

	if !matched {
		r.logger.Debug("no peer available", "client", id)
		return nil
	}

	metrics.Matches.Inc()
	r.logger.Debug("matched", "client", id, "target", target)

	resp, err := json.Marshal(SignalingResponse{
		Type:     KindSignalingResponse,
		TargetID: target,
		Request:  RequestOffer,
	})
	if err != nil {
		return fmt.Errorf("marshal signaling response: %w", err)
	}
	return r.send(peer, id, resp)
}

func (r *Router) handleEvaluation(id string, f Frame) error {
	if len(f.Location) == 0 || string(f.Location) == "null" {
		r.countMalformed()
		return ErrMissingLocation
	}

	if r.evals != nil {
		r.evals.Record(r.now(), id, f.Location)
	}

	r.mu.Lock()
	r.stats.Evaluations++
	r.mu.Unlock()
	return nil
}

func (r *Router) handleRelay(peer Peer, id string, f Frame, data []byte) error {
	if f.TargetID == "" {
		r.countMalformed()
		return ErrMissingTarget
	}

	r.mu.Lock()
	target, ok := r.sessions.Lookup(f.TargetID)
	if !ok {
		r.stats.UnknownTargets++
	}
	r.mu.Unlock()

	if !ok {
		metrics.FramesDropped.WithLabelValues(ReasonUnknownTarget).Inc()
		r.logger.Warn("relay target not connected",
			"client", id,
			"target", f.TargetID,
			"type", f.Type,
		)
		if r.cfg.NotifyUnknownTarget {
			return r.notifyUnknownTarget(peer, id, f.TargetID)
		}
		return nil
	}

	// A failed send evicts the target; the sender stays connected.
	if err := r.send(target, f.TargetID, data); err != nil {
		return nil
	}

	r.mu.Lock()
	r.stats.Relayed++
	r.mu.Unlock()
	metrics.FramesRelayed.Inc()

	r.logger.Debug("relayed",
		"client", id,
		"target", f.TargetID,
		"type", f.Type,
	)
	return nil
}

func (r *Router) notifyUnknownTarget(peer Peer, id, targetID string) error {
	msg, err := json.Marshal(ErrorFrame{
		Type:     KindError,
		Reason:   ReasonUnknownTarget,
		TargetID: targetID,
	})
	if err != nil {
		return fmt.Errorf("marshal error frame: %w", err)
	}
	return r.send(peer, id, msg)
}

// send writes data to peer and evicts it on failure.
func (r *Router) send(peer Peer, id string, data []byte) error {
	if err := peer.Send(data); err != nil {
		metrics.FramesDropped.WithLabelValues("send_failed").Inc()
		r.logger.Warn("send failed, evicting peer",
			"client", id,
			"conn", peer.ConnID(),
			"error", err,
		)
		r.evict(peer)
		return err
	}
	if r.frames != nil {
		r.frames.Sent(peer.ConnID(), id, data)
	}
	return nil
}

func (r *Router) evict(peer Peer) {
	if _, ok := r.Disconnect(peer); ok {
		r.mu.Lock()
		r.stats.Evictions++
		r.mu.Unlock()
		metrics.Evictions.Inc()
	}
	_ = peer.Close()
}

// Disconnect removes peer from the session registry and the waiting pool.
// It returns the identifier peer was registered under. Calling it again, or
// for a peer that never registered, is a no-op.
func (r *Router) Disconnect(peer Peer) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.sessions.Unregister(peer)
	if !ok {
		return "", false
	}
	// A newer connection may have taken over the identifier.
	if _, taken := r.sessions.Lookup(id); !taken {
		r.pool.Remove(id)
	}

	metrics.Sessions.Set(float64(r.sessions.Len()))
	metrics.WaitingPool.Set(float64(r.pool.Len()))
	r.logger.Info("client disconnected", "client", id, "conn", peer.ConnID())
	return id, true
}

// Lookup returns the connection registered under id.
func (r *Router) Lookup(id string) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.Lookup(id)
}

// PoolMembers returns the waiting pool in insertion order.
func (r *Router) PoolMembers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool.Members()
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stats
	s.Sessions = r.sessions.Len()
	s.Waiting = r.pool.Len()
	return s
}

func (r *Router) countMalformed() {
	r.mu.Lock()
	r.stats.MalformedFrames++
	r.mu.Unlock()
	metrics.FramesReceived.WithLabelValues("malformed").Inc()
}

func (r *Router) recordMalformed(peer Peer, data []byte) {
	r.mu.Lock()
	id, _ := r.sessions.IdentifierOf(peer)
	r.stats.MalformedFrames++
	r.mu.Unlock()

	metrics.FramesReceived.WithLabelValues("malformed").Inc()
	if r.frames != nil {
		r.frames.Received(peer.ConnID(), id, data)
	}
}
