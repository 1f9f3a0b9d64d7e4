package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rickgao/mist-signaling/internal/connection"
)

// Agent is one simulated client.
type Agent struct {
	id     string
	client connection.Client
	neg    Negotiator
	logger *slog.Logger

	evalInterval time.Duration
	rng          *rand.Rand
	loc          Location

	mu    sync.Mutex
	stats Stats
}

// NewAgent creates an agent identified as id, talking through client. The
// agent owns neg and closes it when Run returns.
func NewAgent(id string, client connection.Client, neg Negotiator, evalInterval time.Duration, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		id:           id,
		client:       client,
		neg:          neg,
		logger:       logger.With("agent", id),
		evalInterval: evalInterval,
		rng:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// ID returns the agent's identifier.
func (a *Agent) ID() string { return a.id }

// Stats returns a copy of the agent's counters.
func (a *Agent) Stats() Stats {
	a.mu.Lock()
	s := a.stats
	a.mu.Unlock()

	if c, ok := a.neg.(interface{ Connected() int64 }); ok {
		s.Connected = c.Connected()
	}
	return s
}

// Run connects, requests a match, and handles frames until ctx is done or
// the relay drops the connection.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.client.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("agent %s: %w", a.id, err)
	}
	defer a.client.Close()
	defer a.neg.Close()

	if err := a.send(outFrame{Type: typeSignalingRequest}); err != nil {
		return fmt.Errorf("agent %s: request: %w", a.id, err)
	}

	var evalC <-chan time.Time
	if a.evalInterval > 0 {
		ticker := time.NewTicker(a.evalInterval)
		defer ticker.Stop()
		evalC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-a.client.Messages():
			if !ok {
				select {
				case err := <-a.client.Errors():
					return fmt.Errorf("agent %s: connection lost: %w", a.id, err)
				default:
					return fmt.Errorf("agent %s: connection lost", a.id)
				}
			}
			a.handle(ctx, msg.Data)

		case <-evalC:
			a.report()
		}
	}
}

func (a *Agent) handle(ctx context.Context, data []byte) {
	var f inFrame
	if err := json.Unmarshal(data, &f); err != nil {
		a.fail("undecodable frame", err)
		return
	}

	switch f.Type {
	case typeSignalingResponse:
		a.count(func(s *Stats) { s.Matches++ })
		if f.Request != "offer" || f.TargetID == "" {
			return
		}
		sdp, err := a.neg.Offer(ctx, f.TargetID)
		if err != nil {
			a.fail("create offer", err)
			return
		}
		if err := a.send(outFrame{Type: typeOffer, TargetID: f.TargetID, SDP: sdp}); err != nil {
			a.fail("send offer", err)
			return
		}
		a.count(func(s *Stats) { s.OffersSent++ })
		a.logger.Debug("offer sent", "target", f.TargetID)

	case typeOffer:
		sdp, err := a.neg.Answer(ctx, f.ID, f.SDP)
		if err != nil {
			a.fail("create answer", err)
			return
		}
		if err := a.send(outFrame{Type: typeAnswer, TargetID: f.ID, SDP: sdp}); err != nil {
			a.fail("send answer", err)
			return
		}
		a.count(func(s *Stats) { s.AnswersSent++ })
		a.logger.Debug("answer sent", "target", f.ID)

	case typeAnswer:
		if err := a.neg.Accept(f.ID, f.SDP); err != nil {
			a.fail("apply answer", err)
			return
		}
		a.count(func(s *Stats) { s.Completed++ })
		a.logger.Debug("negotiation complete", "peer", f.ID)

	case typeError:
		a.fail("relay error", fmt.Errorf("%s: %s", f.Reason, f.TargetID))

	default:
		a.logger.Debug("ignoring frame", "type", f.Type)
	}
}

// report sends the next step of a random walk.
func (a *Agent) report() {
	a.loc.X += a.rng.Float64()*2 - 1
	a.loc.Y += a.rng.Float64()*2 - 1
	a.loc.Z += a.rng.Float64()*2 - 1

	loc := a.loc
	if err := a.send(outFrame{Type: typeEvaluation, Location: &loc}); err != nil {
		a.fail("send evaluation", err)
		return
	}
	a.count(func(s *Stats) { s.Evaluations++ })
}

func (a *Agent) send(f outFrame) error {
	f.ID = a.id
	return a.client.SendJSON(f)
}

func (a *Agent) count(fn func(*Stats)) {
	a.mu.Lock()
	fn(&a.stats)
	a.mu.Unlock()
}

func (a *Agent) fail(what string, err error) {
	a.count(func(s *Stats) { s.Errors++ })
	a.logger.Warn(what, "error", err)
}
