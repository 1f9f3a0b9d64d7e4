package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/mist-signaling/internal/connection"
)

// Swarm runs a set of agents against one relay.
type Swarm struct {
	cfg    Config
	agents []*Agent
	logger *slog.Logger
}

// New creates cfg.Clients agents, each with its own negotiator from newNeg.
func New(cfg Config, newNeg func() Negotiator, logger *slog.Logger) *Swarm {
	if logger == nil {
		logger = slog.Default()
	}

	agents := make([]*Agent, cfg.Clients)
	for i := range agents {
		clientCfg := connection.DefaultClientConfig()
		clientCfg.URL = cfg.URL
		client := connection.NewClient(clientCfg, logger)
		agents[i] = NewAgent(fmt.Sprintf("%s%d", cfg.IDPrefix, i), client, newNeg(), cfg.EvalInterval, logger)
	}

	return &Swarm{cfg: cfg, agents: agents, logger: logger}
}

// Agents returns the swarm's agents.
func (s *Swarm) Agents() []*Agent {
	return s.agents
}

// Run starts every agent and blocks until ctx is cancelled. The first agent
// failure is returned after all agents have stopped; other agents keep
// running until then.
func (s *Swarm) Run(ctx context.Context) error {
	var g errgroup.Group

	for i, a := range s.agents {
		if i > 0 && s.cfg.StartSpacing > 0 {
			select {
			case <-ctx.Done():
				return g.Wait()
			case <-time.After(s.cfg.StartSpacing):
			}
		}
		g.Go(func() error {
			return a.Run(ctx)
		})
	}

	s.logger.Info("swarm started", "clients", len(s.agents), "url", s.cfg.URL)
	return g.Wait()
}

// Stats sums the counters of every agent.
func (s *Swarm) Stats() Stats {
	var total Stats
	for _, a := range s.agents {
		total.add(a.Stats())
	}
	return total
}
