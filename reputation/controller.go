// Package reputation implements the reputation controller: the single
// authority through which a peer's view of every cluster member's
// trustworthiness is adjusted, clamped, and pushed to the registry
// (spec §4.7).
package reputation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bftbank/core/internal/directory"
	"github.com/bftbank/core/internal/logger"
	"github.com/bftbank/core/internal/observability"
	"github.com/bftbank/core/registry"
)

var (
	reputationGaugeOnce sync.Once
	reputationGauge     *prometheus.GaugeVec
)

func registerReputationGauge(reg prometheus.Registerer) {
	reputationGaugeOnce.Do(func() {
		reputationGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bftbank_peer_reputation",
			Help: "Last-known reputation of each peer, as seen by this node.",
		}, []string{"peer_id"})
	})
	if err := reg.Register(reputationGauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			panic(err)
		}
	}
}

const (
	// IncreaseStep is applied to peers whose vote matched the round's
	// outcome.
	IncreaseStep = 10
	// DecreaseStep is applied to peers flagged malicious or silent; larger
	// than IncreaseStep so Byzantine drift is punished faster than honest
	// recovery (spec §4.7).
	DecreaseStep = 20
	// ExclusionThreshold mirrors directory.ExclusionThreshold: peers below
	// it are excluded from quorum numerator and denominator.
	ExclusionThreshold = directory.ExclusionThreshold
)

// Registry is the subset of *registry.Client the controller needs,
// narrowed so tests can substitute a fake.
type Registry interface {
	IncreaseReputation(ctx context.Context, nodeID string, amount *int) (int, error)
	DecreaseReputation(ctx context.Context, nodeID string, amount *int) (int, error)
}

var _ Registry = (*registry.Client)(nil)

// Controller adjusts reputations both in the peer-local directory
// (immediate) and at the registry (authoritative), synchronously, before
// a consensus round is considered closed (spec §4.7 / SPEC_FULL.md §4.7).
type Controller struct {
	dir *directory.Table
	reg Registry
	log *slog.Logger
}

// New builds a reputation controller writing through dir and reg.
func New(dir *directory.Table, reg Registry, log *slog.Logger) *Controller {
	if log == nil {
		log = logger.Discard()
	}
	registerReputationGauge(observability.Default().PrometheusRegisterer())
	return &Controller{dir: dir, reg: reg, log: log}
}

// SetObservability registers the per-peer reputation gauge against obs's
// Prometheus registry (a no-op if that registry already holds it).
func (c *Controller) SetObservability(obs observability.Observability) {
	registerReputationGauge(obs.PrometheusRegisterer())
}

// Agree rewards peerID for a vote that matched the round's outcome.
func (c *Controller) Agree(ctx context.Context, peerID string) {
	c.adjust(ctx, peerID, true)
}

// Disagree penalises peerID for a vote flagged malicious, dissenting, or
// silent.
func (c *Controller) Disagree(ctx context.Context, peerID string) {
	c.adjust(ctx, peerID, false)
}

func (c *Controller) adjust(ctx context.Context, peerID string, agree bool) {
	var (
		newRep int
		err    error
	)
	if agree {
		newRep, err = c.reg.IncreaseReputation(ctx, peerID, nil)
	} else {
		newRep, err = c.reg.DecreaseReputation(ctx, peerID, nil)
	}
	if err != nil {
		c.log.WarnContext(ctx, "reputation: registry push failed", logger.Peer(peerID), logger.Error(err))
		// Fall back to a local-only clamp so the directory still reflects
		// intent even if the registry round-trip failed.
		newRep = c.localFallback(peerID, agree)
	}
	c.dir.SetReputation(peerID, newRep)
	if reputationGauge != nil {
		reputationGauge.WithLabelValues(peerID).Set(float64(newRep))
	}
}

func (c *Controller) localFallback(peerID string, agree bool) int {
	entry, ok := c.dir.Get(peerID)
	if !ok {
		return 0
	}
	rep := entry.Reputation
	if agree {
		rep += IncreaseStep
	} else {
		rep -= DecreaseStep
	}
	return clamp(rep)
}

func clamp(rep int) int {
	if rep < 0 {
		return 0
	}
	if rep > 100 {
		return 100
	}
	return rep
}

// SettleRound applies Agree/Disagree to every peer in outcome, keyed by
// peer ID, in one synchronous pass — the "settle reputation before the
// round is considered closed" rule (spec §4.6 step 4e/5, §4.7).
func (c *Controller) SettleRound(ctx context.Context, outcome map[string]bool) error {
	var firstErr error
	for peerID, agreed := range outcome {
		c.adjust(ctx, peerID, agreed)
		if firstErr == nil {
			if _, ok := c.dir.Get(peerID); !ok {
				firstErr = fmt.Errorf("reputation: settle: unknown peer %q", peerID)
			}
		}
	}
	return firstErr
}
