package consensus

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce    sync.Once
	committedTotal prometheus.Counter
	rejectedTotal  prometheus.Counter
	abandonedTotal prometheus.Counter
)

// registerMetrics creates the consensus round counters once per process
// and registers them against reg. Acceptors and proposers call it first
// with the registry of observability.Default and again with the node's
// registry from SetObservability; registering against a registry that
// already holds the counters is a no-op.
func registerMetrics(reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		committedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bftbank_consensus_rounds_committed_total",
			Help: "Consensus rounds that reached cross-verification quorum.",
		})
		rejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bftbank_consensus_rounds_rejected_total",
			Help: "Consensus rounds where the tally fell below threshold.",
		})
		abandonedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bftbank_consensus_rounds_abandoned_total",
			Help: "Consensus rounds abandoned for insufficient reputable witnesses.",
		})
	})
	for _, c := range []prometheus.Collector{committedTotal, rejectedTotal, abandonedTotal} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}
}
