package commit

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mosaicnetworks/dagbft/src/committee"
)

// Metrics are the prometheus collectors updated by the UniversalCommitter.
// A leader is counted every time TryCommit returns it. Callers count each
// decision once by passing the last returned leader as lastDecided on the next
// call, which is what node.Core does.
type Metrics struct {
	CommittedLeaders       *prometheus.CounterVec
	LastDecidedLeaderRound prometheus.Gauge
	TryCommitDuration      prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg, unless reg is
// nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommittedLeaders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "committed_leaders_total",
			Help:      "Number of decided leaders, by authority and by {direct,indirect}-{commit,skip}.",
		}, []string{"authority", "status"}),
		LastDecidedLeaderRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_decided_leader_round",
			Help:      "Round of the last decided leader.",
		}),
		TryCommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "try_commit_duration_seconds",
			Help:      "Time spent deciding leaders in one call.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.CommittedLeaders, m.LastDecidedLeaderRound, m.TryCommitDuration)
	}

	return m
}

func (m *Metrics) startTryCommit() *prometheus.Timer {
	return prometheus.NewTimer(m.TryCommitDuration)
}

func (m *Metrics) observe(c *committee.Committee, l DecidedLeader) {
	authority := l.Status.Slot.Authority.String()
	if a := c.Authority(l.Status.Slot.Authority); a != nil && a.Hostname != "" {
		authority = a.Hostname
	}
	m.CommittedLeaders.WithLabelValues(authority, StatusLabel(l)).Inc()
	m.LastDecidedLeaderRound.Set(float64(l.Status.Round()))
}

// StatusLabel returns the label of a decided leader: direct-commit,
// direct-skip, indirect-commit, or indirect-skip.
func StatusLabel(l DecidedLeader) string {
	return l.Decision.String() + "-" + l.Status.Kind.String()
}
