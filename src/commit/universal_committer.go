package commit

import (
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/dag"
)

// UniversalCommitter combines the decisions of several base committers into a
// single sequence of decided leaders, ordered by round and, within a round, by
// committer registration order.
//
// It only reads the DAG. Calls must be serialized by the caller, each one
// resuming from the last decided slot returned by the previous one.
type UniversalCommitter struct {
	committee  *committee.Committee
	dag        DagView
	committers []*BaseCommitter
	metrics    *Metrics
	logger     *logrus.Entry
}

// TryCommit returns the leaders decided after lastDecided, in order. The
// sequence stops before the first undecided leader and never includes genesis
// leaders.
func (u *UniversalCommitter) TryCommit(lastDecided dag.Slot) []LeaderStatus {
	decided := u.TryDecide(lastDecided)
	res := make([]LeaderStatus, len(decided))
	for i, d := range decided {
		res[i] = d.Status
	}
	return res
}

// TryDecide is TryCommit, with the rule that decided each leader. Decisions
// are observed by the metrics on every call, so a caller that does not advance
// lastDecided counts them again.
func (u *UniversalCommitter) TryDecide(lastDecided dag.Slot) []DecidedLeader {
	if u.metrics != nil {
		timer := u.metrics.startTryCommit()
		defer timer.ObserveDuration()
	}

	highest := u.dag.HighestAcceptedRound()
	top := dag.GenesisRound
	if highest >= 2 {
		top = highest - 2
	}

	// filled from the highest round down, so that it ends up in ascending
	// order
	leaders := []DecidedLeader{}

outer:
	for round := top; round >= lastDecided.Round; round-- {
		for i := len(u.committers) - 1; i >= 0; i-- {
			committer := u.committers[i]
			slot, ok := committer.ElectLeader(round)
			if !ok {
				continue
			}

			if slot == lastDecided {
				break outer
			}

			status := committer.TryDirectDecide(slot)
			decision := Direct
			if !status.IsDecided() {
				status = committer.TryIndirectDecide(slot, statuses(leaders))
				decision = Indirect
			}

			u.logger.WithFields(logrus.Fields{
				"slot":     slot,
				"status":   status,
				"decision": decision,
			}).Debug("Decide leader")

			leaders = append([]DecidedLeader{{Status: status, Decision: decision}}, leaders...)
		}

		if round == dag.GenesisRound {
			break
		}
	}

	res := []DecidedLeader{}
	for _, l := range leaders {
		if l.Status.Round() == dag.GenesisRound {
			continue
		}
		if !l.Status.IsDecided() {
			break
		}
		if u.metrics != nil {
			u.metrics.observe(u.committee, l)
		}
		res = append(res, l)
	}

	return res
}

// GetLeaders returns the leaders of round, one per committer owning the round,
// without duplicates.
func (u *UniversalCommitter) GetLeaders(round dag.Round) []committee.AuthorityIndex {
	res := []committee.AuthorityIndex{}
	seen := map[committee.AuthorityIndex]bool{}
	for _, c := range u.committers {
		slot, ok := c.ElectLeader(round)
		if !ok || seen[slot.Authority] {
			continue
		}
		seen[slot.Authority] = true
		res = append(res, slot.Authority)
	}
	return res
}

// Committers returns the base committers in registration order.
func (u *UniversalCommitter) Committers() []*BaseCommitter {
	return u.committers
}

func statuses(leaders []DecidedLeader) []LeaderStatus {
	res := make([]LeaderStatus, len(leaders))
	for i, l := range leaders {
		res[i] = l.Status
	}
	return res
}
