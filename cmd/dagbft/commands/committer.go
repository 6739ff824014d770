package commands

import (
	"github.com/mosaicnetworks/dagbft/src/commit"
	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/dag"
	"github.com/mosaicnetworks/dagbft/src/node"
	"github.com/mosaicnetworks/dagbft/src/schedule"
)

// newCore creates a Core over store with a UniversalCommitter built from the
// configuration.
func newCore(c *committee.Committee, store dag.Store, handler node.CommitHandler) (*node.Core, error) {
	conf := &_config.DagBFT

	sched, err := schedule.NewSwapped(conf.Schedule, c, conf.ReputationScores, conf.SwapStakeThreshold)
	if err != nil {
		return nil, err
	}

	committer, err := commit.NewBuilder(c, store, sched).
		WithWaveLength(dag.Round(conf.WaveLength)).
		WithNumberOfLeaders(conf.NumberOfLeaders).
		WithPipeline(conf.Pipeline).
		WithLogger(conf.Logger().WithField("prefix", "committer")).
		Build()
	if err != nil {
		return nil, err
	}

	return node.NewCore(c, store, committer, handler, conf.Logger().WithField("prefix", "core")), nil
}
