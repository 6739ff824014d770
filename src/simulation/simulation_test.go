package simulation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/dagbft/src/commit"
	"github.com/mosaicnetworks/dagbft/src/common"
	"github.com/mosaicnetworks/dagbft/src/dag"
	"github.com/mosaicnetworks/dagbft/src/schedule"
)

func TestQuorumSafety(t *testing.T) {
	configs := []func(*Config){
		func(c *Config) {},
		func(c *Config) { c.Pipeline = false },
		func(c *Config) { c.NumberOfLeaders = 2 },
		func(c *Config) { c.WaveLength = 4; c.LinkProbability = 0.5 },
		func(c *Config) { c.CommitteeSize = 7; c.Byzantine = 2; c.Schedule = schedule.StakeWeightedName },
		func(c *Config) { c.CommitteeSize = 7; c.Byzantine = 2; c.NumberOfLeaders = 3; c.LinkProbability = 0 },
	}

	for i, configure := range configs {
		for seed := uint64(1); seed <= 8; seed++ {
			conf := DefaultConfig()
			conf.Rounds = 24
			conf.Seed = seed
			configure(&conf)

			t.Run(fmt.Sprintf("config%d/seed%d", i, seed), func(t *testing.T) {
				res, err := Run(context.Background(), conf, common.NewTestEntry(t))
				require.NoError(t, err)
				require.Len(t, res.Validators, conf.CommitteeSize-conf.Byzantine)
				require.NoError(t, res.CheckAgreement())

				for _, v := range res.Validators {
					for _, s := range v.Sequence {
						assert.True(t, s.IsDecided())
						assert.NotEqual(t, dag.GenesisRound, s.Round())
					}
				}
			})
		}
	}
}

func TestSimulationMakesProgress(t *testing.T) {
	conf := DefaultConfig()
	conf.Rounds = 20
	conf.LinkProbability = 1
	conf.Pipeline = false

	res, err := Run(context.Background(), conf, common.NewTestEntry(t))
	require.NoError(t, err)
	require.NoError(t, res.CheckAgreement())

	for _, v := range res.Validators {
		committed, _ := v.Counts()
		assert.NotZero(t, committed, "%v", v)
	}
}

func TestSimulationSwapsBadLeaders(t *testing.T) {
	conf := DefaultConfig()
	conf.CommitteeSize = 7
	conf.Byzantine = 2
	conf.Rounds = 24
	conf.Pipeline = false
	// 30% of 7 is 2: the two equivocators score worst and are swapped out
	conf.ReputationScores = []uint64{70, 60, 50, 40, 30, 1, 0}
	conf.SwapStakeThreshold = 30

	res, err := Run(context.Background(), conf, common.NewTestEntry(t))
	require.NoError(t, err)
	require.NoError(t, res.CheckAgreement())

	decided := 0
	for _, v := range res.Validators {
		decided += len(v.Sequence)
		for _, s := range v.Sequence {
			assert.NotContains(t, res.Byzantine, s.Slot.Authority, "%v", v)
		}
	}
	assert.NotZero(t, decided)
}

func TestSimulationIsDeterministic(t *testing.T) {
	conf := DefaultConfig()
	conf.Seed = 42

	first, err := Run(context.Background(), conf, common.NewTestEntry(t))
	require.NoError(t, err)
	second, err := Run(context.Background(), conf, common.NewTestEntry(t))
	require.NoError(t, err)

	require.Equal(t, len(first.Validators), len(second.Validators))
	assert.Equal(t, first.Blocks, second.Blocks)
	for i := range first.Validators {
		assert.Equal(t, first.Validators[i].String(), second.Validators[i].String())
	}
}

func TestSimulationConfigErrors(t *testing.T) {
	conf := DefaultConfig()
	conf.Byzantine = 2
	_, err := Run(context.Background(), conf, common.NewTestEntry(t))
	assert.True(t, errors.Is(err, ErrTooManyByzantine), "got %v", err)

	conf = DefaultConfig()
	conf.WaveLength = 2
	_, err = Run(context.Background(), conf, common.NewTestEntry(t))
	assert.True(t, errors.Is(err, commit.ErrInvalidWaveLength), "got %v", err)
}

func TestSimulationCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, DefaultConfig(), common.NewTestEntry(t))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestCheckAgreementDetectsDivergence(t *testing.T) {
	a := dag.NewBlock(3, 0, 0, nil, nil)
	b := dag.NewBlock(3, 0, 1, nil, nil)

	res := &Result{Validators: []*Validator{
		{Authority: 0, Sequence: []commit.LeaderStatus{commit.CommitStatus(a)}},
		{Authority: 1, Sequence: []commit.LeaderStatus{commit.CommitStatus(a), commit.SkipStatus(dag.NewSlot(6, 1))}},
	}}
	require.NoError(t, res.CheckAgreement())

	res.Validators = append(res.Validators, &Validator{
		Authority: 2,
		Sequence:  []commit.LeaderStatus{commit.CommitStatus(b)},
	})
	err := res.CheckAgreement()
	assert.True(t, errors.Is(err, ErrDisagreement), "got %v", err)

	res.Validators[2].Sequence = []commit.LeaderStatus{commit.SkipStatus(a.Slot())}
	err = res.CheckAgreement()
	assert.True(t, errors.Is(err, ErrDisagreement), "got %v", err)
}
