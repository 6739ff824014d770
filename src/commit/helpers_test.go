package commit

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/dagbft/src/common"
	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/dag"
	"github.com/mosaicnetworks/dagbft/src/schedule"
)

var genesisSlot = dag.NewSlot(dag.GenesisRound, 0)

// fixedSchedule pins the leaders of some rounds and falls back to round-robin
// for the others.
type fixedSchedule struct {
	fallback *schedule.RoundRobin
	leaders  map[dag.Round]committee.AuthorityIndex
}

func (f *fixedSchedule) ElectLeader(round dag.Round, leaderOffset uint32) committee.AuthorityIndex {
	if leader, ok := f.leaders[round]; ok && leaderOffset == 0 {
		return leader
	}
	return f.fallback.ElectLeader(round, leaderOffset)
}

type testContext struct {
	committee *committee.Committee
	store     *dag.InmemStore
	builder   *dag.Builder
	schedule  LeaderSchedule
	logger    *logrus.Entry
}

func newTestContext(t *testing.T, stakes ...committee.Stake) *testContext {
	c := committee.NewTestCommittee(stakes...)
	return &testContext{
		committee: c,
		store:     dag.NewInmemStore(c, 100),
		builder:   dag.NewBuilder(c),
		schedule:  schedule.NewRoundRobin(c),
		logger:    common.NewTestEntry(t),
	}
}

func (tc *testContext) persist(t *testing.T) {
	require.NoError(t, tc.builder.Persist(tc.store))
}

func (tc *testContext) committerBuilder() *Builder {
	return NewBuilder(tc.committee, tc.store, tc.schedule).WithLogger(tc.logger)
}

func (tc *testContext) universal(t *testing.T) *UniversalCommitter {
	u, err := tc.committerBuilder().Build()
	require.NoError(t, err)
	return u
}

func (tc *testContext) base() *BaseCommitter {
	return NewBaseCommitter(tc.committee, tc.store, tc.schedule,
		BaseCommitterOptions{WaveLength: DefaultWaveLength}, tc.logger)
}

func (tc *testContext) block(round dag.Round, author committee.AuthorityIndex) *dag.Block {
	return tc.builder.Block(round, author)
}

func requireCommit(t *testing.T, status LeaderStatus, block *dag.Block) {
	t.Helper()
	require.Equal(t, Committed, status.Kind, "expected Commit(%v), got %v", block.Reference(), status)
	require.Equal(t, block.Reference(), status.Block.Reference())
}

func requireSkip(t *testing.T, status LeaderStatus, slot dag.Slot) {
	t.Helper()
	require.Equal(t, Skipped, status.Kind, "expected Skip(%v), got %v", slot, status)
	require.Equal(t, slot, status.Slot)
}
