package node

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/dagbft/src/commit"
	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/common"
	"github.com/mosaicnetworks/dagbft/src/dag"
	"github.com/mosaicnetworks/dagbft/src/schedule"
)

type coreHarness struct {
	committee *committee.Committee
	builder   *dag.Builder
	core      *Core
	committed []*CommittedSubDag
}

func newCoreHarness(t *testing.T, store dag.Store, c *committee.Committee) *coreHarness {
	committer, err := commit.NewBuilder(c, store, schedule.NewRoundRobin(c)).
		WithLogger(common.NewTestEntry(t)).
		Build()
	require.NoError(t, err)

	h := &coreHarness{
		committee: c,
		builder:   dag.NewBuilder(c),
	}
	h.core = NewCore(c, store, committer, func(s *CommittedSubDag) error {
		h.committed = append(h.committed, s)
		return nil
	}, common.NewTestEntry(t))
	return h
}

func newInmemCoreHarness(t *testing.T) *coreHarness {
	c := committee.NewTestCommittee()
	return newCoreHarness(t, dag.NewInmemStore(c, 100), c)
}

func refsOf(blocks []*dag.Block) []dag.BlockRef {
	res := make([]dag.BlockRef, len(blocks))
	for i, b := range blocks {
		res[i] = b.Reference()
	}
	return res
}

func TestCoreCommitSequence(t *testing.T) {
	h := newInmemCoreHarness(t)
	h.builder.Layers(1, 8).Build()
	require.NoError(t, h.core.AddBlocks(h.builder.Blocks(1, 8)))

	subDags, err := h.core.TryCommit()
	require.NoError(t, err)
	require.Len(t, subDags, 2)
	assert.Equal(t, subDags, h.committed)

	d3 := h.builder.Block(3, 3)
	c6 := h.builder.Block(6, 2)

	// D3 commits rounds 1 and 2, then itself
	first := subDags[0]
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, d3, first.Leader)
	expected := append(h.builder.Blocks(1, 2), d3)
	assert.Equal(t, refsOf(expected), first.Refs())

	// C6 commits what D3 left behind
	second := subDags[1]
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, c6, second.Leader)
	require.Len(t, second.Blocks, 3+4+4+1)
	assert.Equal(t, c6, second.Blocks[len(second.Blocks)-1])
	for _, b := range second.Blocks {
		assert.NotEqual(t, d3.Reference(), b.Reference())
	}

	for _, s := range subDags {
		for _, b := range s.Blocks {
			assert.True(t, h.core.store.IsCommitted(b.Reference()), "%v", b.Reference())
		}
	}
	assert.False(t, h.core.store.IsCommitted(h.builder.Block(7, 0).Reference()))

	assert.Equal(t, c6.Slot(), h.core.LastDecided())
	assert.Equal(t, 1, h.core.store.LastCommitIndex())
	assert.Equal(t, 9+12, h.core.CommittedBlocks())

	// nothing new to decide
	subDags, err = h.core.TryCommit()
	require.NoError(t, err)
	assert.Empty(t, subDags)
}

func TestCoreCountsDecisionsOnce(t *testing.T) {
	c := committee.NewTestCommittee()
	store := dag.NewInmemStore(c, 100)
	metrics := commit.NewMetrics("dagbft", prometheus.NewRegistry())

	committer, err := commit.NewBuilder(c, store, schedule.NewRoundRobin(c)).
		WithMetrics(metrics).
		WithLogger(common.NewTestEntry(t)).
		Build()
	require.NoError(t, err)
	core := NewCore(c, store, committer, nil, common.NewTestEntry(t))

	builder := dag.NewBuilder(c)
	builder.Layers(1, 8).Build()
	require.NoError(t, core.AddBlocks(builder.Blocks(1, 8)))

	for i := 0; i < 3; i++ {
		_, err := core.TryCommit()
		require.NoError(t, err)
	}

	// the cursor moves past D3 and C6, so later calls do not count them again
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommittedLeaders.WithLabelValues("authority3", "direct-commit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommittedLeaders.WithLabelValues("authority2", "direct-commit")))
	assert.Equal(t, 6.0, testutil.ToFloat64(metrics.LastDecidedLeaderRound))
}

func TestCoreRecordsSkippedLeaders(t *testing.T) {
	h := newInmemCoreHarness(t)
	h.builder.Layers(1, 3).Build()
	h.builder.Layer(4).NoLinkTo(3).Build()
	h.builder.Layers(5, 8).Build()
	require.NoError(t, h.core.AddBlocks(h.builder.Blocks(1, 8)))

	subDags, err := h.core.TryCommit()
	require.NoError(t, err)
	require.Len(t, subDags, 1)

	skipped, err := h.core.store.GetCommit(0)
	require.NoError(t, err)
	assert.True(t, skipped.Skipped)
	assert.Equal(t, dag.NewSlot(3, 3), skipped.Leader)

	committed, err := h.core.store.GetCommit(1)
	require.NoError(t, err)
	assert.False(t, committed.Skipped)
	assert.Equal(t, h.builder.Block(6, 2).Reference(), committed.Block)
	assert.Equal(t, subDags[0].Refs(), committed.Refs)

	// D3 is not in the history of C6, so it stays uncommitted
	assert.Equal(t, 1, subDags[0].Index)
	assert.Len(t, subDags[0].Blocks, 8+3+4+4+1)
	assert.False(t, h.core.store.IsCommitted(h.builder.Block(3, 3).Reference()))
}

func TestCoreAcceptsBlocksOutOfOrder(t *testing.T) {
	h := newInmemCoreHarness(t)
	h.builder.Layers(1, 5).Build()

	require.NoError(t, h.core.AddBlocks(h.builder.Blocks(2, 5)))
	assert.Equal(t, 16, h.core.PendingBlocks())
	assert.Equal(t, dag.GenesisRound, h.core.store.HighestAcceptedRound())

	require.NoError(t, h.core.AddBlocks(h.builder.Blocks(1, 1)))
	assert.Equal(t, 0, h.core.PendingBlocks())
	assert.Equal(t, dag.Round(5), h.core.store.HighestAcceptedRound())

	// already accepted
	require.NoError(t, h.core.AddBlocks(h.builder.Blocks(1, 5)))
	assert.Equal(t, 0, h.core.PendingBlocks())

	subDags, err := h.core.TryCommit()
	require.NoError(t, err)
	require.Len(t, subDags, 1)
	assert.Equal(t, h.builder.Block(3, 3), subDags[0].Leader)
}

func TestCoreRejectsInvalidBlocks(t *testing.T) {
	h := newInmemCoreHarness(t)
	genesis := dag.GenesisBlocks(h.committee)

	invalid := dag.NewBlock(1, 0, 0, []dag.BlockRef{
		genesis[0].Reference(),
		genesis[0].Reference(),
	}, nil)

	err := h.core.AddBlocks([]*dag.Block{invalid})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dag.ErrDuplicateAncestorAuthority))
	assert.False(t, h.core.store.Contains(invalid.Reference()))
	assert.Equal(t, 0, h.core.PendingBlocks())
}

func TestCoreCommitHandlerError(t *testing.T) {
	h := newInmemCoreHarness(t)
	h.builder.Layers(1, 8).Build()
	require.NoError(t, h.core.AddBlocks(h.builder.Blocks(1, 8)))

	failure := errors.New("application unavailable")
	calls := 0
	h.core.commitHandler = func(s *CommittedSubDag) error {
		calls++
		if calls == 1 {
			return failure
		}
		h.committed = append(h.committed, s)
		return nil
	}

	subDags, err := h.core.TryCommit()
	assert.Equal(t, failure, err)
	require.Len(t, subDags, 1)
	assert.Equal(t, dag.NewSlot(3, 3), h.core.LastDecided())

	// the failed sub-DAG is recorded; the next call resumes after it
	subDags, err = h.core.TryCommit()
	require.NoError(t, err)
	require.Len(t, subDags, 1)
	assert.Equal(t, h.builder.Block(6, 2), subDags[0].Leader)
}

func TestCoreCommitsSince(t *testing.T) {
	h := newInmemCoreHarness(t)
	h.builder.Layers(1, 11).Build()
	require.NoError(t, h.core.AddBlocks(h.builder.Blocks(1, 11)))

	_, err := h.core.TryCommit()
	require.NoError(t, err)

	all, err := h.core.CommitsSince(-1)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, c := range all {
		assert.Equal(t, i, c.Index)
	}

	last, err := h.core.CommitsSince(1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, h.builder.Block(9, 1).Reference(), last[0].Block)

	none, err := h.core.CommitsSince(2)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCoreRecoverFromBadger(t *testing.T) {
	c := committee.NewTestCommittee()
	path := filepath.Join(t.TempDir(), "badger")

	store, err := dag.NewBadgerStore(c, 100, path, common.NewTestEntry(t))
	require.NoError(t, err)

	h := newCoreHarness(t, store, c)
	h.builder.Layers(1, 8).Build()
	require.NoError(t, h.core.AddBlocks(h.builder.Blocks(1, 8)))
	_, err = h.core.TryCommit()
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reloaded, err := dag.LoadBadgerStore(c, 100, path, false, common.NewTestEntry(t))
	require.NoError(t, err)
	defer reloaded.Close()

	h2 := newCoreHarness(t, reloaded, c)
	h2.builder = h.builder
	require.NoError(t, h2.core.Recover())
	assert.Equal(t, dag.NewSlot(6, 2), h2.core.LastDecided())

	records, err := h2.core.CommitsSince(-1)
	require.NoError(t, err)
	require.Len(t, records, 2)

	subDags, err := h2.core.TryCommit()
	require.NoError(t, err)
	assert.Empty(t, subDags)

	h.builder.Layers(9, 11).Build()
	require.NoError(t, h2.core.AddBlocks(h.builder.Blocks(9, 11)))

	subDags, err = h2.core.TryCommit()
	require.NoError(t, err)
	require.Len(t, subDags, 1)
	assert.Equal(t, 2, subDags[0].Index)
	assert.Equal(t, h.builder.Block(9, 1), subDags[0].Leader)
	// round 6 without C6, rounds 7 and 8, then B9
	assert.Len(t, subDags[0].Blocks, 3+4+4+1)
}
