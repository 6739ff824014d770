package node

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/common"
	"github.com/mosaicnetworks/dagbft/src/dag"
)

func TestReplayBadgerStore(t *testing.T) {
	c := committee.NewTestCommittee()
	path := filepath.Join(t.TempDir(), "badger")

	store, err := dag.NewBadgerStore(c, 100, path, common.NewTestEntry(t))
	require.NoError(t, err)

	h := newCoreHarness(t, store, c)
	h.builder.Layers(1, 3).Build()
	h.builder.Layer(4).NoLinkTo(3).Build()
	h.builder.Layers(5, 11).Build()
	require.NoError(t, h.core.AddBlocks(h.builder.Blocks(1, 11)))
	_, err = h.core.TryCommit()
	require.NoError(t, err)

	persisted, err := h.core.CommitsSince(-1)
	require.NoError(t, err)
	require.Len(t, persisted, 3)
	require.NoError(t, store.Close())

	source, err := dag.LoadBadgerStore(c, 100, path, true, common.NewTestEntry(t))
	require.NoError(t, err)
	defer source.Close()

	replayed := newInmemCoreHarness(t)
	subDags, err := Replay(source, replayed.core)
	require.NoError(t, err)

	// D3 is skipped, C6 and B9 are committed
	require.Len(t, subDags, 2)
	assert.Equal(t, h.builder.Block(6, 2), subDags[0].Leader)
	assert.Equal(t, h.builder.Block(9, 1), subDags[1].Leader)

	records, err := replayed.core.CommitsSince(-1)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.NoError(t, CompareCommits(persisted, records))

	// the replayed sequence linearizes the same blocks, one round at a time
	for i := range records {
		assert.Equal(t, persisted[i].Refs, records[i].Refs, "commit %d", i)
	}
}

func TestReplayUndecided(t *testing.T) {
	c := committee.NewTestCommittee()
	b := dag.NewBuilder(c)
	b.Layers(1, 4).Build()

	source := dag.NewInmemStore(c, 100)
	require.NoError(t, b.Persist(source))

	h := newInmemCoreHarness(t)
	subDags, err := Replay(source, h.core)
	require.NoError(t, err)
	assert.Empty(t, subDags)
	assert.Equal(t, -1, h.core.store.LastCommitIndex())
	assert.Equal(t, dag.Round(4), h.core.store.HighestAcceptedRound())
}

func TestCompareCommits(t *testing.T) {
	h := newInmemCoreHarness(t)
	h.builder.Layers(1, 8).Build()
	require.NoError(t, h.core.AddBlocks(h.builder.Blocks(1, 8)))
	_, err := h.core.TryCommit()
	require.NoError(t, err)

	records, err := h.core.CommitsSince(-1)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.NoError(t, CompareCommits(records, records[:1]))
	assert.NoError(t, CompareCommits(nil, records))

	other := *records[1]
	other.Block = h.builder.Block(6, 1).Reference()
	err = CompareCommits(records, []*dag.Commit{records[0], &other})
	assert.True(t, errors.Is(err, ErrCommitMismatch), "got %v", err)

	skipped := dag.NewSkippedCommit(0, records[0].Leader)
	err = CompareCommits([]*dag.Commit{skipped}, records)
	assert.True(t, errors.Is(err, ErrCommitMismatch), "got %v", err)
}
