package commit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mosaicnetworks/dagbft/src/dag"
)

func TestLeaderStatus(t *testing.T) {
	block := dag.NewBlock(3, 1, 0, nil, nil)
	slot := dag.NewSlot(3, 1)

	commit := CommitStatus(block)
	assert.True(t, commit.IsDecided())
	assert.Equal(t, slot, commit.Slot)
	assert.Equal(t, dag.Round(3), commit.Round())

	assert.True(t, SkipStatus(slot).IsDecided())
	assert.False(t, UndecidedStatus(slot).IsDecided())

	assert.Equal(t, "Skip(B3)", SkipStatus(slot).String())
	assert.Equal(t, "Undecided(B3)", UndecidedStatus(slot).String())
}

func TestStatusLabel(t *testing.T) {
	block := dag.NewBlock(3, 1, 0, nil, nil)
	assert.Equal(t, "direct-commit", StatusLabel(DecidedLeader{Status: CommitStatus(block), Decision: Direct}))
	assert.Equal(t, "indirect-skip", StatusLabel(DecidedLeader{Status: SkipStatus(block.Slot()), Decision: Indirect}))
}
