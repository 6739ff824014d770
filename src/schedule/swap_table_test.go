package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/dag"
)

func TestSwapTable(t *testing.T) {
	c := committee.NewTestCommittee(1, 1, 1, 1, 1, 1, 1, 1, 1, 1)
	scores := []uint64{10, 90, 50, 50, 20, 80, 0, 70, 60, 30}

	// 20% of 10 stake: two authorities on each side
	table, err := NewSwapTable(c, 100, scores, 20)
	require.NoError(t, err)

	assert.Equal(t, []committee.AuthorityIndex{1, 5}, table.Good())
	assert.True(t, table.IsBad(6))
	assert.True(t, table.IsBad(0))
	assert.False(t, table.IsBad(4))

	for round := dag.Round(101); round < 120; round++ {
		swapped, ok := table.Swap(6, round, 0)
		assert.True(t, ok)
		assert.Contains(t, table.Good(), swapped)

		again, _ := table.Swap(6, round, 0)
		assert.Equal(t, swapped, again, "swaps must be deterministic")

		kept, ok := table.Swap(2, round, 0)
		assert.False(t, ok)
		assert.Equal(t, committee.AuthorityIndex(2), kept)
	}
}

func TestSwapTableErrors(t *testing.T) {
	c := committee.NewTestCommittee()

	_, err := NewSwapTable(c, 0, []uint64{1, 2}, 10)
	assert.Error(t, err)

	_, err = NewSwapTable(c, 0, []uint64{1, 2, 3, 4}, 50)
	assert.Error(t, err)
}

func TestSwapTableLowThreshold(t *testing.T) {
	// 10% of a stake of 4 cannot fit a single authority
	table, err := NewSwapTable(committee.NewTestCommittee(), 0, []uint64{4, 3, 2, 1}, 10)
	require.NoError(t, err)
	assert.Empty(t, table.Good())

	leader, ok := table.Swap(3, 5, 0)
	assert.False(t, ok)
	assert.Equal(t, committee.AuthorityIndex(3), leader)
}

func TestWithSwapTable(t *testing.T) {
	c := committee.NewTestCommittee(1, 1, 1, 1, 1, 1, 1, 1, 1, 1)
	base := NewRoundRobin(c)
	s := WithSwapTable(base, nil)

	// without a table, the base schedule is used
	assert.Equal(t, committee.AuthorityIndex(6), s.ElectLeader(6, 0))

	scores := []uint64{10, 90, 50, 50, 20, 80, 0, 70, 60, 30}
	table, err := NewSwapTable(c, 0, scores, 20)
	require.NoError(t, err)
	s.UpdateTable(table)

	leader := s.ElectLeader(6, 0)
	assert.Contains(t, []committee.AuthorityIndex{1, 5}, leader)
	assert.Equal(t, committee.AuthorityIndex(2), s.ElectLeader(2, 0))
}

func TestNewSwapped(t *testing.T) {
	c := committee.NewTestCommittee()

	plain, err := NewSwapped(RoundRobinName, c, nil, 25)
	require.NoError(t, err)
	assert.Nil(t, plain.Table())
	assert.Equal(t, committee.AuthorityIndex(3), plain.ElectLeader(3, 0))

	swapped, err := NewSwapped(RoundRobinName, c, []uint64{40, 30, 20, 10}, 25)
	require.NoError(t, err)
	require.NotNil(t, swapped.Table())
	assert.Equal(t, committee.AuthorityIndex(0), swapped.ElectLeader(3, 0))
	assert.Equal(t, committee.AuthorityIndex(2), swapped.ElectLeader(6, 0))

	_, err = NewSwapped("lottery", c, nil, 25)
	assert.Error(t, err)

	_, err = NewSwapped(RoundRobinName, c, []uint64{1, 2}, 25)
	assert.Error(t, err)
}
