package commit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/dagbft/src/dag"
)

func TestBuilderDefaults(t *testing.T) {
	tc := newTestContext(t)

	u, err := NewBuilder(tc.committee, tc.store, tc.schedule).Build()
	require.NoError(t, err)
	require.Len(t, u.Committers(), 1)

	assert.Equal(t, BaseCommitterOptions{WaveLength: 3}, u.Committers()[0].Options())
}

func TestBuilderCommitterLayout(t *testing.T) {
	tc := newTestContext(t)

	cases := []struct {
		waveLength dag.Round
		leaders    int
		pipeline   bool
	}{
		{3, 1, false},
		{3, 2, false},
		{3, 1, true},
		{4, 3, true},
		{5, 4, false},
	}

	for _, c := range cases {
		u, err := tc.committerBuilder().
			WithWaveLength(c.waveLength).
			WithNumberOfLeaders(c.leaders).
			WithPipeline(c.pipeline).
			Build()
		require.NoError(t, err)

		stages := 1
		if c.pipeline {
			stages = int(c.waveLength)
		}
		committers := u.Committers()
		require.Len(t, committers, stages*c.leaders, "%+v", c)

		// registered by round offset, then leader offset
		i := 0
		for ro := 0; ro < stages; ro++ {
			for lo := 0; lo < c.leaders; lo++ {
				assert.Equal(t, BaseCommitterOptions{
					WaveLength:   c.waveLength,
					RoundOffset:  dag.Round(ro),
					LeaderOffset: uint32(lo),
				}, committers[i].Options())
				i++
			}
		}
	}
}

func TestBuilderPipelineOwnsEveryRound(t *testing.T) {
	tc := newTestContext(t)
	u, err := tc.committerBuilder().WithWaveLength(4).WithPipeline(true).Build()
	require.NoError(t, err)

	for round := dag.Round(0); round < 20; round++ {
		owners := 0
		for _, c := range u.Committers() {
			if _, ok := c.ElectLeader(round); ok {
				owners++
			}
		}
		assert.Equal(t, 1, owners, "round %d", round)
	}
}

func TestBuilderErrors(t *testing.T) {
	tc := newTestContext(t)

	_, err := tc.committerBuilder().WithWaveLength(2).Build()
	assert.True(t, errors.Is(err, ErrInvalidWaveLength), "got %v", err)

	_, err = tc.committerBuilder().WithNumberOfLeaders(0).Build()
	assert.True(t, errors.Is(err, ErrInvalidNumberOfLeaders), "got %v", err)

	_, err = tc.committerBuilder().WithNumberOfLeaders(5).Build()
	assert.True(t, errors.Is(err, ErrInvalidNumberOfLeaders), "got %v", err)
}
