package commit

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/dag"
)

const (
	// MinimumWaveLength is the smallest wave with a leader round, a voting
	// round and a decision round.
	MinimumWaveLength dag.Round = 3
	// DefaultWaveLength is the wave length used when none is configured.
	DefaultWaveLength = MinimumWaveLength
)

// Errors returned by Builder.Build.
var (
	ErrInvalidWaveLength      = errors.New("invalid wave length")
	ErrInvalidNumberOfLeaders = errors.New("invalid number of leaders")
)

// Builder assembles a UniversalCommitter.
type Builder struct {
	committee       *committee.Committee
	dag             DagView
	schedule        LeaderSchedule
	waveLength      dag.Round
	numberOfLeaders int
	pipeline        bool
	metrics         *Metrics
	logger          *logrus.Entry
}

// NewBuilder creates a Builder with a wave length of 3, one leader per round,
// and no pipelining.
func NewBuilder(c *committee.Committee, dagView DagView, schedule LeaderSchedule) *Builder {
	return &Builder{
		committee:       c,
		dag:             dagView,
		schedule:        schedule,
		waveLength:      DefaultWaveLength,
		numberOfLeaders: 1,
	}
}

// WithWaveLength sets the number of rounds of a wave.
func (b *Builder) WithWaveLength(waveLength dag.Round) *Builder {
	b.waveLength = waveLength
	return b
}

// WithNumberOfLeaders sets the number of leaders per leader round.
func (b *Builder) WithNumberOfLeaders(n int) *Builder {
	b.numberOfLeaders = n
	return b
}

// WithPipeline makes every round a leader round, with one pipeline stage per
// round offset of the wave.
func (b *Builder) WithPipeline(pipeline bool) *Builder {
	b.pipeline = pipeline
	return b
}

// WithMetrics sets the collectors updated by the committer. Counting assumes
// the lastDecided cursor advances between calls to TryCommit.
func (b *Builder) WithMetrics(m *Metrics) *Builder {
	b.metrics = m
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(logger *logrus.Entry) *Builder {
	b.logger = logger
	return b
}

// Build creates the UniversalCommitter. Committers are registered by round
// offset, then by leader offset.
func (b *Builder) Build() (*UniversalCommitter, error) {
	if b.waveLength < MinimumWaveLength {
		return nil, fmt.Errorf("%w: %d is below %d", ErrInvalidWaveLength, b.waveLength, MinimumWaveLength)
	}
	if b.numberOfLeaders < 1 || b.numberOfLeaders > b.committee.Size() {
		return nil, fmt.Errorf("%w: %d with a committee of %d", ErrInvalidNumberOfLeaders, b.numberOfLeaders, b.committee.Size())
	}

	logger := b.logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	stages := dag.Round(1)
	if b.pipeline {
		stages = b.waveLength
	}

	committers := []*BaseCommitter{}
	for roundOffset := dag.Round(0); roundOffset < stages; roundOffset++ {
		for leaderOffset := 0; leaderOffset < b.numberOfLeaders; leaderOffset++ {
			options := BaseCommitterOptions{
				WaveLength:   b.waveLength,
				RoundOffset:  roundOffset,
				LeaderOffset: uint32(leaderOffset),
			}
			committers = append(committers,
				NewBaseCommitter(b.committee, b.dag, b.schedule, options, logger))
		}
	}

	logger.WithFields(logrus.Fields{
		"wave_length": b.waveLength,
		"leaders":     b.numberOfLeaders,
		"pipeline":    b.pipeline,
		"committers":  len(committers),
	}).Debug("Build UniversalCommitter")

	return &UniversalCommitter{
		committee:  b.committee,
		dag:        b.dag,
		committers: committers,
		metrics:    b.metrics,
		logger:     logger,
	}, nil
}
