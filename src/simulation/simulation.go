package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mosaicnetworks/dagbft/src/commit"
	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/dag"
	"github.com/mosaicnetworks/dagbft/src/schedule"
)

var (
	// ErrTooManyByzantine is returned when the Byzantine authorities hold a
	// third of the stake or more.
	ErrTooManyByzantine = errors.New("too many byzantine authorities")
	// ErrDisagreement is returned by CheckAgreement.
	ErrDisagreement = errors.New("validators disagree")
)

// Config describes a simulation.
type Config struct {
	CommitteeSize int
	// Byzantine is the number of equivocating authorities, taken from the end
	// of the committee. It must be below a third of the committee.
	Byzantine int
	Rounds    dag.Round
	// LinkProbability is the probability for an honest block to link to each
	// block of the previous round, on top of the quorum it always links to.
	LinkProbability float64
	Seed            uint64

	WaveLength      dag.Round
	NumberOfLeaders int
	Pipeline        bool
	Schedule        string
	CacheSize       int

	// ReputationScores, when set, swap poorly scoring leaders out of the
	// schedule of every validator.
	ReputationScores   []uint64
	SwapStakeThreshold uint64
}

// DefaultConfig returns a four-authority simulation with one Byzantine
// authority.
func DefaultConfig() Config {
	return Config{
		CommitteeSize:   4,
		Byzantine:       1,
		Rounds:          30,
		LinkProbability: 0.8,
		Seed:            1,
		WaveLength:      commit.DefaultWaveLength,
		NumberOfLeaders: 1,
		Pipeline:        true,
		Schedule:        schedule.RoundRobinName,
		CacheSize:       1000,
	}
}

func (c Config) validate() error {
	if c.CommitteeSize < 1 {
		return fmt.Errorf("committee size %d", c.CommitteeSize)
	}
	if c.Byzantine < 0 || 3*c.Byzantine >= c.CommitteeSize {
		return fmt.Errorf("%w: %d of %d", ErrTooManyByzantine, c.Byzantine, c.CommitteeSize)
	}
	if c.Rounds < 1 {
		return fmt.Errorf("rounds %d", c.Rounds)
	}
	if c.WaveLength < commit.MinimumWaveLength {
		return fmt.Errorf("%w: %d", commit.ErrInvalidWaveLength, c.WaveLength)
	}
	if c.LinkProbability < 0 || c.LinkProbability > 1 {
		return fmt.Errorf("link probability %v", c.LinkProbability)
	}
	return nil
}

// Validator is the outcome of one honest validator.
type Validator struct {
	Authority committee.AuthorityIndex
	// Height is the highest round of the validator's view.
	Height dag.Round
	// Blocks is the number of blocks of the view, genesis excluded.
	Blocks   int
	Sequence []commit.LeaderStatus
	// View holds the blocks of the view, sorted by reference.
	View []*dag.Block
}

// Counts returns the number of committed and skipped leaders.
func (v *Validator) Counts() (committed, skipped int) {
	for _, s := range v.Sequence {
		if s.Kind == commit.Committed {
			committed++
		} else {
			skipped++
		}
	}
	return committed, skipped
}

func (v *Validator) String() string {
	statuses := make([]string, len(v.Sequence))
	for i, s := range v.Sequence {
		statuses[i] = s.String()
	}
	return fmt.Sprintf("%v height=%d blocks=%d [%s]", v.Authority, v.Height, v.Blocks, strings.Join(statuses, " "))
}

// Result is the outcome of a simulation.
type Result struct {
	Committee  *committee.Committee
	Byzantine  []committee.AuthorityIndex
	Blocks     int
	Validators []*Validator
}

// Run generates a DAG and runs one committer per honest authority over its
// own view, concurrently.
func Run(ctx context.Context, conf Config, logger *logrus.Entry) (*Result, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}

	stakes := make([]committee.Stake, conf.CommitteeSize)
	for i := range stakes {
		stakes[i] = 1
	}
	c := committee.NewTestCommittee(stakes...)

	rng := rand.New(rand.NewPCG(conf.Seed, conf.Seed+1))
	gen := newGenerator(c, conf.Byzantine, conf.LinkProbability, rng)
	gen.generate(conf.Rounds)

	res := &Result{
		Committee: c,
		Blocks:    len(gen.blocks) - c.Size(),
	}

	for _, a := range c.Indexes() {
		if gen.isByzantine(a) {
			res.Byzantine = append(res.Byzantine, a)
			continue
		}

		lag := dag.Round(rng.IntN(int(min(conf.Rounds, conf.WaveLength))))
		view := gen.view(conf.Rounds - lag)

		res.Validators = append(res.Validators, &Validator{
			Authority: a,
			Height:    conf.Rounds - lag,
			Blocks:    len(view),
			View:      view,
		})
	}

	logger.WithFields(logrus.Fields{
		"committee":  c.Size(),
		"byzantine":  len(res.Byzantine),
		"rounds":     conf.Rounds,
		"blocks":     res.Blocks,
		"seed":       conf.Seed,
		"validators": len(res.Validators),
	}).Debug("Generated DAG")

	g, ctx := errgroup.WithContext(ctx)
	for _, v := range res.Validators {
		g.Go(func() error {
			seq, err := runValidator(ctx, conf, c, v.View, logger.WithField("validator", v.Authority.String()))
			if err != nil {
				return fmt.Errorf("validator %v: %w", v.Authority, err)
			}
			v.Sequence = seq
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return res, nil
}

// runValidator accepts the view one round at a time and tries to commit
// after each round, resuming from the last decided leader.
func runValidator(ctx context.Context,
	conf Config,
	c *committee.Committee,
	view []*dag.Block,
	logger *logrus.Entry) ([]commit.LeaderStatus, error) {

	sched, err := schedule.NewSwapped(conf.Schedule, c, conf.ReputationScores, conf.SwapStakeThreshold)
	if err != nil {
		return nil, err
	}

	store := dag.NewInmemStore(c, conf.CacheSize)
	verifier := dag.NewVerifier(c)

	committer, err := commit.NewBuilder(c, store, sched).
		WithWaveLength(conf.WaveLength).
		WithNumberOfLeaders(conf.NumberOfLeaders).
		WithPipeline(conf.Pipeline).
		WithLogger(logger).
		Build()
	if err != nil {
		return nil, err
	}

	sequence := []commit.LeaderStatus{}
	lastDecided := dag.NewSlot(dag.GenesisRound, 0)

	tryCommit := func() {
		decided := committer.TryCommit(lastDecided)
		if len(decided) > 0 {
			lastDecided = decided[len(decided)-1].Slot
			sequence = append(sequence, decided...)
		}
	}

	round := dag.GenesisRound
	for _, block := range view {
		if block.Round() > round {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			tryCommit()
			round = block.Round()
		}

		if err := verifier.Verify(block); err != nil {
			return nil, err
		}
		if err := store.AcceptBlock(block); err != nil {
			return nil, err
		}
	}
	tryCommit()

	logger.WithFields(logrus.Fields{
		"height":       round,
		"decided":      len(sequence),
		"last_decided": lastDecided,
	}).Debug("Validator done")

	return sequence, nil
}

// CheckAgreement returns an error if two validators decided the same position
// of the sequence differently. Since every validator decides leader slots in
// the same order, this means that the shorter of two sequences is a prefix of
// the longer.
func (r *Result) CheckAgreement() error {
	for i, a := range r.Validators {
		for _, b := range r.Validators[i+1:] {
			n := min(len(a.Sequence), len(b.Sequence))
			for k := 0; k < n; k++ {
				if !sameStatus(a.Sequence[k], b.Sequence[k]) {
					return fmt.Errorf("%w: at position %d, %v has %v and %v has %v",
						ErrDisagreement, k, a.Authority, a.Sequence[k], b.Authority, b.Sequence[k])
				}
			}
		}
	}
	return nil
}

func sameStatus(a, b commit.LeaderStatus) bool {
	if a.Kind != b.Kind || a.Slot != b.Slot {
		return false
	}
	if a.Kind == commit.Committed {
		return a.Block.Reference() == b.Block.Reference()
	}
	return true
}
