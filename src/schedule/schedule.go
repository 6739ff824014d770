package schedule

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/dag"
)

// Names of the schedules accepted by New.
const (
	RoundRobinName    = "round-robin"
	StakeWeightedName = "stake-weighted"
)

// Schedule elects the leader authority of a round. leaderOffset selects the
// i-th candidate when there are several leaders per round; it must be lower
// than the committee size.
type Schedule interface {
	ElectLeader(round dag.Round, leaderOffset uint32) committee.AuthorityIndex
}

// New returns the schedule with the given name.
func New(name string, c *committee.Committee) (Schedule, error) {
	switch name {
	case RoundRobinName:
		return NewRoundRobin(c), nil
	case StakeWeightedName, "":
		return NewStakeWeighted(c), nil
	default:
		return nil, fmt.Errorf("unknown leader schedule %q", name)
	}
}

// RoundRobin rotates through authorities in index order, ignoring stake.
type RoundRobin struct {
	committee *committee.Committee
}

// NewRoundRobin creates a RoundRobin schedule.
func NewRoundRobin(c *committee.Committee) *RoundRobin {
	return &RoundRobin{committee: c}
}

// ElectLeader implements the Schedule interface.
func (r *RoundRobin) ElectLeader(round dag.Round, leaderOffset uint32) committee.AuthorityIndex {
	n := uint64(r.committee.Size())
	return committee.AuthorityIndex((uint64(round) + uint64(leaderOffset)) % n)
}

// StakeWeighted draws, for every round, a random permutation of the
// authorities where each position is filled with probability proportional to
// stake, and returns the leaderOffset-th element. The permutation is seeded by
// the round only, so that every authority computes the same one.
type StakeWeighted struct {
	committee *committee.Committee
}

// NewStakeWeighted creates a StakeWeighted schedule.
func NewStakeWeighted(c *committee.Committee) *StakeWeighted {
	return &StakeWeighted{committee: c}
}

// ElectLeader implements the Schedule interface.
func (s *StakeWeighted) ElectLeader(round dag.Round, leaderOffset uint32) committee.AuthorityIndex {
	if int(leaderOffset) >= s.committee.Size() {
		panic(fmt.Sprintf("leader offset %d out of range for committee of size %d", leaderOffset, s.committee.Size()))
	}

	var seed [32]byte
	binary.LittleEndian.PutUint32(seed[28:], uint32(round))
	rng := rand.New(rand.NewChaCha8(seed))

	candidates := s.committee.Indexes()
	remaining := s.committee.TotalStake()
	for i := 0; ; i++ {
		pick := committee.Stake(rng.Uint64N(uint64(remaining)))
		j := i
		for ; j < len(candidates)-1; j++ {
			stake := s.committee.Stake(candidates[j])
			if pick < stake {
				break
			}
			pick -= stake
		}
		if i == int(leaderOffset) {
			return candidates[j]
		}
		remaining -= s.committee.Stake(candidates[j])
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}
}
