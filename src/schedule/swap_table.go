package schedule

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/dag"
)

// SwapTable replaces poorly performing leaders with well performing ones.
//
// It is computed from reputation scores agreed upon through consensus. The
// "good" authorities are the best scoring ones whose cumulative stake does not
// exceed stakeThreshold percent of the total stake; the "bad" authorities are
// selected symmetrically from the worst scores. Whenever the underlying
// schedule elects a bad authority, a good one is drawn instead, seeded by the
// round and leader offset.
type SwapTable struct {
	// Round is the round at which the scores were computed.
	Round dag.Round
	good  []committee.AuthorityIndex
	bad   map[committee.AuthorityIndex]struct{}
}

// NewSwapTable builds a SwapTable from one score per authority.
func NewSwapTable(c *committee.Committee,
	round dag.Round,
	scores []uint64,
	stakeThreshold uint64) (*SwapTable, error) {

	if len(scores) != c.Size() {
		return nil, fmt.Errorf("got %d reputation scores for a committee of size %d", len(scores), c.Size())
	}
	if stakeThreshold > 33 {
		return nil, fmt.Errorf("swap stake threshold %d%% is above 33%%", stakeThreshold)
	}

	byScore := c.Indexes()

	// best first, ties broken by index
	sort.SliceStable(byScore, func(i, j int) bool {
		return scores[byScore[i]] > scores[byScore[j]]
	})
	good := firstWithinStake(c, byScore, stakeThreshold)

	// worst first, ties broken by reverse index
	worst := make([]committee.AuthorityIndex, len(byScore))
	for i, a := range byScore {
		worst[len(byScore)-1-i] = a
	}
	badList := firstWithinStake(c, worst, stakeThreshold)

	bad := make(map[committee.AuthorityIndex]struct{}, len(badList))
	for _, a := range badList {
		bad[a] = struct{}{}
	}
	for _, a := range good {
		if _, ok := bad[a]; ok {
			return nil, fmt.Errorf("authority %v is both good and bad", a)
		}
	}

	return &SwapTable{
		Round: round,
		good:  good,
		bad:   bad,
	}, nil
}

// firstWithinStake returns the longest prefix of authorities whose cumulative
// stake stays within threshold percent of the total stake.
func firstWithinStake(c *committee.Committee, authorities []committee.AuthorityIndex, threshold uint64) []committee.AuthorityIndex {
	limit := committee.Stake(threshold) * c.TotalStake() / 100
	res := []committee.AuthorityIndex{}
	var stake committee.Stake
	for _, a := range authorities {
		stake += c.Stake(a)
		if stake > limit {
			break
		}
		res = append(res, a)
	}
	return res
}

// Good returns the authorities that may replace bad leaders.
func (t *SwapTable) Good() []committee.AuthorityIndex {
	return append([]committee.AuthorityIndex{}, t.good...)
}

// IsBad returns true if the authority would be swapped out.
func (t *SwapTable) IsBad(a committee.AuthorityIndex) bool {
	_, ok := t.bad[a]
	return ok
}

// Swap returns the replacement of leader, and false if it is not swapped.
func (t *SwapTable) Swap(leader committee.AuthorityIndex, round dag.Round, leaderOffset uint32) (committee.AuthorityIndex, bool) {
	if !t.IsBad(leader) || len(t.good) == 0 {
		return leader, false
	}

	var seed [32]byte
	binary.LittleEndian.PutUint32(seed[24:28], uint32(round))
	binary.LittleEndian.PutUint32(seed[28:], leaderOffset)
	rng := rand.New(rand.NewChaCha8(seed))

	return t.good[rng.IntN(len(t.good))], true
}

// Swapped applies a SwapTable to an underlying schedule. The table can be
// replaced at runtime when new reputation scores are agreed upon.
type Swapped struct {
	base Schedule

	mu    sync.RWMutex
	table *SwapTable
}

// WithSwapTable wraps a schedule. A nil table disables swapping.
func WithSwapTable(base Schedule, table *SwapTable) *Swapped {
	return &Swapped{
		base:  base,
		table: table,
	}
}

// NewSwapped builds the named schedule and wraps it with a swap table computed
// from scores. Swapping is disabled while scores is empty.
func NewSwapped(name string,
	c *committee.Committee,
	scores []uint64,
	stakeThreshold uint64) (*Swapped, error) {

	base, err := New(name, c)
	if err != nil {
		return nil, err
	}

	var table *SwapTable
	if len(scores) > 0 {
		table, err = NewSwapTable(c, dag.GenesisRound, scores, stakeThreshold)
		if err != nil {
			return nil, err
		}
	}

	return WithSwapTable(base, table), nil
}

// UpdateTable replaces the swap table.
func (s *Swapped) UpdateTable(table *SwapTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = table
}

// Table returns the current swap table, which may be nil.
func (s *Swapped) Table() *SwapTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// ElectLeader implements the Schedule interface.
func (s *Swapped) ElectLeader(round dag.Round, leaderOffset uint32) committee.AuthorityIndex {
	leader := s.base.ElectLeader(round, leaderOffset)
	table := s.Table()
	if table == nil {
		return leader
	}
	swapped, _ := table.Swap(leader, round, leaderOffset)
	return swapped
}
