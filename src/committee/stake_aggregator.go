package committee

// StakeAggregator accumulates the stake of distinct authorities until a
// threshold is reached. Adding the same authority twice has no effect, which
// makes it safe to feed with blocks from equivocating authorities.
type StakeAggregator struct {
	committee *Committee
	threshold Stake
	votes     map[AuthorityIndex]struct{}
	stake     Stake
}

// NewQuorumAggregator returns a StakeAggregator that reaches its threshold at
// QuorumThreshold.
func NewQuorumAggregator(c *Committee) *StakeAggregator {
	return newStakeAggregator(c, c.QuorumThreshold())
}

// NewValidityAggregator returns a StakeAggregator that reaches its threshold
// at ValidityThreshold.
func NewValidityAggregator(c *Committee) *StakeAggregator {
	return newStakeAggregator(c, c.ValidityThreshold())
}

func newStakeAggregator(c *Committee, threshold Stake) *StakeAggregator {
	return &StakeAggregator{
		committee: c,
		threshold: threshold,
		votes:     make(map[AuthorityIndex]struct{}),
	}
}

// Add counts the stake of authority i, once. It returns true if the
// accumulated stake has reached the threshold.
func (s *StakeAggregator) Add(i AuthorityIndex) bool {
	if _, ok := s.votes[i]; !ok {
		s.votes[i] = struct{}{}
		s.stake += s.committee.Stake(i)
	}
	return s.Reached()
}

// Reached returns true if the accumulated stake has reached the threshold.
func (s *StakeAggregator) Reached() bool {
	return s.stake >= s.threshold
}

// Stake returns the accumulated stake.
func (s *StakeAggregator) Stake() Stake {
	return s.stake
}

// Clear resets the aggregator.
func (s *StakeAggregator) Clear() {
	s.votes = make(map[AuthorityIndex]struct{})
	s.stake = 0
}
