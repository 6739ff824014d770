package commit

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/dag"
)

// BaseCommitterOptions configures one pipeline stage.
type BaseCommitterOptions struct {
	// WaveLength is the number of rounds of a wave, at least
	// MinimumWaveLength.
	WaveLength dag.Round
	// RoundOffset shifts the waves of this stage.
	RoundOffset dag.Round
	// LeaderOffset selects the candidate of the leader schedule.
	LeaderOffset uint32
}

// BaseCommitter decides the leader slots of one pipeline stage.
type BaseCommitter struct {
	committee *committee.Committee
	dag       DagView
	schedule  LeaderSchedule
	options   BaseCommitterOptions
	logger    *logrus.Entry
}

// NewBaseCommitter creates a BaseCommitter.
func NewBaseCommitter(c *committee.Committee,
	dagView DagView,
	schedule LeaderSchedule,
	options BaseCommitterOptions,
	logger *logrus.Entry) *BaseCommitter {

	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	committer := &BaseCommitter{
		committee: c,
		dag:       dagView,
		schedule:  schedule,
		options:   options,
	}
	committer.logger = logger.WithField("committer", committer.String())

	return committer
}

// Options returns the configuration of the committer.
func (b *BaseCommitter) Options() BaseCommitterOptions {
	return b.options
}

func (b *BaseCommitter) String() string {
	return fmt.Sprintf("Committer-L%d-R%d", b.options.LeaderOffset, b.options.RoundOffset)
}

func (b *BaseCommitter) waveNumber(round dag.Round) dag.Round {
	if round < b.options.RoundOffset {
		return 0
	}
	return (round - b.options.RoundOffset) / b.options.WaveLength
}

func (b *BaseCommitter) leaderRound(wave dag.Round) dag.Round {
	return wave*b.options.WaveLength + b.options.RoundOffset
}

func (b *BaseCommitter) decisionRound(wave dag.Round) dag.Round {
	return wave*b.options.WaveLength + b.options.WaveLength - 1 + b.options.RoundOffset
}

// ElectLeader returns the leader slot of round, and false if round is not a
// leader round of this committer.
func (b *BaseCommitter) ElectLeader(round dag.Round) (dag.Slot, bool) {
	wave := b.waveNumber(round)
	if b.leaderRound(wave) != round {
		return dag.Slot{}, false
	}
	return dag.NewSlot(round, b.schedule.ElectLeader(round, b.options.LeaderOffset)), true
}

// TryDirectDecide applies the direct decision rule to a leader slot.
func (b *BaseCommitter) TryDirectDecide(leader dag.Slot) LeaderStatus {
	decisionRound := b.decisionRound(b.waveNumber(leader.Round))

	// blame and votes are counted at the same round
	if b.enoughLeaderBlame(decisionRound-1, leader) {
		return SkipStatus(leader)
	}

	supported := []*dag.Block{}
	for _, leaderBlock := range b.dag.BlocksAtSlot(leader) {
		if b.enoughLeaderSupport(decisionRound, leaderBlock) {
			supported = append(supported, leaderBlock)
		}
	}

	if len(supported) > 1 {
		panic(fmt.Sprintf("[%v] more than one certified block for leader slot %v: %v", b, leader, supported))
	}

	if len(supported) == 1 {
		return CommitStatus(supported[0])
	}

	return UndecidedStatus(leader)
}

// TryIndirectDecide decides a leader slot from the statuses of leaders at
// higher rounds, ordered by increasing round. The first committed leader at
// least one wave above the slot is the anchor; skipped leaders before it are
// passed over, and an undecided one leaves the slot undecided.
func (b *BaseCommitter) TryIndirectDecide(leader dag.Slot, later []LeaderStatus) LeaderStatus {
	for _, anchor := range later {
		if anchor.Round() < leader.Round+b.options.WaveLength {
			continue
		}
		switch anchor.Kind {
		case Committed:
			return b.decideLeaderFromAnchor(anchor.Block, leader)
		case Skipped:
			continue
		default:
			return UndecidedStatus(leader)
		}
	}
	return UndecidedStatus(leader)
}

// decideLeaderFromAnchor commits the leader slot if a certificate for one of
// its blocks is in the causal history of the anchor, and skips it otherwise.
func (b *BaseCommitter) decideLeaderFromAnchor(anchor *dag.Block, leader dag.Slot) LeaderStatus {
	decisionRound := b.decisionRound(b.waveNumber(leader.Round))
	potentialCertificates := b.dag.AncestorsAtRound(anchor, decisionRound)

	certified := []*dag.Block{}
	for _, leaderBlock := range b.dag.BlocksAtSlot(leader) {
		allVotes := make(map[dag.BlockRef]bool)
		for _, cert := range potentialCertificates {
			if b.isCertificate(cert, leaderBlock, allVotes) {
				certified = append(certified, leaderBlock)
				break
			}
		}
	}

	if len(certified) > 1 {
		panic(fmt.Sprintf("[%v] more than one certified block for leader slot %v: %v", b, leader, certified))
	}

	if len(certified) == 1 {
		return CommitStatus(certified[0])
	}

	return SkipStatus(leader)
}

// enoughLeaderBlame returns true if a quorum of blocks at the voting round
// support no block of the leader slot.
func (b *BaseCommitter) enoughLeaderBlame(votingRound dag.Round, leader dag.Slot) bool {
	blame := committee.NewQuorumAggregator(b.committee)
	visited := make(map[dag.BlockRef]bool)
	for _, votingBlock := range b.dag.BlocksAtRound(votingRound) {
		if _, ok := b.findSupportedBlock(leader, votingBlock, visited); !ok {
			if blame.Add(votingBlock.Author()) {
				return true
			}
		}
	}
	return false
}

// enoughLeaderSupport returns true if a quorum of blocks at the decision round
// are certificates for the leader block.
func (b *BaseCommitter) enoughLeaderSupport(decisionRound dag.Round, leaderBlock *dag.Block) bool {
	decisionBlocks := b.dag.BlocksAtRound(decisionRound)

	// quick check before walking the DAG
	total := committee.NewQuorumAggregator(b.committee)
	for _, d := range decisionBlocks {
		total.Add(d.Author())
	}
	if !total.Reached() {
		return false
	}

	certificates := committee.NewQuorumAggregator(b.committee)
	allVotes := make(map[dag.BlockRef]bool)
	for _, d := range decisionBlocks {
		if b.isCertificate(d, leaderBlock, allVotes) {
			b.logger.WithFields(logrus.Fields{
				"certificate": d.Reference(),
				"leader":      leaderBlock.Reference(),
			}).Debug("Certificate")
			if certificates.Add(d.Author()) {
				return true
			}
		}
	}
	return false
}

// isCertificate returns true if the ancestors of the block include a quorum of
// votes for the leader block. allVotes caches the votes already checked for
// this leader block.
func (b *BaseCommitter) isCertificate(potentialCertificate *dag.Block,
	leaderBlock *dag.Block,
	allVotes map[dag.BlockRef]bool) bool {

	votes := committee.NewQuorumAggregator(b.committee)
	for _, ref := range potentialCertificate.Ancestors() {
		isVote, ok := allVotes[ref]
		if !ok {
			isVote = b.isVote(b.getBlock(ref), leaderBlock)
			allVotes[ref] = isVote
		}
		if isVote && votes.Add(ref.Author) {
			return true
		}
	}
	return false
}

// isVote returns true if the block supports the leader block.
func (b *BaseCommitter) isVote(potentialVote *dag.Block, leaderBlock *dag.Block) bool {
	ref := leaderBlock.Reference()
	supported, ok := b.findSupportedBlock(ref.Slot(), potentialVote, make(map[dag.BlockRef]bool))
	return ok && supported == ref
}

// findSupportedBlock returns the first block at the leader slot found by a
// depth-first walk of the ancestors of from. visited holds the blocks already
// walked without success.
func (b *BaseCommitter) findSupportedBlock(leader dag.Slot,
	from *dag.Block,
	visited map[dag.BlockRef]bool) (dag.BlockRef, bool) {

	if from.Round() < leader.Round {
		return dag.BlockRef{}, false
	}

	for _, ref := range from.Ancestors() {
		if ref.Slot() == leader {
			return ref, true
		}
		// links may point below the leader round
		if ref.Round <= leader.Round || visited[ref] {
			continue
		}
		if support, ok := b.findSupportedBlock(leader, b.getBlock(ref), visited); ok {
			return support, true
		}
		visited[ref] = true
	}

	return dag.BlockRef{}, false
}

func (b *BaseCommitter) getBlock(ref dag.BlockRef) *dag.Block {
	block, err := b.dag.GetBlock(ref)
	if err != nil {
		panic(fmt.Sprintf("[%v] ancestor %v of an accepted block is missing: %v", b, ref, err))
	}
	return block
}
