package commit

import (
	"fmt"

	"github.com/mosaicnetworks/dagbft/src/dag"
)

// StatusKind is the outcome of a leader decision.
type StatusKind int

const (
	// Undecided means there is not enough information yet.
	Undecided StatusKind = iota
	// Committed means Block is the leader of the slot.
	Committed
	// Skipped means no block will ever be committed for the slot.
	Skipped
)

func (k StatusKind) String() string {
	switch k {
	case Committed:
		return "commit"
	case Skipped:
		return "skip"
	default:
		return "undecided"
	}
}

// LeaderStatus is the decision for a leader slot.
type LeaderStatus struct {
	Kind  StatusKind
	Slot  dag.Slot
	Block *dag.Block // only for Committed
}

// CommitStatus returns the status of a committed leader block.
func CommitStatus(block *dag.Block) LeaderStatus {
	return LeaderStatus{Kind: Committed, Slot: block.Slot(), Block: block}
}

// SkipStatus returns the status of a skipped leader slot.
func SkipStatus(slot dag.Slot) LeaderStatus {
	return LeaderStatus{Kind: Skipped, Slot: slot}
}

// UndecidedStatus returns the status of an undecided leader slot.
func UndecidedStatus(slot dag.Slot) LeaderStatus {
	return LeaderStatus{Kind: Undecided, Slot: slot}
}

// IsDecided returns true for Committed and Skipped.
func (s LeaderStatus) IsDecided() bool {
	return s.Kind != Undecided
}

// Round returns the round of the leader slot.
func (s LeaderStatus) Round() dag.Round {
	return s.Slot.Round
}

func (s LeaderStatus) String() string {
	switch s.Kind {
	case Committed:
		return fmt.Sprintf("Commit(%v)", s.Block.Reference())
	case Skipped:
		return fmt.Sprintf("Skip(%v)", s.Slot)
	default:
		return fmt.Sprintf("Undecided(%v)", s.Slot)
	}
}

// Decision records which rule decided a leader.
type Decision int

const (
	// Direct decisions come from the votes and certificates of the wave.
	Direct Decision = iota
	// Indirect decisions come from a later committed leader.
	Indirect
)

func (d Decision) String() string {
	if d == Indirect {
		return "indirect"
	}
	return "direct"
}

// DecidedLeader is a decided LeaderStatus with the rule that decided it.
type DecidedLeader struct {
	Status   LeaderStatus
	Decision Decision
}
