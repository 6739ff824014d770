package commit

import (
	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/dag"
)

// DagView is the read-only access to the DAG needed to decide leaders.
// dag.Store implements it. Every block returned must have all its ancestors
// available through GetBlock.
type DagView interface {
	HighestAcceptedRound() dag.Round
	GetBlock(ref dag.BlockRef) (*dag.Block, error)
	BlocksAtSlot(slot dag.Slot) []*dag.Block
	BlocksAtRound(round dag.Round) []*dag.Block
	AncestorsAtRound(block *dag.Block, round dag.Round) []*dag.Block
}

// LeaderSchedule elects the leader of a round. It must be deterministic and
// identical across all authorities of the epoch.
type LeaderSchedule interface {
	ElectLeader(round dag.Round, leaderOffset uint32) committee.AuthorityIndex
}
