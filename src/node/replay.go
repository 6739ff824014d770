package node

import (
	"errors"
	"fmt"

	"github.com/mosaicnetworks/dagbft/src/dag"
)

// ErrCommitMismatch is returned by CompareCommits.
var ErrCommitMismatch = errors.New("commit sequences differ")

// Replay feeds the blocks of source to core, one round at a time, and tries to
// commit after each round. It returns the sub-DAGs committed along the way.
// The core should be backed by an empty store.
func Replay(source dag.Store, core *Core) ([]*CommittedSubDag, error) {
	res := []*CommittedSubDag{}

	for r := dag.Round(1); r <= source.HighestAcceptedRound(); r++ {
		if err := core.AddBlocks(source.BlocksAtRound(r)); err != nil {
			return res, fmt.Errorf("round %d: %w", r, err)
		}

		subDags, err := core.TryCommit()
		res = append(res, subDags...)
		if err != nil {
			return res, err
		}
	}

	if n := core.PendingBlocks(); n > 0 {
		return res, fmt.Errorf("%d blocks have missing ancestors", n)
	}

	return res, nil
}

// CompareCommits checks that the shorter of two commit sequences is a prefix
// of the other. Only the decisions are compared: the leader slot, whether it
// was skipped, and the committed block.
func CompareCommits(a, b []*dag.Commit) error {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		x, y := a[i], b[i]
		if x.Index != y.Index || x.Leader != y.Leader || x.Skipped != y.Skipped || x.Block != y.Block {
			return fmt.Errorf("%w: %v and %v", ErrCommitMismatch, x, y)
		}
	}
	return nil
}
