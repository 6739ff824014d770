package node

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/dagbft/src/commit"
	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/common"
	"github.com/mosaicnetworks/dagbft/src/dag"
)

// CommittedSubDag is the output of a committed leader: the leader block and
// the blocks of its causal history that no earlier leader committed, ordered
// by round, then author, then digest. The leader is always the last block.
type CommittedSubDag struct {
	// Index is the index of the commit record in the store.
	Index  int
	Leader *dag.Block
	Blocks []*dag.Block
}

// Refs returns the references of the blocks, in order.
func (s *CommittedSubDag) Refs() []dag.BlockRef {
	res := make([]dag.BlockRef, len(s.Blocks))
	for i, b := range s.Blocks {
		res[i] = b.Reference()
	}
	return res
}

// Transactions returns the transactions of the blocks, in order.
func (s *CommittedSubDag) Transactions() [][]byte {
	res := [][]byte{}
	for _, b := range s.Blocks {
		res = append(res, b.Transactions()...)
	}
	return res
}

func (s *CommittedSubDag) String() string {
	return fmt.Sprintf("#%d %v (%d blocks)", s.Index, s.Leader.Reference(), len(s.Blocks))
}

// CommitHandler is called with every committed sub-DAG, in order.
type CommitHandler func(*CommittedSubDag) error

// Core is the consensus driver. It accepts blocks into the store, runs the
// UniversalCommitter, and turns the decided leaders into a durable commit
// sequence. Core is not safe for concurrent use; Node serializes access.
type Core struct {
	committee *committee.Committee
	store     dag.Store
	verifier  *dag.Verifier
	committer *commit.UniversalCommitter

	// lastDecided is the slot of the last decided leader, committed or
	// skipped. It is the genesis slot of authority 0 until the first decision.
	lastDecided dag.Slot

	// pending holds verified blocks that arrived before some of their
	// ancestors. They are accepted as soon as the ancestors are.
	pending map[dag.BlockRef]*dag.Block

	// commits caches the most recent commit records for CommitsSince.
	commits *common.RollingIndex[*dag.Commit]

	committedBlocks int

	commitHandler CommitHandler

	logger *logrus.Entry
}

// NewCore creates a Core. commitHandler may be nil.
func NewCore(c *committee.Committee,
	store dag.Store,
	committer *commit.UniversalCommitter,
	commitHandler CommitHandler,
	logger *logrus.Entry) *Core {

	return &Core{
		committee:     c,
		store:         store,
		verifier:      dag.NewVerifier(c),
		committer:     committer,
		lastDecided:   dag.NewSlot(dag.GenesisRound, 0),
		pending:       make(map[dag.BlockRef]*dag.Block),
		commits:       common.NewRollingIndex[*dag.Commit]("Commits", store.CacheSize()),
		commitHandler: commitHandler,
		logger:        logger,
	}
}

// Recover resumes from the last commit record of the store.
func (c *Core) Recover() error {
	last := c.store.LastCommitIndex()
	if last < 0 {
		return nil
	}

	record, err := c.store.GetCommit(last)
	if err != nil {
		return fmt.Errorf("recovering last commit: %w", err)
	}
	c.lastDecided = record.Leader

	c.logger.WithFields(logrus.Fields{
		"last_commit":  last,
		"last_decided": c.lastDecided,
	}).Debug("Recover")

	return nil
}

// AddBlocks verifies blocks and accepts them into the store. Blocks that are
// already known are ignored. Blocks with missing ancestors are kept aside
// until the ancestors are accepted. It stops at the first invalid block.
func (c *Core) AddBlocks(blocks []*dag.Block) error {
	for _, block := range blocks {
		if c.store.Contains(block.Reference()) {
			continue
		}

		if err := c.verifier.Verify(block); err != nil {
			c.logger.WithError(err).Warn("Invalid block")
			return err
		}

		if err := c.accept(block); err != nil {
			return err
		}
	}

	return c.acceptPending()
}

func (c *Core) accept(block *dag.Block) error {
	err := c.store.AcceptBlock(block)
	switch {
	case err == nil:
		return nil
	case common.IsStore(err, common.KeyAlreadyExists):
		return nil
	case common.IsStore(err, common.MissingAncestor):
		c.pending[block.Reference()] = block
		return nil
	default:
		return err
	}
}

// acceptPending accepts pending blocks until no more progress is made.
func (c *Core) acceptPending() error {
	for progress := true; progress && len(c.pending) > 0; {
		progress = false
		for ref, block := range c.pending {
			err := c.store.AcceptBlock(block)
			if common.IsStore(err, common.MissingAncestor) {
				continue
			}
			delete(c.pending, ref)
			if err != nil && !common.IsStore(err, common.KeyAlreadyExists) {
				return err
			}
			progress = true
		}
	}
	return nil
}

// TryCommit decides as many leaders as the store allows, records each
// decision as a commit, and hands each committed sub-DAG to the commit
// handler. It returns the sub-DAGs committed by this call.
func (c *Core) TryCommit() ([]*CommittedSubDag, error) {
	res := []*CommittedSubDag{}

	for _, decided := range c.committer.TryDecide(c.lastDecided) {
		status := decided.Status
		index := c.store.LastCommitIndex() + 1

		var (
			record *dag.Commit
			subDag *CommittedSubDag
			err    error
		)

		switch status.Kind {
		case commit.Committed:
			subDag, err = c.linearize(index, status.Block)
			if err != nil {
				return res, err
			}
			record = dag.NewCommit(index, status.Block, subDag.Refs())
		case commit.Skipped:
			record = dag.NewSkippedCommit(index, status.Slot)
		default:
			// TryDecide stops before the first undecided leader
			return res, fmt.Errorf("unexpected undecided leader %v", status.Slot)
		}

		if err := c.store.SetCommit(record); err != nil {
			return res, fmt.Errorf("recording %v: %w", record, err)
		}
		if err := c.commits.Set(record, record.Index); err != nil {
			return res, err
		}
		c.lastDecided = status.Slot

		c.logger.WithFields(logrus.Fields{
			"index":    record.Index,
			"slot":     status.Slot,
			"status":   status.Kind,
			"decision": decided.Decision,
		}).Info("Decided leader")

		if subDag == nil {
			continue
		}

		c.committedBlocks += len(subDag.Blocks)
		res = append(res, subDag)

		if c.commitHandler != nil {
			if err := c.commitHandler(subDag); err != nil {
				c.logger.WithError(err).Error("Commit handler")
				return res, err
			}
		}
	}

	return res, nil
}

// linearize collects the uncommitted causal history of a leader and marks it
// committed. Genesis blocks are never part of the output.
func (c *Core) linearize(index int, leader *dag.Block) (*CommittedSubDag, error) {
	blocks := []*dag.Block{}
	visited := map[dag.BlockRef]bool{leader.Reference(): true}
	stack := []*dag.Block{leader}

	for len(stack) > 0 {
		block := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		blocks = append(blocks, block)

		for _, ref := range block.Ancestors() {
			if visited[ref] || ref.Round == dag.GenesisRound || c.store.IsCommitted(ref) {
				continue
			}
			visited[ref] = true

			ancestor, err := c.store.GetBlock(ref)
			if err != nil {
				return nil, fmt.Errorf("linearizing %v: %w", leader.Reference(), err)
			}
			stack = append(stack, ancestor)
		}
	}

	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Reference().Less(blocks[j].Reference())
	})

	for _, block := range blocks {
		if err := c.store.SetCommitted(block.Reference()); err != nil {
			return nil, err
		}
	}

	return &CommittedSubDag{
		Index:  index,
		Leader: leader,
		Blocks: blocks,
	}, nil
}

// CommitsSince returns the commit records with an index greater than skip.
// Records that are no longer cached by Core are read from the store.
func (c *Core) CommitsSince(skip int) ([]*dag.Commit, error) {
	if _, last := c.commits.GetLastWindow(); last == c.store.LastCommitIndex() {
		res, err := c.commits.Get(skip)
		if err == nil || !common.IsStore(err, common.TooLate) {
			return res, err
		}
	}

	res := []*dag.Commit{}
	for i := skip + 1; i <= c.store.LastCommitIndex(); i++ {
		record, err := c.store.GetCommit(i)
		if err != nil {
			return res, err
		}
		res = append(res, record)
	}
	return res, nil
}

// LastDecided returns the slot of the last decided leader.
func (c *Core) LastDecided() dag.Slot {
	return c.lastDecided
}

// Leaders returns the leader authorities of a round.
func (c *Core) Leaders(round dag.Round) []committee.AuthorityIndex {
	return c.committer.GetLeaders(round)
}

// PendingBlocks returns the number of blocks waiting for their ancestors.
func (c *Core) PendingBlocks() int {
	return len(c.pending)
}

// CommittedBlocks returns the number of blocks committed since Core was
// created.
func (c *Core) CommittedBlocks() int {
	return c.committedBlocks
}
