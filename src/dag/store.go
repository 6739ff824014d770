package dag

// Store is an interface for backend stores.
type Store interface {
	// CacheSize returns the maximum number of commits kept in memory.
	CacheSize() int
	// HighestAcceptedRound returns the highest round of any accepted block.
	HighestAcceptedRound() Round
	// GetBlock returns an accepted block by reference.
	GetBlock(ref BlockRef) (*Block, error)
	// Contains returns true if the block was accepted.
	Contains(ref BlockRef) bool
	// BlocksAtSlot returns all the blocks accepted at a slot, sorted by
	// reference. There is more than one if the author equivocated.
	BlocksAtSlot(slot Slot) []*Block
	// BlocksAtRound returns all the blocks accepted at a round, sorted by
	// reference.
	BlocksAtRound(round Round) []*Block
	// AncestorsAtRound returns the blocks at round that are in the causal
	// history of block, sorted by reference.
	AncestorsAtRound(block *Block, round Round) []*Block
	// AcceptBlock inserts a block whose ancestors are all present.
	AcceptBlock(block *Block) error
	// SetCommitted marks a block as part of the committed output.
	SetCommitted(ref BlockRef) error
	// IsCommitted returns true if SetCommitted was called for the block.
	IsCommitted(ref BlockRef) bool
	// GetCommit returns a commit by index.
	GetCommit(index int) (*Commit, error)
	// SetCommit appends a commit. Its index must follow LastCommitIndex.
	SetCommit(commit *Commit) error
	// LastCommitIndex returns the index of the last commit, or -1.
	LastCommitIndex() int
	// Close closes the underlying database, if any.
	Close() error
	// StorePath returns the path of the underlying database, if any.
	StorePath() string
}
