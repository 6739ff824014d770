package dag

import (
	"fmt"
)

// Commit is an entry of the durable commit sequence: the outcome of one
// decided leader slot. Skipped slots are recorded too, so that the sequence
// has no gaps and the last entry always identifies the last decided leader.
type Commit struct {
	Index   int
	Leader  Slot
	Skipped bool
	Block   BlockRef // zero if Skipped
	// Refs are the blocks linearized by this commit, in order. Empty if
	// Skipped.
	Refs []BlockRef
}

// NewCommit creates a commit for a committed leader block.
func NewCommit(index int, leader *Block, refs []BlockRef) *Commit {
	return &Commit{
		Index:  index,
		Leader: leader.Slot(),
		Block:  leader.Reference(),
		Refs:   refs,
	}
}

// NewSkippedCommit creates a commit for a skipped leader slot.
func NewSkippedCommit(index int, leader Slot) *Commit {
	return &Commit{
		Index:   index,
		Leader:  leader,
		Skipped: true,
	}
}

//Marshal - canonical json encoding of the commit
func (c *Commit) Marshal() ([]byte, error) {
	return marshal(c)
}

// Unmarshal ...
func (c *Commit) Unmarshal(data []byte) error {
	return unmarshal(data, c)
}

func (c *Commit) String() string {
	if c.Skipped {
		return fmt.Sprintf("#%d Skip(%v)", c.Index, c.Leader)
	}
	return fmt.Sprintf("#%d Commit(%v)", c.Index, c.Block)
}
