// Package node implements the consensus driver of a dagbft validator.
//
// The UniversalCommitter in the commit package is a pure function of the
// blocks in a store. This package is the caller around it: it accepts blocks,
// decides when to try committing, and turns the decided leaders into a
// durable, ordered output.
//
// Core
//
// Core verifies incoming blocks and accepts them into a dag.Store. Blocks may
// arrive in any order; those whose ancestors are not yet known wait in a
// pending buffer and are accepted as soon as the ancestors are. TryCommit runs
// the UniversalCommitter from the last decided leader, and records every
// decision, committed or skipped, as a dag.Commit. Skipped leaders are part of
// the commit sequence so that it has no gaps and its last entry is always the
// last decided leader, which is what Recover reads back after a restart.
//
// Linearization
//
// Each committed leader yields a CommittedSubDag: the blocks of the leader's
// causal history that no earlier leader committed, sorted by round, then
// author, then digest. Genesis blocks are never part of the output, and the
// leader always comes last. Sub-DAGs are handed to the CommitHandler in
// commit order.
//
// Node
//
// Node runs a Core in its own goroutine. Blocks submitted with SubmitBlocks
// are queued and accepted by the run loop, and a ControlTimer paces the
// commit attempts. A node is Running, Suspended, or Shutdown. A suspended node
// keeps accepting blocks but does not commit them; it starts in that state
// when the configuration enables maintenance mode.
//
// Replay
//
// Replay feeds the blocks of an existing store to a fresh Core, one round at
// a time, and CompareCommits checks the resulting commit sequence against the
// persisted one.
package node
