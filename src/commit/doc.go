// Package commit decides which leader blocks of the DAG are committed.
//
// The decision is made by local inspection of the DAG only, with no extra
// round of communication. Rounds are grouped in waves of WaveLength rounds.
// The first round of a wave holds a leader slot, elected by the leader
// schedule; the round before the last votes for it, and the last round of
// the wave certifies the votes. With the default wave of 3 rounds, votes are
// cast right after the leader round.
//
// A block votes for a leader block if it is the first block at the leader
// slot found by a depth-first walk of its ancestors. A block at the decision
// round is a certificate if its ancestors include a quorum, by stake, of votes
// for the same leader block.
//
// The direct rule skips a leader slot when a quorum of voting blocks support
// none of its blocks, and commits a leader block when a quorum of decision blocks
// are certificates for it. Otherwise the slot is undecided, and the indirect
// rule looks at the nearest committed leader of a later wave (the anchor): the
// slot is committed if a certificate for one of its blocks is in the causal
// history of the anchor, and skipped otherwise. Quorum intersection ensures
// that both rules agree across all correct authorities.
//
// A BaseCommitter applies these rules to the leader slots of one pipeline
// stage: a round offset and a leader offset. The UniversalCommitter combines
// several base committers into a single ordered sequence of decided leaders,
// and is assembled by a Builder.
package commit
