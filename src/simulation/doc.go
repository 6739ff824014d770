// Package simulation runs several validators over one randomly generated DAG
// and checks that their commit sequences agree.
//
// A global DAG is generated round by round. Honest authorities produce one
// block per round, linking to a random subset of the previous round that
// always carries a stake quorum. Byzantine authorities equivocate, link to
// arbitrary subsets, or stay silent. Every honest authority then gets its own
// causally closed view of the DAG, of a different height and with a different
// frontier, and runs a UniversalCommitter over it the way a node would: one
// round at a time, resuming from its last decided leader.
//
// Run returns the sequence of every validator; Result.CheckAgreement verifies
// that any two sequences agree on every slot they both decided.
package simulation
