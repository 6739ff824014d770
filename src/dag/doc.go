// Package dag holds the directed acyclic graph of blocks that authorities
// exchange, and the stores that keep it.
//
// Every block is produced by one authority at one round and references blocks
// from strictly lower rounds. A block is identified by a BlockRef, which
// combines its round, its author, and the SHA256 digest of its body, so that
// the store can keep several blocks for the same (round, author) slot when a
// Byzantine authority equivocates.
//
// The Store only ever grows: blocks are accepted once all their ancestors are
// present, so every accepted block has its complete causal history in the
// store. Readers may therefore query the DAG while new blocks are being
// accepted, and always observe a causally consistent snapshot.
//
// The package also records the durable commit sequence (Commit) produced by
// the consensus driver, and provides a Builder to construct DAGs for tests and
// simulations.
package dag
