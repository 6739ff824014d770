// Package committee defines the set of authorities taking part in consensus
// during an epoch, together with their voting power.
//
// An authority is identified by its index in the committee and, optionally, by
// its secp256k1 public key. Every authority carries a positive stake. A quorum
// is any set of authorities whose combined stake strictly exceeds two-thirds of
// the total stake, so that any two quorums intersect in at least one honest
// authority as long as less than one third of the stake is Byzantine.
//
// The committee is fixed for the lifetime of an epoch. It is loaded from a
// committee.json file in the data directory, or built programmatically with
// NewTestCommittee for tests and simulations.
package committee
