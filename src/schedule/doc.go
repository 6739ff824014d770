// Package schedule implements leader schedules: deterministic functions that
// map a round and a leader offset to the authority expected to propose the
// leader block of that round.
//
// All correct authorities must compute the same schedule for an epoch, so
// schedules depend only on the committee, the round, and data agreed upon
// through consensus, such as reputation scores.
package schedule
