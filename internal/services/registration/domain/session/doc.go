// Package session models the registration session aggregate.
//
// A session holds the courses a student plans to take in one term. It is
// never stored as a row: its state is the fold of its event stream, and
// commands are decided against that folded state.
//
// The package holds:
//   - the sealed status variants and the aggregate state with its invariants,
//   - a reducer registry used to replay a stream into state,
//   - and deciders that turn commands into events through an ordered
//     validation pipeline where the first violated rule is reported.
package session
