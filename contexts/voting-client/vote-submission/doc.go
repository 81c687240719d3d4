// Package votesubmission casts ballot votes for one participant of a live
// poll inside the voting-client context.
//
// The module owns quota reconciliation, split voting, batched and bulk vote
// dispatch with retry, poll-closure handling and resumable progress. Business
// rules stay in application/domain layers; the vote backend, progress storage
// and event bus sit behind ports and adapters.
package votesubmission
