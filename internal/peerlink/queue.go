package peerlink

import "github.com/pion/webrtc/v4"

// maxCandidateAttempts bounds how often a failing candidate is
// re-queued before it is dropped for good.
const maxCandidateAttempts = 3

type pendingCandidate struct {
	candidate webrtc.ICECandidateInit
	attempts  int
}

// candidateQueue buffers remote ICE candidates that arrive before the
// link's remote description is set. Candidates whose application fails
// after the flush are re-queued up to maxCandidateAttempts.
type candidateQueue struct {
	pending []pendingCandidate
}

// add queues a fresh candidate.
func (q *candidateQueue) add(c webrtc.ICECandidateInit) {
	q.pending = append(q.pending, pendingCandidate{candidate: c})
}

// requeue puts a failed candidate back unless it has exhausted its
// attempts. Reports whether the candidate was kept.
func (q *candidateQueue) requeue(p pendingCandidate) bool {
	p.attempts++
	if p.attempts >= maxCandidateAttempts {
		return false
	}
	q.pending = append(q.pending, p)
	return true
}

// drain empties the queue and returns its contents in arrival order.
func (q *candidateQueue) drain() []pendingCandidate {
	drained := q.pending
	q.pending = nil
	return drained
}

func (q *candidateQueue) len() int {
	return len(q.pending)
}
