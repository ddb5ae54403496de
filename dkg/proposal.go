package dkg

import (
	"github.com/drand/kyber"

	"github.com/drand/syncdkg/poly"
)

// proposalState tracks, for a single proposer, the commitment it published
// and what has been verified about it so far. It holds no cryptographic
// logic of its own: all verification happens in KeyGen before a mutation is
// applied here.
type proposalState struct {
	// commit is the proposer's bivariate commitment.
	commit *poly.BivarCommitment
	// values maps a sender's biased position (sender index + 1) to the
	// scalar that sender revealed to us from this proposer's column,
	// once verified against commit.
	values map[int64]kyber.Scalar
	// valueOrder preserves the order values were inserted in, so that
	// "the lowest t+1" can be taken deterministically by key rather than
	// by map iteration order.
	valueOrder []int64
	// accepts is the set of sender indices who emitted a syntactically
	// well-formed Accept for this proposer, whether or not the value
	// decrypted for us was valid.
	accepts map[uint32]bool
}

func newProposalState(commit *poly.BivarCommitment) *proposalState {
	return &proposalState{
		commit:  commit,
		values:  make(map[int64]kyber.Scalar),
		accepts: make(map[uint32]bool),
	}
}

// isComplete reports whether at least 2t+1 nodes have accepted.
func (p *proposalState) isComplete(t int) bool {
	return len(p.accepts) > 2*t
}

// recordAccept registers sender as having accepted this proposal. It
// returns false if sender had already accepted (a fault: duplicate
// acceptor).
func (p *proposalState) recordAccept(sender uint32) bool {
	if p.accepts[sender] {
		return false
	}
	p.accepts[sender] = true
	return true
}

// recordValue stores a verified scalar revealed by sender (biased by +1).
func (p *proposalState) recordValue(senderBiased int64, v kyber.Scalar) {
	if _, exists := p.values[senderBiased]; !exists {
		p.valueOrder = append(p.valueOrder, senderBiased)
	}
	p.values[senderBiased] = v
}

// lowestValues returns up to n (point, value) pairs, sorted by ascending
// point, for use in interpolation.
func (p *proposalState) lowestValues(n int) ([]int64, []kyber.Scalar) {
	xs := make([]int64, len(p.valueOrder))
	copy(xs, p.valueOrder)
	// simple insertion sort: n and the number of peers are both small.
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
	if len(xs) > n {
		xs = xs[:n]
	}
	ys := make([]kyber.Scalar, len(xs))
	for i, x := range xs {
		ys[i] = p.values[x]
	}
	return xs, ys
}
