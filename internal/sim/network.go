// Package sim provides an in-memory replay network for exercising the dkg
// package's state machine the way an external synchronous transport would:
// every message is delivered to every node, including its own sender, in one
// fixed order agreed by all of them (see spec.md §1, §5). It has no
// goroutines or I/O; it exists to drive deterministic end-to-end scenarios
// from tests and from cmd/dkgsim.
package sim

import (
	"crypto/cipher"
	"fmt"

	"github.com/drand/kyber"

	"github.com/drand/syncdkg/dkg"
	"github.com/drand/syncdkg/internal/log"
	"github.com/drand/syncdkg/internal/roster"
	"github.com/drand/syncdkg/metrics"
	"github.com/drand/syncdkg/poly"
)

// Participant is one node in the simulated network.
type Participant struct {
	ID      string
	KeyGen  *dkg.KeyGen
	Faults  dkg.FaultLog
	propose *dkg.Propose
}

// Network drives a single synchronous DKG epoch for every participant in
// lock-step: all Proposes are delivered to everyone in roster order, then
// all Accepts those Proposes produced are delivered in the order they were
// produced, and so on until no participant produces a new Accept.
type Network struct {
	Roster       *roster.Roster
	Participants []*Participant

	log log.Logger
}

// New constructs a Network, running NewKeyGen for each validator's id in
// secKeys (keyed by node id) plus one KeyGen per extra observer id. rng
// supplies fresh randomness per validator, in roster order.
func New(
	suite poly.Suite,
	rost *roster.Roster,
	secKeys map[string]kyber.Scalar,
	threshold int,
	observerIDs []string,
	rng cipher.Stream,
	logger log.Logger,
) (*Network, error) {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	net := &Network{Roster: rost, log: logger.Named("sim")}

	ids := make([]string, 0, len(rost.Nodes)+len(observerIDs))
	for _, n := range rost.Nodes {
		ids = append(ids, n.ID)
	}
	ids = append(ids, observerIDs...)

	for _, id := range ids {
		sk, ok := secKeys[id]
		if !ok {
			return nil, fmt.Errorf("sim: missing secret key for %q", id)
		}
		kg, propose, err := dkg.NewKeyGen(suite, id, sk, rost, threshold, rng, logger)
		if err != nil {
			return nil, fmt.Errorf("sim: constructing keygen for %q: %w", id, err)
		}
		net.Participants = append(net.Participants, &Participant{ID: id, KeyGen: kg, propose: propose})
	}
	return net, nil
}

// Run delivers every validator's Propose, then every Accept it produces,
// transitively, until a round produces nothing new. It returns once the
// network has quiesced; callers should check IsReady/CountComplete on the
// returned participants to decide whether the epoch succeeded.
func (n *Network) Run() {
	var proposes []proposeMsg
	for _, p := range n.Participants {
		if p.propose != nil {
			proposes = append(proposes, proposeMsg{from: p.ID, msg: p.propose})
		}
	}

	accepts := n.deliverProposes(proposes)
	for len(accepts) > 0 {
		accepts = n.deliverAccepts(accepts)
	}
}

type proposeMsg struct {
	from string
	msg  *dkg.Propose
}

type acceptMsg struct {
	from string
	msg  *dkg.Accept
}

func (n *Network) deliverProposes(msgs []proposeMsg) []acceptMsg {
	var next []acceptMsg
	for _, m := range msgs {
		for _, p := range n.Participants {
			outcome := p.KeyGen.HandlePropose(m.from, m.msg)
			if outcome == nil {
				continue
			}
			if !outcome.Faults.IsEmpty() {
				p.Faults = append(p.Faults, outcome.Faults...)
				recordFaults(outcome.Faults)
				n.log.Warnw("fault handling propose", "observer", p.ID, "from", m.from)
				continue
			}
			if outcome.Accept != nil {
				next = append(next, acceptMsg{from: p.ID, msg: outcome.Accept})
			}
		}
	}
	return next
}

func (n *Network) deliverAccepts(msgs []acceptMsg) []acceptMsg {
	// Accepts never produce further Accepts; any additional messages
	// produced while delivering this round come strictly from callers
	// re-invoking Run, so this always quiesces after one pass.
	for _, m := range msgs {
		for _, p := range n.Participants {
			faults := p.KeyGen.HandleAccept(m.from, m.msg)
			if !faults.IsEmpty() {
				p.Faults = append(p.Faults, faults...)
				recordFaults(faults)
				n.log.Warnw("fault handling accept", "observer", p.ID, "from", m.from)
			}
			recordProgress(p.KeyGen)
		}
	}
	return nil
}

// recordFaults feeds every fault this epoch observes into FaultCounter,
// broken down by kind, the way drand's metrics package tallies beacon
// submission failures.
func recordFaults(faults dkg.FaultLog) {
	for _, f := range faults {
		metrics.FaultCounter.WithLabelValues(f.Kind.String()).Inc()
	}
}

// recordProgress reflects a single participant's current completion count
// and readiness into the process-wide gauges. Set overwrites rather than
// accumulates, so ProposalsComplete holds the view of whichever participant
// was recorded last. Ready is only ever raised to 1, never reset to 0, so it
// reads 1 once any participant has been recorded as ready.
func recordProgress(kg *dkg.KeyGen) {
	metrics.ProposalsComplete.Set(float64(kg.CountComplete()))
	if kg.IsReady() {
		metrics.Ready.Set(1)
	}
}
