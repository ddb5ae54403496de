// Package dkg implements the synchronous, dealerless distributed key
// generation state machine described by the bivariate-polynomial
// commit/reveal protocol: each node proposes a random bivariate polynomial,
// peers verify and re-share their column of it, and once enough proposals
// are complete every node derives a shared public key set and its own
// secret key share.
//
// Every operation is synchronous and performs no I/O; ordering identical
// messages to every node is the responsibility of an external transport
// (see spec.md §1, §5).
package dkg

import (
	"bytes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/drand/kyber"
	"github.com/drand/kyber/share"
	"github.com/google/uuid"

	"github.com/drand/syncdkg/internal/ecies"
	"github.com/drand/syncdkg/internal/log"
	"github.com/drand/syncdkg/internal/roster"
	"github.com/drand/syncdkg/poly"
)

// KeyGen drives one synchronous DKG epoch for a single node. It is
// single-use: rekeying requires a fresh instance over a fresh roster.
type KeyGen struct {
	suite     poly.Suite  // the G1 group commitments and shares live in
	keyGroup  kyber.Group // the group long-term encryption keys live in
	secKey    kyber.Scalar
	roster    *roster.Roster
	threshold int

	// ourIdx is this node's unbiased position in the roster, or -1 if our
	// id is absent from the roster (an observer).
	ourIdx int

	// epochID identifies this single-use instance in its log lines; it
	// carries no protocol meaning and is never transmitted in a message.
	epochID uuid.UUID

	proposals map[uint32]*proposalState
	log       log.Logger
}

// EpochID returns the session identifier stamped on this instance at
// construction, for correlating log lines and metrics across a single run.
func (kg *KeyGen) EpochID() uuid.UUID {
	return kg.epochID
}

// ProposeOutcome is the result of handling a Propose message.
type ProposeOutcome struct {
	// Accept is set when the proposal was valid and we are a validator;
	// it must be broadcast.
	Accept *Accept
	// Faults is set when the proposal was invalid.
	Faults FaultLog
}

// Valid reports whether the Propose was accepted (an Accept was produced).
func (o *ProposeOutcome) Valid() bool {
	return o != nil && o.Accept != nil
}

// NewKeyGen constructs a KeyGen instance for ourID, sampling a fresh random
// bivariate polynomial and returning the Propose message to broadcast to
// every node (including ourselves). If ourID is absent from the roster, the
// returned instance is an observer: no Propose is produced, and the
// observer never obtains a secret key share.
//
// rng must come from a cryptographically secure source; construction is
// the protocol's only source of randomness.
func NewKeyGen(
	suite poly.Suite,
	ourID string,
	ourSecKey kyber.Scalar,
	rost *roster.Roster,
	threshold int,
	rng cipher.Stream,
	logger log.Logger,
) (*KeyGen, *Propose, error) {
	if rost.Len() < 2*threshold+1 {
		return nil, nil, fmt.Errorf("dkg: roster of %d nodes cannot tolerate threshold %d (need n >= 2t+1)", rost.Len(), threshold)
	}
	if logger == nil {
		logger = log.DefaultLogger()
	}
	ourIdx, isValidator := rost.IndexOf(ourID)
	epochID := uuid.New()
	kg := &KeyGen{
		suite:     suite,
		keyGroup:  rost.Group,
		secKey:    ourSecKey,
		roster:    rost,
		threshold: threshold,
		ourIdx:    -1,
		epochID:   epochID,
		proposals: make(map[uint32]*proposalState),
		log:       logger.Named("dkg").With("epoch", epochID.String()),
	}
	if !isValidator {
		kg.log.Infow("constructed as observer", "id", ourID)
		return kg, nil, nil
	}
	kg.ourIdx = ourIdx

	bivar := poly.RandomBivarPoly(suite, threshold, rng)
	commit := bivar.Commitment()

	rows := make([]*ecies.Ciphertext, rost.Len())
	for k, node := range rost.Nodes {
		row := bivar.Row(int64(k) + 1)
		rowBytes, err := row.MarshalBinary()
		if err != nil {
			bivar.Zeroize()
			return nil, nil, fmt.Errorf("dkg: serializing row for peer %d: %w", k, err)
		}
		ct, err := ecies.Encrypt(rost.Group, node.Key, rowBytes)
		if err != nil {
			bivar.Zeroize()
			return nil, nil, fmt.Errorf("dkg: encrypting row for peer %d: %w", k, err)
		}
		rows[k] = ct
	}
	// The sampled polynomial must never outlive this constructor; only
	// its commitment and the encrypted rows are carried forward.
	bivar.Zeroize()

	propose := &Propose{Commit: commit, Rows: rows}
	kg.log.Infow("constructed as validator", "id", ourID, "idx", ourIdx)
	return kg, propose, nil
}

// IsObserver reports whether this instance produces no Propose/Accept and
// will receive no secret key share.
func (kg *KeyGen) IsObserver() bool {
	return kg.ourIdx < 0
}

// HandlePropose processes a Propose message from senderID. The outcome is
// one of: a non-nil Accept to broadcast, a non-empty FaultLog flagging the
// sender, or neither (senderID is unknown, we are an observer, or this is a
// duplicate proposal from an already-seen proposer — all silently ignored).
func (kg *KeyGen) HandlePropose(senderID string, p *Propose) *ProposeOutcome {
	senderIdx, ok := kg.roster.IndexOf(senderID)
	if !ok {
		kg.log.Debugw("ignoring propose from unknown sender", "sender", senderID)
		return nil
	}
	proposerIdx := uint32(senderIdx)
	if _, exists := kg.proposals[proposerIdx]; exists {
		kg.log.Debugw("ignoring duplicate propose", "sender", senderID)
		return nil
	}
	kg.proposals[proposerIdx] = newProposalState(p.Commit)

	if kg.IsObserver() {
		return nil
	}

	if int(proposerIdx) >= len(p.Rows) || kg.ourIdx >= len(p.Rows) {
		kg.log.Warnw("invalid propose: row vector shorter than roster", "sender", senderID)
		return &ProposeOutcome{Faults: newFaultLog(senderID, InvalidPropose)}
	}
	rowBytes, err := ecies.Decrypt(kg.keyGroup, kg.secKey, p.Rows[kg.ourIdx])
	if err != nil {
		kg.log.Warnw("invalid propose: decryption failed", "sender", senderID, "err", err)
		return &ProposeOutcome{Faults: newFaultLog(senderID, InvalidPropose)}
	}
	row, err := poly.UnmarshalPoly(kg.suite, rowBytes)
	if err != nil {
		kg.log.Warnw("invalid propose: deserialization failed", "sender", senderID, "err", err)
		return &ProposeOutcome{Faults: newFaultLog(senderID, InvalidPropose)}
	}
	expected := p.Commit.Row(int64(kg.ourIdx) + 1)
	if !row.Commit().Equal(expected) {
		kg.log.Warnw("invalid propose: row does not match commitment", "sender", senderID)
		return &ProposeOutcome{Faults: newFaultLog(senderID, InvalidPropose)}
	}

	values := make([]*ecies.Ciphertext, kg.roster.Len())
	for k, node := range kg.roster.Nodes {
		val := row.Evaluate(int64(k) + 1)
		valBytes, err := val.MarshalBinary()
		if err != nil {
			// The row already passed commitment verification; failing to
			// serialize a value we just evaluated ourselves is a
			// host-environment failure, not adversarial input.
			panic(fmt.Sprintf("dkg: cannot serialize our own evaluated value: %v", err))
		}
		ct, err := ecies.Encrypt(kg.keyGroup, node.Key, valBytes)
		if err != nil {
			panic(fmt.Sprintf("dkg: cannot encrypt our own evaluated value: %v", err))
		}
		values[k] = ct
	}
	return &ProposeOutcome{Accept: &Accept{ProposerIdx: proposerIdx, Values: values}}
}

// HandleAccept processes an Accept message from senderID, returning any
// faults observed. An empty FaultLog means the Accept was fully valid (or
// silently ignored because senderID is unknown).
func (kg *KeyGen) HandleAccept(senderID string, a *Accept) FaultLog {
	senderIdx, ok := kg.roster.IndexOf(senderID)
	if !ok {
		kg.log.Debugw("ignoring accept from unknown sender", "sender", senderID)
		return nil
	}
	if err := kg.handleAcceptOrError(uint32(senderIdx), senderID, a); err != nil {
		kg.log.Warnw("invalid accept", "sender", senderID, "err", err)
		return newFaultLog(senderID, InvalidAccept)
	}
	return nil
}

func (kg *KeyGen) handleAcceptOrError(senderIdx uint32, senderID string, a *Accept) error {
	if len(a.Values) != kg.roster.Len() {
		return errors.New("wrong value count")
	}
	proposal, ok := kg.proposals[a.ProposerIdx]
	if !ok {
		return fmt.Errorf("unknown proposer %d", a.ProposerIdx)
	}
	// The acceptor's existence claim is recorded before the value is
	// decrypted/verified, so a fault during that step still counts toward
	// completion (see spec.md §9, open question on acceptor counting).
	if !proposal.recordAccept(senderIdx) {
		return errors.New("duplicate accept")
	}

	if kg.IsObserver() {
		// Observers cannot decrypt anything addressed to peers; they only
		// track completion counts and commitments.
		return nil
	}

	valBytes, err := ecies.Decrypt(kg.keyGroup, kg.secKey, a.Values[kg.ourIdx])
	if err != nil {
		return fmt.Errorf("value decryption failed: %w", err)
	}
	v := kg.suite.Scalar()
	if err := v.UnmarshalBinary(valBytes); err != nil {
		return fmt.Errorf("value deserialization failed: %w", err)
	}
	expected := proposal.commit.Evaluate(int64(kg.ourIdx)+1, int64(senderIdx)+1)
	actual := kg.suite.Point().Mul(v, nil)
	if !expected.Equal(actual) {
		return errors.New("value does not match commitment")
	}
	proposal.recordValue(int64(senderIdx)+1, v)
	return nil
}

// CountComplete returns the number of proposals with more than 2t accepts.
func (kg *KeyGen) CountComplete() int {
	n := 0
	for _, p := range kg.proposals {
		if p.isComplete(kg.threshold) {
			n++
		}
	}
	return n
}

// IsNodeReady reports whether proposerID's proposal is complete.
func (kg *KeyGen) IsNodeReady(proposerID string) bool {
	idx, ok := kg.roster.IndexOf(proposerID)
	if !ok {
		return false
	}
	p, ok := kg.proposals[uint32(idx)]
	if !ok {
		return false
	}
	return p.isComplete(kg.threshold)
}

// IsReady reports whether enough proposals are complete (more than t) to
// safely generate the key set. This is the minimum safety threshold;
// callers may adopt any stronger deterministic rule as long as every node
// applies the same one.
func (kg *KeyGen) IsReady() bool {
	return kg.CountComplete() > kg.threshold
}

// PublicKeySet is the shared threshold public key derived from every
// complete proposal's commitment.
type PublicKeySet struct {
	commit *poly.Commitment
}

// PublicKey returns the master public key, g1^{f(0,0)} summed over all
// complete proposals.
func (pks *PublicKeySet) PublicKey() kyber.Point {
	return pks.commit.PublicKey()
}

// PublicKeyShare returns the public key share for the node at the given
// unbiased index, derivable by anyone from the public key set alone.
func (pks *PublicKeySet) PublicKeyShare(idx int) kyber.Point {
	return pks.commit.Evaluate(int64(idx) + 1)
}

// Equal reports whether two public key sets are identical.
func (pks *PublicKeySet) Equal(o *PublicKeySet) bool {
	if o == nil {
		return false
	}
	return pks.commit.Equal(o.commit)
}

// Coefficients returns the raw commitment coefficients of the degree-t
// sharing polynomial this key set was derived from, lowest degree first.
func (pks *PublicKeySet) Coefficients() []kyber.Point {
	return pks.commit.Coefficients()
}

// MarshalBinary serializes the public key set for persistence.
func (pks *PublicKeySet) MarshalBinary() ([]byte, error) {
	return pks.commit.MarshalBinary()
}

// UnmarshalPublicKeySet deserializes bytes produced by MarshalBinary.
func UnmarshalPublicKeySet(suite poly.Suite, data []byte) (*PublicKeySet, error) {
	commit, err := poly.UnmarshalCommitment(suite, data)
	if err != nil {
		return nil, fmt.Errorf("dkg: unmarshaling public key set: %w", err)
	}
	return &PublicKeySet{commit: commit}, nil
}

// SecretKeyShare is a node's share of the sum of the master secrets of
// every complete proposal, usable for (t+1)-of-n threshold signing and
// decryption.
type SecretKeyShare struct {
	Index int
	Value kyber.Scalar
}

// MarshalBinary serializes the secret share for persistence. Callers are
// responsible for protecting the result at rest; this module applies no
// encryption of its own (see spec.md §7).
func (sk *SecretKeyShare) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(sk.Index)); err != nil {
		return nil, err
	}
	vb, err := sk.Value.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf.Write(vb)
	return buf.Bytes(), nil
}

// UnmarshalSecretKeyShare deserializes bytes produced by MarshalBinary.
func UnmarshalSecretKeyShare(suite poly.Suite, data []byte) (*SecretKeyShare, error) {
	buf := bytes.NewReader(data)
	var idx uint32
	if err := binary.Read(buf, binary.LittleEndian, &idx); err != nil {
		return nil, fmt.Errorf("dkg: reading share index: %w", err)
	}
	rest := make([]byte, buf.Len())
	if _, err := io.ReadFull(buf, rest); err != nil {
		return nil, fmt.Errorf("dkg: reading share value: %w", err)
	}
	v := suite.Scalar()
	if err := v.UnmarshalBinary(rest); err != nil {
		return nil, fmt.Errorf("dkg: unmarshaling share value: %w", err)
	}
	return &SecretKeyShare{Index: int(idx), Value: v}, nil
}

// Generate returns the shared public key set and, for validators, this
// node's secret key share. It is deterministic and consumes no randomness.
// Its result is only secure once IsReady returns true.
func (kg *KeyGen) Generate() (*PublicKeySet, *SecretKeyShare) {
	pkCommit := poly.ZeroPoly(kg.suite).Commit()
	var skVal kyber.Scalar
	if !kg.IsObserver() {
		skVal = kg.suite.Scalar().Zero()
	}
	for _, p := range kg.proposals {
		if !p.isComplete(kg.threshold) {
			continue
		}
		pkCommit = pkCommit.Add(p.commit.Row(0))
		if skVal != nil {
			xs, ys := p.lowestValues(kg.threshold + 1)
			if len(xs) < kg.threshold+1 {
				// Fewer than t+1 of this proposal's accepting nodes sent
				// us a value that verified: we cannot recover our share
				// of its secret. It still contributed its public
				// commitment above (see spec.md §9, acceptor counting).
				kg.log.Warnw("skipping secret share contribution: not enough verified values",
					"have", len(xs), "need", kg.threshold+1)
				continue
			}
			priShares := make([]*share.PriShare, len(xs))
			for i, x := range xs {
				// x is our biased sender position (sender index + 1); kyber's
				// share.PriShare.I is the unbiased index, applying the same
				// +1 bias internally when it builds Lagrange x-coordinates.
				priShares[i] = &share.PriShare{I: int(x) - 1, V: ys[i]}
			}
			secret, err := share.RecoverSecret(kg.suite, priShares, kg.threshold+1, kg.roster.Len())
			if err != nil {
				kg.log.Warnw("skipping secret share contribution: recovering secret failed", "err", err)
				continue
			}
			skVal = kg.suite.Scalar().Add(skVal, secret)
		}
	}
	pks := &PublicKeySet{commit: pkCommit}
	if skVal == nil {
		return pks, nil
	}
	return pks, &SecretKeyShare{Index: kg.ourIdx, Value: skVal}
}
