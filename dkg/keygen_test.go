package dkg_test

import (
	"testing"

	"github.com/drand/kyber"
	"github.com/drand/kyber/util/random"
	"github.com/stretchr/testify/require"

	"github.com/drand/syncdkg/dkg"
	"github.com/drand/syncdkg/internal/ecies"
	"github.com/drand/syncdkg/internal/roster"
	"github.com/drand/syncdkg/internal/testlogger"
	"github.com/drand/syncdkg/poly"
)

func idFor(i int) string {
	return "node-" + string(rune('a'+i))
}

// testRoster builds n nodes with fresh long-term encryption keys, returning
// the roster and each node's secret key by id.
func testRoster(t *testing.T, n int) (*roster.Roster, map[string]kyber.Scalar) {
	t.Helper()
	suite := dkgTestSuite()
	rng := random.New()

	nodes := make([]roster.Node, n)
	secKeys := make(map[string]kyber.Scalar, n)
	for i := 0; i < n; i++ {
		id := idFor(i)
		sk := suite.Scalar().Pick(rng)
		pk := suite.Point().Mul(sk, nil)
		nodes[i] = roster.Node{ID: id, Key: pk}
		secKeys[id] = sk
	}
	return &roster.Roster{Group: suite, Nodes: nodes}, secKeys
}

// testNetwork constructs n validators over a fresh roster and threshold,
// returning their KeyGen instances and initial Propose messages, keyed by id.
func testNetwork(t *testing.T, n, threshold int) (*roster.Roster, map[string]*dkg.KeyGen, map[string]*dkg.Propose) {
	t.Helper()
	suite := dkgTestSuite()
	rng := random.New()
	rost, secKeys := testRoster(t, n)

	kgs := make(map[string]*dkg.KeyGen, n)
	proposes := make(map[string]*dkg.Propose, n)
	for _, node := range rost.Nodes {
		kg, propose, err := dkg.NewKeyGen(suite, node.ID, secKeys[node.ID], rost, threshold, rng, testlogger.New(t))
		require.NoError(t, err)
		kgs[node.ID] = kg
		proposes[node.ID] = propose
	}
	return rost, kgs, proposes
}

type acceptMsg struct {
	from string
	msg  *dkg.Accept
}

// runEpoch delivers every Propose to every node, then every resulting Accept
// to every node, once each — enough for one non-adversarial epoch to finish.
func runEpoch(t *testing.T, rost *roster.Roster, kgs map[string]*dkg.KeyGen, proposes map[string]*dkg.Propose) {
	t.Helper()
	var accepts []acceptMsg
	for from, p := range proposes {
		for _, node := range rost.Nodes {
			outcome := kgs[node.ID].HandlePropose(from, p)
			if outcome.Valid() {
				accepts = append(accepts, acceptMsg{from: node.ID, msg: outcome.Accept})
			}
		}
	}
	for _, a := range accepts {
		for _, node := range rost.Nodes {
			faults := kgs[node.ID].HandleAccept(a.from, a.msg)
			require.True(t, faults.IsEmpty())
		}
	}
}

func TestHappyPathAllNodesAgreeOnKeySet(t *testing.T) {
	threshold := 1
	rost, kgs, proposes := testNetwork(t, 4, threshold)
	runEpoch(t, rost, kgs, proposes)

	var firstPKS *dkg.PublicKeySet
	for _, node := range rost.Nodes {
		kg := kgs[node.ID]
		require.True(t, kg.IsReady())
		pks, sk := kg.Generate()
		require.NotNil(t, sk)
		if firstPKS == nil {
			firstPKS = pks
		} else {
			require.True(t, firstPKS.Equal(pks))
		}
	}
}

func TestObserverNeverProducesProposeOrShare(t *testing.T) {
	threshold := 1
	suite := dkgTestSuite()
	rng := random.New()
	rost, _ := testRoster(t, 3)

	observerSK := suite.Scalar().Pick(rng)
	kg, propose, err := dkg.NewKeyGen(suite, "observer", observerSK, rost, threshold, rng, testlogger.New(t))
	require.NoError(t, err)
	require.Nil(t, propose)
	require.True(t, kg.IsObserver())

	pks, sk := kg.Generate()
	require.Nil(t, sk)
	require.NotNil(t, pks)
}

func TestNewKeyGenRejectsUnsafeThreshold(t *testing.T) {
	suite := dkgTestSuite()
	rng := random.New()
	rost, secKeys := testRoster(t, 3)

	// n=3 cannot tolerate threshold=2 (needs n >= 2t+1 = 5).
	_, _, err := dkg.NewKeyGen(suite, idFor(0), secKeys[idFor(0)], rost, 2, rng, testlogger.New(t))
	require.Error(t, err)
}

func TestHandleProposeRejectsTamperedCommitment(t *testing.T) {
	threshold := 1
	suite := dkgTestSuite()
	rng := random.New()
	rost, secKeys := testRoster(t, 4)

	proposerID := idFor(0)
	_, propose, err := dkg.NewKeyGen(suite, proposerID, secKeys[proposerID], rost, threshold, rng, testlogger.New(t))
	require.NoError(t, err)

	// Swap in a commitment to an unrelated polynomial, leaving the
	// encrypted rows (computed from the real polynomial) untouched: every
	// honest recipient's row no longer matches the advertised commitment.
	other := poly.RandomBivarPoly(suite, threshold, rng)
	defer other.Zeroize()
	tampered := &dkg.Propose{Commit: other.Commitment(), Rows: propose.Rows}

	victimID := idFor(1)
	victim, _, err := dkg.NewKeyGen(suite, victimID, secKeys[victimID], rost, threshold, rng, testlogger.New(t))
	require.NoError(t, err)

	outcome := victim.HandlePropose(proposerID, tampered)
	require.False(t, outcome.Valid())
	require.False(t, outcome.Faults.IsEmpty())
	require.Equal(t, dkg.InvalidPropose, outcome.Faults[0].Kind)
}

func TestHandleAcceptRejectsWrongValueCount(t *testing.T) {
	threshold := 1
	rost, kgs, proposes := testNetwork(t, 4, threshold)

	proposerID := idFor(0)
	victimID := idFor(1)
	outcome := kgs[victimID].HandlePropose(proposerID, proposes[proposerID])
	require.True(t, outcome.Valid())

	bad := &dkg.Accept{ProposerIdx: outcome.Accept.ProposerIdx, Values: outcome.Accept.Values[:len(outcome.Accept.Values)-1]}
	for _, node := range rost.Nodes {
		faults := kgs[node.ID].HandleAccept(victimID, bad)
		require.False(t, faults.IsEmpty())
		require.Equal(t, dkg.InvalidAccept, faults[0].Kind)
	}
}

// TestHandleAcceptCountsFaultyValueTowardCompletion exercises spec.md §9's
// open question on acceptor counting: an Accept whose Values slice has the
// right length but whose entry for us fails to decrypt or verify is still
// recorded toward the proposal's accept count, because recordAccept runs
// before decryption. Only the value itself is dropped.
func TestHandleAcceptCountsFaultyValueTowardCompletion(t *testing.T) {
	threshold := 1
	rost, kgs, proposes := testNetwork(t, 4, threshold)

	proposerID := idFor(0)
	victimID := idFor(1)
	victimIdx, ok := rost.IndexOf(victimID)
	require.True(t, ok)

	// Let every node observe the proposal so their own Accept addresses
	// victimID's slot, then deliver every resulting Accept to the victim,
	// tampering the one destined for the victim's own slot in a single
	// Accept's ciphertext payload (not its length).
	var accepts []acceptMsg
	for _, node := range rost.Nodes {
		outcome := kgs[node.ID].HandlePropose(proposerID, proposes[proposerID])
		require.True(t, outcome.Valid())
		accepts = append(accepts, acceptMsg{from: node.ID, msg: outcome.Accept})
	}

	tamperedFrom := idFor(2)
	sawFault := false
	for _, a := range accepts {
		msg := a.msg
		if a.from == tamperedFrom {
			tamperedValue := *msg.Values[victimIdx]
			payload := make([]byte, len(tamperedValue.Payload))
			copy(payload, tamperedValue.Payload)
			payload[0] ^= 0xff
			tamperedValue.Payload = payload
			values := append([]*ecies.Ciphertext(nil), msg.Values...)
			values[victimIdx] = &tamperedValue
			msg = &dkg.Accept{ProposerIdx: msg.ProposerIdx, Values: values}
		}
		faults := kgs[victimID].HandleAccept(a.from, msg)
		if a.from == tamperedFrom {
			require.False(t, faults.IsEmpty())
			require.Equal(t, dkg.InvalidAccept, faults[0].Kind)
			sawFault = true
			continue
		}
		require.True(t, faults.IsEmpty())
	}
	require.True(t, sawFault)

	// All four acceptances were recorded, the tampered one included, so the
	// proposal clears the >2t threshold despite the dropped value.
	require.True(t, kgs[victimID].IsNodeReady(proposerID))
}

func TestCountCompleteAndIsNodeReady(t *testing.T) {
	threshold := 1
	rost, kgs, proposes := testNetwork(t, 4, threshold)
	runEpoch(t, rost, kgs, proposes)

	for _, node := range rost.Nodes {
		kg := kgs[node.ID]
		require.Equal(t, len(rost.Nodes), kg.CountComplete())
		for _, other := range rost.Nodes {
			require.True(t, kg.IsNodeReady(other.ID))
		}
	}
}
