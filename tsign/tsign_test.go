package tsign_test

import (
	"testing"

	"github.com/drand/kyber"
	"github.com/drand/kyber/util/random"
	"github.com/stretchr/testify/require"

	"github.com/drand/syncdkg/dkg"
	"github.com/drand/syncdkg/internal/roster"
	"github.com/drand/syncdkg/internal/sim"
	"github.com/drand/syncdkg/internal/testlogger"
	"github.com/drand/syncdkg/tsign"
)

func TestSignVerifyRecoverRoundTrip(t *testing.T) {
	scheme := tsign.NewScheme()
	suite := scheme.Suite().G1()
	rng := random.New()

	n, threshold := 6, 2
	nodes := make([]roster.Node, n)
	secKeys := make(map[string]kyber.Scalar, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		sk := suite.Scalar().Pick(rng)
		nodes[i] = roster.Node{ID: id, Key: suite.Point().Mul(sk, nil)}
		secKeys[id] = sk
	}
	rost := &roster.Roster{Group: suite, Nodes: nodes}

	net, err := sim.New(suite, rost, secKeys, threshold, nil, rng, testlogger.New(t))
	require.NoError(t, err)
	net.Run()

	msg := []byte("threshold bls round trip")
	var pks *dkg.PublicKeySet
	var partials [][]byte
	for _, p := range net.Participants {
		require.True(t, p.Faults.IsEmpty())
		pksShare, sk := p.KeyGen.Generate()
		pks = pksShare
		sig, err := scheme.Sign(sk, msg)
		require.NoError(t, err)
		require.NoError(t, scheme.VerifyPartial(pksShare, msg, sig))
		partials = append(partials, sig)
	}

	full, err := scheme.Recover(pks, threshold, n, msg, partials)
	require.NoError(t, err)
	require.NoError(t, scheme.VerifyRecovered(pks, msg, full))
}

func TestRecoverFailsWithTooFewPartials(t *testing.T) {
	scheme := tsign.NewScheme()
	suite := scheme.Suite().G1()
	rng := random.New()

	n, threshold := 5, 2
	nodes := make([]roster.Node, n)
	secKeys := make(map[string]kyber.Scalar, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		sk := suite.Scalar().Pick(rng)
		nodes[i] = roster.Node{ID: id, Key: suite.Point().Mul(sk, nil)}
		secKeys[id] = sk
	}
	rost := &roster.Roster{Group: suite, Nodes: nodes}

	net, err := sim.New(suite, rost, secKeys, threshold, nil, rng, testlogger.New(t))
	require.NoError(t, err)
	net.Run()

	msg := []byte("not enough shares")
	var pks *dkg.PublicKeySet
	var partials [][]byte
	for i, p := range net.Participants {
		pksShare, sk := p.KeyGen.Generate()
		pks = pksShare
		if i >= threshold {
			break
		}
		sig, err := scheme.Sign(sk, msg)
		require.NoError(t, err)
		partials = append(partials, sig)
	}

	_, err = scheme.Recover(pks, threshold, n, msg, partials)
	require.Error(t, err)
}

func TestVerifyPartialRejectsTamperedSignature(t *testing.T) {
	scheme := tsign.NewScheme()
	suite := scheme.Suite().G1()
	rng := random.New()

	n, threshold := 4, 1
	nodes := make([]roster.Node, n)
	secKeys := make(map[string]kyber.Scalar, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		sk := suite.Scalar().Pick(rng)
		nodes[i] = roster.Node{ID: id, Key: suite.Point().Mul(sk, nil)}
		secKeys[id] = sk
	}
	rost := &roster.Roster{Group: suite, Nodes: nodes}

	net, err := sim.New(suite, rost, secKeys, threshold, nil, rng, testlogger.New(t))
	require.NoError(t, err)
	net.Run()

	p := net.Participants[0]
	pks, sk := p.KeyGen.Generate()
	sig, err := scheme.Sign(sk, []byte("msg"))
	require.NoError(t, err)
	sig[len(sig)-1] ^= 0xFF

	require.Error(t, scheme.VerifyPartial(pks, []byte("msg"), sig))
}
