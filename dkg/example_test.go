package dkg_test

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

// TestEndToEndThresholdSignature runs a full synchronous epoch over five
// validators and one observer, then proves the resulting key set is usable:
// a quorum of partial BLS signatures recombines into a signature verifiable
// under the shared public key, while the observer never contributes one.
func TestEndToEndThresholdSignature(t *testing.T) {
	scheme := tsign.NewScheme()
	suite := scheme.Suite().G1()
	rng := random.New()

	n, threshold := 5, 2
	nodes := make([]roster.Node, n)
	secKeys := make(map[string]kyber.Scalar, n+1)
	for i := 0; i < n; i++ {
		id := idFor(i)
		sk := suite.Scalar().Pick(rng)
		nodes[i] = roster.Node{ID: id, Key: suite.Point().Mul(sk, nil)}
		secKeys[id] = sk
	}
	rost := &roster.Roster{Group: suite, Nodes: nodes}

	observerID := "observer"
	observerSK := suite.Scalar().Pick(rng)
	secKeys[observerID] = observerSK

	net, err := sim.New(suite, rost, secKeys, threshold, []string{observerID}, rng, testlogger.New(t))
	require.NoError(t, err)
	net.Run()

	require.Len(t, net.Participants, n+1)

	msg := []byte("synchronous dkg end to end")
	var partials [][]byte
	var pubKey kyber.Point
	var pks *dkg.PublicKeySet
	for _, p := range net.Participants {
		require.True(t, p.Faults.IsEmpty())

		shareSet, sk := p.KeyGen.Generate()
		if p.ID == observerID {
			require.Nil(t, sk)
			continue
		}
		require.NotNil(t, sk)

		if pubKey == nil {
			pubKey = shareSet.PublicKey()
			pks = shareSet
		} else {
			require.True(t, pubKey.Equal(shareSet.PublicKey()))
		}

		sig, err := scheme.Sign(sk, msg)
		require.NoError(t, err)
		require.NoError(t, scheme.VerifyPartial(shareSet, msg, sig))
		partials = append(partials, sig)
	}

	require.GreaterOrEqual(t, len(partials), threshold+1)

	full, err := scheme.Recover(pks, threshold, n, msg, partials)
	require.NoError(t, err)
	require.NoError(t, scheme.VerifyRecovered(pks, msg, full))
}
