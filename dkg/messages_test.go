package dkg_test

import (
	"testing"

	bls12381 "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/util/random"
	"github.com/stretchr/testify/require"

	"github.com/drand/syncdkg/dkg"
	"github.com/drand/syncdkg/internal/ecies"
	"github.com/drand/syncdkg/poly"
)

func dkgTestSuite() poly.Suite {
	return bls12381.NewBLS12381Suite().G1()
}

func randCiphertext(t *testing.T, suite poly.Suite) *ecies.Ciphertext {
	t.Helper()
	sk := suite.Scalar().Pick(random.New())
	pk := suite.Point().Mul(sk, nil)
	ct, err := ecies.Encrypt(suite, pk, []byte("hello"))
	require.NoError(t, err)
	return ct
}

func TestProposeHashAndEqual(t *testing.T) {
	suite := dkgTestSuite()
	bivar := poly.RandomBivarPoly(suite, 1, random.New())
	defer bivar.Zeroize()
	commit := bivar.Commitment()

	p1 := &dkg.Propose{Commit: commit, Rows: []*ecies.Ciphertext{randCiphertext(t, suite)}}
	p2 := &dkg.Propose{Commit: commit, Rows: p1.Rows}
	require.True(t, p1.Equal(p2))

	h1, err := p1.Hash()
	require.NoError(t, err)
	h2, err := p2.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	p3 := &dkg.Propose{Commit: commit, Rows: []*ecies.Ciphertext{randCiphertext(t, suite)}}
	require.False(t, p1.Equal(p3))
}

func TestAcceptHashAndEqual(t *testing.T) {
	suite := dkgTestSuite()
	a1 := &dkg.Accept{ProposerIdx: 2, Values: []*ecies.Ciphertext{randCiphertext(t, suite)}}
	a2 := &dkg.Accept{ProposerIdx: 2, Values: a1.Values}
	require.True(t, a1.Equal(a2))

	a3 := &dkg.Accept{ProposerIdx: 3, Values: a1.Values}
	require.False(t, a1.Equal(a3))

	h1, err := a1.Hash()
	require.NoError(t, err)
	h3, err := a3.Hash()
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}
