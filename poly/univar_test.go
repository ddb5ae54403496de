package poly_test

import (
	"testing"

	"github.com/drand/kyber"
	bls12381 "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/util/random"
	"github.com/stretchr/testify/require"

	"github.com/drand/syncdkg/poly"
)

func testSuite() poly.Suite {
	return bls12381.NewBLS12381Suite().G1()
}

func randScalar(suite poly.Suite) kyber.Scalar {
	return suite.Scalar().Pick(random.New())
}

func TestPolyEvaluateAndCommit(t *testing.T) {
	suite := testSuite()
	a0 := randScalar(suite)
	a1 := randScalar(suite)
	a2 := randScalar(suite)
	p := poly.NewPoly(suite, []kyber.Scalar{a0, a1, a2})

	require.Equal(t, 2, p.Degree())

	x := int64(5)
	got := p.Evaluate(x)
	xs := suite.Scalar().SetInt64(x)
	want := suite.Scalar().Zero()
	want = want.Add(want, a0)
	want = want.Add(want, suite.Scalar().Mul(a1, xs))
	x2 := suite.Scalar().Mul(xs, xs)
	want = want.Add(want, suite.Scalar().Mul(a2, x2))
	require.True(t, got.Equal(want))

	commit := p.Commit()
	base := suite.Point().Base()
	expected := suite.Point().Mul(got, base)
	require.True(t, commit.Evaluate(x).Equal(expected))
}

func TestPolyMarshalRoundTrip(t *testing.T) {
	suite := testSuite()
	p := poly.NewPoly(suite, []kyber.Scalar{randScalar(suite), randScalar(suite)})
	buf, err := p.MarshalBinary()
	require.NoError(t, err)

	got, err := poly.UnmarshalPoly(suite, buf)
	require.NoError(t, err)
	require.Equal(t, p.Degree(), got.Degree())
	require.True(t, p.Evaluate(3).Equal(got.Evaluate(3)))
}

func TestInterpolateRecoversConstantTerm(t *testing.T) {
	suite := testSuite()
	secret := randScalar(suite)
	p := poly.NewPoly(suite, []kyber.Scalar{secret, randScalar(suite), randScalar(suite)})

	xs := []int64{1, 2, 3, 4}
	ys := make([]kyber.Scalar, len(xs))
	for i, x := range xs {
		ys[i] = p.Evaluate(x)
	}

	got, err := poly.Interpolate(suite, xs, ys)
	require.NoError(t, err)
	require.True(t, got.Evaluate(0).Equal(secret))
}

func TestInterpolateRejectsMismatchedLengths(t *testing.T) {
	suite := testSuite()
	_, err := poly.Interpolate(suite, []int64{1, 2}, []kyber.Scalar{randScalar(suite)})
	require.Error(t, err)
}

func TestCommitmentAddIsHomomorphic(t *testing.T) {
	suite := testSuite()
	p1 := poly.NewPoly(suite, []kyber.Scalar{randScalar(suite), randScalar(suite)})
	p2 := poly.NewPoly(suite, []kyber.Scalar{randScalar(suite), randScalar(suite)})
	sum := p1.Add(p2)

	c1 := p1.Commit()
	c2 := p2.Commit()
	require.True(t, c1.Add(c2).Equal(sum.Commit()))
}

func TestCommitmentMarshalRoundTrip(t *testing.T) {
	suite := testSuite()
	p := poly.NewPoly(suite, []kyber.Scalar{randScalar(suite), randScalar(suite)})
	commit := p.Commit()

	buf, err := commit.MarshalBinary()
	require.NoError(t, err)

	got, err := poly.UnmarshalCommitment(suite, buf)
	require.NoError(t, err)
	require.True(t, commit.Equal(got))
}
