// Package poly is the thin semantic adapter over the pairing library that
// the rest of this module builds on: a scalar field Fr, a group G1 with a
// fixed generator, univariate polynomial evaluation/interpolation/
// commitment, and the bivariate polynomial commit/reveal primitives the DKG
// protocol is built from. It carries no protocol logic of its own.
package poly

import (
	"github.com/drand/kyber"
)

// Suite is the subset of a pairing suite this package needs: a scalar field
// and the G1 group used for commitments. It is satisfied by the G1 group of
// github.com/drand/kyber-bls12381's pairing suite (NewBLS12381Suite().G1()),
// the same suite drand's key and bls packages build on.
type Suite interface {
	kyber.Group // G1: Point(), Scalar(), PointLen(), ScalarLen(), ...
}

// scalarFromInt converts a small non-negative integer (a node's biased
// position index) into a field element.
func scalarFromInt(suite Suite, x int64) kyber.Scalar {
	return suite.Scalar().SetInt64(x)
}
