// Package tsign exercises the completed key set against real threshold BLS
// signing, bridging dkg.PublicKeySet/dkg.SecretKeyShare into the share.PubPoly
// and share.PriShare types github.com/drand/kyber/sign/tbls expects. It is
// the module's answer to property P3: t+1 partial signatures recombine into
// one signature that verifies under the master public key.
package tsign

import (
	"fmt"

	bls12381 "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/pairing"
	"github.com/drand/kyber/share"
	"github.com/drand/kyber/sign"
	"github.com/drand/kyber/sign/tbls"

	"github.com/drand/syncdkg/dkg"
)

// Scheme wraps the threshold BLS scheme this module standardizes on:
// commitments and public key shares on G1 (matching poly.Commitment's
// convention), signatures and signature shares on G2.
type Scheme struct {
	suite     pairing.Suite
	threshold sign.ThresholdScheme
}

// NewScheme constructs the scheme over the standard BLS12-381 pairing.
func NewScheme() *Scheme {
	suite := bls12381.NewBLS12381Suite()
	return &Scheme{
		suite:     suite,
		threshold: tbls.NewThresholdSchemeOnG2(suite),
	}
}

// Suite returns the pairing suite backing this scheme. Pass Suite().G1() as
// dkg.NewKeyGen's poly.Suite parameter so commitments and signatures share
// one curve.
func (s *Scheme) Suite() pairing.Suite {
	return s.suite
}

// Sign produces this node's partial signature over msg using its secret key
// share. The result must be collected, alongside threshold others, to
// recover a full signature.
func (s *Scheme) Sign(sk *dkg.SecretKeyShare, msg []byte) ([]byte, error) {
	if sk == nil {
		return nil, fmt.Errorf("tsign: nil secret key share")
	}
	sig, err := s.threshold.Sign(&share.PriShare{I: sk.Index, V: sk.Value}, msg)
	if err != nil {
		return nil, fmt.Errorf("tsign: signing: %w", err)
	}
	return sig, nil
}

// VerifyPartial checks a single partial signature against the public key set
// without needing any other node's contribution.
func (s *Scheme) VerifyPartial(pks *dkg.PublicKeySet, msg, sig []byte) error {
	pubPoly, err := s.pubPoly(pks)
	if err != nil {
		return err
	}
	if err := s.threshold.VerifyPartial(pubPoly, msg, sig); err != nil {
		return fmt.Errorf("tsign: verifying partial signature: %w", err)
	}
	return nil
}

// Recover combines at least threshold+1 valid partial signatures into the
// full BLS signature, verifiable with VerifyRecovered under pks.PublicKey().
// threshold is the DKG threshold t the key set was generated with; n is the
// roster size the signature shares were produced over.
func (s *Scheme) Recover(pks *dkg.PublicKeySet, threshold, n int, msg []byte, sigs [][]byte) ([]byte, error) {
	pubPoly, err := s.pubPoly(pks)
	if err != nil {
		return nil, err
	}
	// tbls counts the shares needed, not the polynomial degree.
	sig, err := s.threshold.Recover(pubPoly, msg, sigs, threshold+1, n)
	if err != nil {
		return nil, fmt.Errorf("tsign: recovering signature: %w", err)
	}
	return sig, nil
}

// VerifyRecovered checks a recovered (or plain, single-signer) BLS signature
// against the master public key.
func (s *Scheme) VerifyRecovered(pks *dkg.PublicKeySet, msg, sig []byte) error {
	if err := s.threshold.VerifyRecovered(pks.PublicKey(), msg, sig); err != nil {
		return fmt.Errorf("tsign: verifying recovered signature: %w", err)
	}
	return nil
}

// pubPoly materializes the key set's commitment coefficients as a
// share.PubPoly, the representation kyber/sign/tbls operates on. Both use
// g1^{a_i} coefficients over the same base point, so no reinterpolation is
// needed: the coefficients transfer directly.
func (s *Scheme) pubPoly(pks *dkg.PublicKeySet) (*share.PubPoly, error) {
	if pks == nil {
		return nil, fmt.Errorf("tsign: nil public key set")
	}
	coeffs := pks.Coefficients()
	if len(coeffs) == 0 {
		return nil, fmt.Errorf("tsign: public key set has no commitment")
	}
	return share.NewPubPoly(s.suite.G1(), s.suite.G1().Point().Base(), coeffs), nil
}
