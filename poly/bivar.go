package poly

import (
	"bytes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/drand/kyber"
)

// BivarPoly is a symmetric bivariate polynomial f(x, y) of degree t in each
// variable, following "Distributed Key Generation in the Wild"
// (https://eprint.iacr.org/2012/377.pdf): only the t+1 choose 2 plus t+1
// coefficients a_ij for i <= j are stored; a_ji is defined to equal a_ij.
type BivarPoly struct {
	suite Suite
	t     int
	// coeffs[i][j-i] holds a_ij for 0 <= i <= j <= t.
	coeffs [][]kyber.Scalar
}

// RandomBivarPoly samples a bivariate polynomial of degree t in each
// variable, with coefficients drawn uniformly from the scalar field using
// the given randomness source. rng should come from a cryptographically
// secure source (see crypto/rand via kyber's util/random package).
func RandomBivarPoly(suite Suite, t int, rng cipher.Stream) *BivarPoly {
	b := &BivarPoly{suite: suite, t: t, coeffs: make([][]kyber.Scalar, t+1)}
	for i := 0; i <= t; i++ {
		b.coeffs[i] = make([]kyber.Scalar, t+1-i)
		for j := range b.coeffs[i] {
			b.coeffs[i][j] = suite.Scalar().Pick(rng)
		}
	}
	return b
}

// Degree returns the polynomial's degree in each variable.
func (b *BivarPoly) Degree() int {
	return b.t
}

// coeff returns a_ij for arbitrary i, j in [0, t], using a_ij = a_ji.
func (b *BivarPoly) coeff(i, j int) kyber.Scalar {
	if i > j {
		i, j = j, i
	}
	return b.coeffs[i][j-i]
}

// Row returns the univariate polynomial f(x, y) obtained by fixing the first
// variable to x: g(y) = f(x, y) = sum_j (sum_i a_ij x^i) y^j.
func (b *BivarPoly) Row(x int64) *Poly {
	xs := scalarFromInt(b.suite, x)
	coeffs := make([]kyber.Scalar, b.t+1)
	for j := 0; j <= b.t; j++ {
		c := b.suite.Scalar().Zero()
		xPow := b.suite.Scalar().One()
		for i := 0; i <= b.t; i++ {
			term := b.suite.Scalar().Mul(b.coeff(i, j), xPow)
			c = c.Add(c, term)
			xPow = xPow.Mul(xPow, xs)
		}
		coeffs[j] = c
	}
	return NewPoly(b.suite, coeffs)
}

// Commitment computes the public, binding commitment to b: g1^{a_ij} for
// each stored coefficient.
func (b *BivarPoly) Commitment() *BivarCommitment {
	base := b.suite.Point().Base()
	coeffs := make([][]kyber.Point, b.t+1)
	for i := 0; i <= b.t; i++ {
		coeffs[i] = make([]kyber.Point, len(b.coeffs[i]))
		for j := range b.coeffs[i] {
			coeffs[i][j] = b.suite.Point().Mul(b.coeffs[i][j], base)
		}
	}
	return &BivarCommitment{suite: b.suite, t: b.t, coeffs: coeffs}
}

// Zeroize overwrites every coefficient with the zero scalar. The sampled
// bivariate polynomial must never be retained past the construction of the
// Propose message it produces; callers should call Zeroize immediately
// after deriving the commitment and the per-peer rows.
func (b *BivarPoly) Zeroize() {
	zero := b.suite.Scalar().Zero()
	for i := range b.coeffs {
		for j := range b.coeffs[i] {
			b.coeffs[i][j] = zero
		}
	}
}

// BivarCommitment is the public, binding, homomorphic commitment to a
// BivarPoly.
type BivarCommitment struct {
	suite Suite
	t     int
	// coeffs[i][j-i] holds g1^{a_ij} for 0 <= i <= j <= t.
	coeffs [][]kyber.Point
}

// Degree returns the committed polynomial's degree in each variable.
func (c *BivarCommitment) Degree() int {
	return c.t
}

func (c *BivarCommitment) coeff(i, j int) kyber.Point {
	if i > j {
		i, j = j, i
	}
	return c.coeffs[i][j-i]
}

// Evaluate computes g1^{f(x,y)} for the committed polynomial f, without
// knowledge of f's coefficients.
func (c *BivarCommitment) Evaluate(x, y int64) kyber.Point {
	xs := scalarFromInt(c.suite, x)
	ys := scalarFromInt(c.suite, y)
	result := c.suite.Point().Null()
	xPow := c.suite.Scalar().One()
	for i := 0; i <= c.t; i++ {
		yPow := c.suite.Scalar().One()
		for j := 0; j <= c.t; j++ {
			exp := c.suite.Scalar().Mul(xPow, yPow)
			term := c.suite.Point().Mul(exp, c.coeff(i, j))
			result = c.suite.Point().Add(result, term)
			yPow = yPow.Mul(yPow, ys)
		}
		xPow = xPow.Mul(xPow, xs)
	}
	return result
}

// Row returns the commitment to the univariate row polynomial f(x, y) with
// the first variable fixed to x, i.e. Commitment(BivarPoly.Row(x)).
func (c *BivarCommitment) Row(x int64) *Commitment {
	xs := scalarFromInt(c.suite, x)
	out := make([]kyber.Point, c.t+1)
	for j := 0; j <= c.t; j++ {
		p := c.suite.Point().Null()
		xPow := c.suite.Scalar().One()
		for i := 0; i <= c.t; i++ {
			term := c.suite.Point().Mul(xPow, c.coeff(i, j))
			p = c.suite.Point().Add(p, term)
			xPow = xPow.Mul(xPow, xs)
		}
		out[j] = p
	}
	return &Commitment{suite: c.suite, coeffs: out}
}

// Add returns the pointwise sum of two commitments of equal degree. The sum
// commits to the sum of the two underlying bivariate polynomials.
func (c *BivarCommitment) Add(o *BivarCommitment) (*BivarCommitment, error) {
	if c.t != o.t {
		return nil, fmt.Errorf("poly: degree mismatch %d != %d", c.t, o.t)
	}
	out := make([][]kyber.Point, c.t+1)
	for i := 0; i <= c.t; i++ {
		out[i] = make([]kyber.Point, len(c.coeffs[i]))
		for j := range c.coeffs[i] {
			out[i][j] = c.suite.Point().Add(c.coeffs[i][j], o.coeffs[i][j])
		}
	}
	return &BivarCommitment{suite: c.suite, t: c.t, coeffs: out}, nil
}

// Equal reports whether two commitments commit to the same coefficients.
func (c *BivarCommitment) Equal(o *BivarCommitment) bool {
	if o == nil || c.t != o.t {
		return false
	}
	for i := range c.coeffs {
		for j := range c.coeffs[i] {
			if !c.coeffs[i][j].Equal(o.coeffs[i][j]) {
				return false
			}
		}
	}
	return true
}

// MarshalBinary serializes the commitment in canonical, fixed-length form.
func (c *BivarCommitment) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(c.t)); err != nil {
		return nil, err
	}
	for i := 0; i <= c.t; i++ {
		for j := range c.coeffs[i] {
			b, err := c.coeffs[i][j].MarshalBinary()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBivarCommitment deserializes bytes produced by MarshalBinary.
func UnmarshalBivarCommitment(suite Suite, data []byte) (*BivarCommitment, error) {
	buf := bytes.NewReader(data)
	var t uint32
	if err := binary.Read(buf, binary.LittleEndian, &t); err != nil {
		return nil, fmt.Errorf("poly: reading degree: %w", err)
	}
	pointLen := suite.PointLen()
	coeffs := make([][]kyber.Point, t+1)
	tmp := make([]byte, pointLen)
	for i := 0; i <= int(t); i++ {
		coeffs[i] = make([]kyber.Point, int(t)+1-i)
		for j := range coeffs[i] {
			if _, err := io.ReadFull(buf, tmp); err != nil {
				return nil, fmt.Errorf("poly: reading coefficient (%d,%d): %w", i, j, err)
			}
			p := suite.Point()
			if err := p.UnmarshalBinary(tmp); err != nil {
				return nil, fmt.Errorf("poly: unmarshaling coefficient (%d,%d): %w", i, j, err)
			}
			coeffs[i][j] = p
		}
	}
	return &BivarCommitment{suite: suite, t: int(t), coeffs: coeffs}, nil
}
