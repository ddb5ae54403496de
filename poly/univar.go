package poly

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/drand/kyber"
)

// Poly is a univariate polynomial over Fr, represented by its coefficients
// from the constant term up.
type Poly struct {
	suite  Suite
	coeffs []kyber.Scalar
}

// ZeroPoly returns the constant-zero polynomial.
func ZeroPoly(suite Suite) *Poly {
	return &Poly{suite: suite, coeffs: []kyber.Scalar{suite.Scalar().Zero()}}
}

// NewPoly wraps an explicit coefficient list; coeffs[0] is the constant term.
func NewPoly(suite Suite, coeffs []kyber.Scalar) *Poly {
	cp := make([]kyber.Scalar, len(coeffs))
	copy(cp, coeffs)
	return &Poly{suite: suite, coeffs: cp}
}

// Degree returns the polynomial's degree.
func (p *Poly) Degree() int {
	return len(p.coeffs) - 1
}

// Evaluate computes p(x) for an integer x (a biased node index).
func (p *Poly) Evaluate(x int64) kyber.Scalar {
	xs := scalarFromInt(p.suite, x)
	result := p.suite.Scalar().Zero()
	// Horner's method: iterate from the highest-degree coefficient down.
	for i := len(p.coeffs) - 1; i >= 0; i-- {
		result = result.Mul(result, xs)
		result = result.Add(result, p.coeffs[i])
	}
	return result
}

// Add returns p + q.
func (p *Poly) Add(q *Poly) *Poly {
	n := len(p.coeffs)
	if len(q.coeffs) > n {
		n = len(q.coeffs)
	}
	out := make([]kyber.Scalar, n)
	for i := 0; i < n; i++ {
		out[i] = p.suite.Scalar().Zero()
		if i < len(p.coeffs) {
			out[i] = out[i].Add(out[i], p.coeffs[i])
		}
		if i < len(q.coeffs) {
			out[i] = out[i].Add(out[i], q.coeffs[i])
		}
	}
	return &Poly{suite: p.suite, coeffs: out}
}

// Scale returns c*p.
func (p *Poly) Scale(c kyber.Scalar) *Poly {
	out := make([]kyber.Scalar, len(p.coeffs))
	for i, a := range p.coeffs {
		out[i] = p.suite.Scalar().Mul(a, c)
	}
	return &Poly{suite: p.suite, coeffs: out}
}

// mulLinear returns p * (x - root).
func (p *Poly) mulLinear(root kyber.Scalar) *Poly {
	out := make([]kyber.Scalar, len(p.coeffs)+1)
	for i := range out {
		out[i] = p.suite.Scalar().Zero()
	}
	negRoot := p.suite.Scalar().Neg(root)
	for i, a := range p.coeffs {
		// x * a * x^i contributes to out[i+1]; -root * a contributes to out[i]
		out[i+1] = out[i+1].Add(out[i+1], a)
		t := p.suite.Scalar().Mul(a, negRoot)
		out[i] = out[i].Add(out[i], t)
	}
	return &Poly{suite: p.suite, coeffs: out}
}

// Interpolate returns the degree-len(points)-1 polynomial passing through
// the given (x, y) pairs, via Lagrange interpolation. x values must be
// distinct.
func Interpolate(suite Suite, xs []int64, ys []kyber.Scalar) (*Poly, error) {
	if len(xs) != len(ys) {
		return nil, errors.New("poly: mismatched x/y length")
	}
	if len(xs) == 0 {
		return nil, errors.New("poly: need at least one point")
	}
	result := &Poly{suite: suite, coeffs: []kyber.Scalar{suite.Scalar().Zero()}}
	xScalars := make([]kyber.Scalar, len(xs))
	for i, x := range xs {
		xScalars[i] = scalarFromInt(suite, x)
	}
	for i := range xs {
		// Build the Lagrange basis polynomial l_i(x) = prod_{j!=i} (x - x_j)/(x_i - x_j).
		basis := &Poly{suite: suite, coeffs: []kyber.Scalar{suite.Scalar().One()}}
		denom := suite.Scalar().One()
		for j := range xs {
			if i == j {
				continue
			}
			basis = basis.mulLinear(xScalars[j])
			diff := suite.Scalar().Sub(xScalars[i], xScalars[j])
			denom = denom.Mul(denom, diff)
		}
		invDenom := suite.Scalar().Inv(denom)
		term := basis.Scale(suite.Scalar().Mul(ys[i], invDenom))
		result = result.Add(term)
	}
	return result, nil
}

// Commit computes a Pedersen-style commitment to p: g1^{a_0}, g1^{a_1}, ...
func (p *Poly) Commit() *Commitment {
	base := p.suite.Point().Base()
	out := make([]kyber.Point, len(p.coeffs))
	for i, a := range p.coeffs {
		out[i] = p.suite.Point().Mul(a, base)
	}
	return &Commitment{suite: p.suite, coeffs: out}
}

// MarshalBinary serializes the polynomial's coefficients in canonical,
// fixed-length, little-endian form: a 4-byte coefficient count followed by
// each scalar's fixed-width encoding.
func (p *Poly) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(p.coeffs))); err != nil {
		return nil, err
	}
	for _, a := range p.coeffs {
		b, err := a.MarshalBinary()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// UnmarshalPoly deserializes bytes produced by MarshalBinary.
func UnmarshalPoly(suite Suite, data []byte) (*Poly, error) {
	buf := bytes.NewReader(data)
	var n uint32
	if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("poly: reading coefficient count: %w", err)
	}
	scalarLen := suite.ScalarLen()
	coeffs := make([]kyber.Scalar, n)
	tmp := make([]byte, scalarLen)
	for i := range coeffs {
		if _, err := io.ReadFull(buf, tmp); err != nil {
			return nil, fmt.Errorf("poly: reading coefficient %d: %w", i, err)
		}
		s := suite.Scalar()
		if err := s.UnmarshalBinary(tmp); err != nil {
			return nil, fmt.Errorf("poly: unmarshaling coefficient %d: %w", i, err)
		}
		coeffs[i] = s
	}
	return &Poly{suite: suite, coeffs: coeffs}, nil
}

// Commitment is a Pedersen-style commitment to a univariate polynomial: the
// vector of g1^{a_i}.
type Commitment struct {
	suite  Suite
	coeffs []kyber.Point
}

// Evaluate computes the commitment to p(x), i.e. g1^{p(x)}, without
// knowledge of p's coefficients.
func (c *Commitment) Evaluate(x int64) kyber.Point {
	xs := scalarFromInt(c.suite, x)
	result := c.suite.Point().Null()
	for i := len(c.coeffs) - 1; i >= 0; i-- {
		result = c.suite.Point().Mul(xs, result)
		result = c.suite.Point().Add(result, c.coeffs[i])
	}
	return result
}

// Add returns the pointwise sum of two commitments (homomorphic addition:
// the sum commits to the sum of the underlying polynomials).
func (c *Commitment) Add(o *Commitment) *Commitment {
	n := len(c.coeffs)
	if len(o.coeffs) > n {
		n = len(o.coeffs)
	}
	out := make([]kyber.Point, n)
	for i := 0; i < n; i++ {
		out[i] = c.suite.Point().Null()
		if i < len(c.coeffs) {
			out[i] = c.suite.Point().Add(out[i], c.coeffs[i])
		}
		if i < len(o.coeffs) {
			out[i] = c.suite.Point().Add(out[i], o.coeffs[i])
		}
	}
	return &Commitment{suite: c.suite, coeffs: out}
}

// Equal reports whether two commitments commit to the same coefficients.
func (c *Commitment) Equal(o *Commitment) bool {
	if o == nil || len(c.coeffs) != len(o.coeffs) {
		return false
	}
	for i := range c.coeffs {
		if !c.coeffs[i].Equal(o.coeffs[i]) {
			return false
		}
	}
	return true
}

// PublicKey returns the commitment's constant term, i.e. g1^{a_0} — the
// group's public key when c commits to a secret-sharing polynomial.
func (c *Commitment) PublicKey() kyber.Point {
	if len(c.coeffs) == 0 {
		return nil
	}
	return c.coeffs[0]
}

// Coefficients returns the raw g1^{a_i} commitment coefficients, lowest
// degree first. Exposed so callers can hand the commitment to code expecting
// a standard public sharing polynomial representation (e.g. kyber/share).
func (c *Commitment) Coefficients() []kyber.Point {
	out := make([]kyber.Point, len(c.coeffs))
	copy(out, c.coeffs)
	return out
}

// MarshalBinary serializes the commitment in canonical, fixed-length form.
func (c *Commitment) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(c.coeffs))); err != nil {
		return nil, err
	}
	for _, p := range c.coeffs {
		b, err := p.MarshalBinary()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// UnmarshalCommitment deserializes bytes produced by (*Commitment).MarshalBinary.
func UnmarshalCommitment(suite Suite, data []byte) (*Commitment, error) {
	buf := bytes.NewReader(data)
	var n uint32
	if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("poly: reading coefficient count: %w", err)
	}
	pointLen := suite.PointLen()
	coeffs := make([]kyber.Point, n)
	tmp := make([]byte, pointLen)
	for i := range coeffs {
		if _, err := io.ReadFull(buf, tmp); err != nil {
			return nil, fmt.Errorf("poly: reading coefficient %d: %w", i, err)
		}
		p := suite.Point()
		if err := p.UnmarshalBinary(tmp); err != nil {
			return nil, fmt.Errorf("poly: unmarshaling coefficient %d: %w", i, err)
		}
		coeffs[i] = p
	}
	return &Commitment{suite: suite, coeffs: coeffs}, nil
}
