package dkg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dchest/blake2b"

	"github.com/drand/syncdkg/internal/ecies"
	"github.com/drand/syncdkg/poly"
)

// Propose is a validator's submission for the key generation round. It must
// be broadcast to, and handled by, every participating node, including the
// one that produced it. If it collects enough Accepts it contributes a
// summand to the final key set.
type Propose struct {
	Commit *poly.BivarCommitment
	Rows   []*ecies.Ciphertext // one per roster position, in roster order
}

// MarshalBinary produces the canonical, length-prefixed encoding used for
// hashing and transport-level deduplication.
func (p *Propose) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	commitBuf, err := p.Commit.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("dkg: marshaling propose commitment: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(commitBuf))); err != nil {
		return nil, err
	}
	buf.Write(commitBuf)
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(p.Rows))); err != nil {
		return nil, err
	}
	for i, row := range p.Rows {
		if err := writeCiphertext(&buf, row); err != nil {
			return nil, fmt.Errorf("dkg: marshaling propose row %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Hash returns a canonical digest of the message, used by the transport for
// deduplication.
func (p *Propose) Hash() ([]byte, error) {
	return hashMessage(p)
}

// Equal reports whether two Propose messages are byte-identical.
func (p *Propose) Equal(o *Propose) bool {
	a, err1 := p.MarshalBinary()
	b, err2 := o.MarshalBinary()
	if err1 != nil || err2 != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// UnmarshalPropose deserializes bytes produced by Propose.MarshalBinary,
// recovering a Propose a node can hand back into HandlePropose after a
// restart (see spec.md §6's note on replaying a persisted message log).
func UnmarshalPropose(suite poly.Suite, data []byte) (*Propose, error) {
	buf := bytes.NewReader(data)
	var commitLen uint32
	if err := binary.Read(buf, binary.LittleEndian, &commitLen); err != nil {
		return nil, fmt.Errorf("dkg: reading propose commitment length: %w", err)
	}
	commitBuf := make([]byte, commitLen)
	if _, err := io.ReadFull(buf, commitBuf); err != nil {
		return nil, fmt.Errorf("dkg: reading propose commitment: %w", err)
	}
	commit, err := poly.UnmarshalBivarCommitment(suite, commitBuf)
	if err != nil {
		return nil, fmt.Errorf("dkg: unmarshaling propose commitment: %w", err)
	}
	var rowCount uint32
	if err := binary.Read(buf, binary.LittleEndian, &rowCount); err != nil {
		return nil, fmt.Errorf("dkg: reading propose row count: %w", err)
	}
	rows := make([]*ecies.Ciphertext, rowCount)
	for i := range rows {
		ct, err := readCiphertext(buf)
		if err != nil {
			return nil, fmt.Errorf("dkg: reading propose row %d: %w", i, err)
		}
		rows[i] = ct
	}
	return &Propose{Commit: commit, Rows: rows}, nil
}

// Accept confirms that a node received and verified a proposer's submission.
// It must be broadcast to, and handled by, every participating node,
// including the sender itself.
type Accept struct {
	ProposerIdx uint32
	Values      []*ecies.Ciphertext // one per roster position, in roster order
}

// MarshalBinary produces the canonical, length-prefixed encoding used for
// hashing and transport-level deduplication.
func (a *Accept) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, a.ProposerIdx); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(a.Values))); err != nil {
		return nil, err
	}
	for i, v := range a.Values {
		if err := writeCiphertext(&buf, v); err != nil {
			return nil, fmt.Errorf("dkg: marshaling accept value %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Hash returns a canonical digest of the message, used by the transport for
// deduplication.
func (a *Accept) Hash() ([]byte, error) {
	return hashMessage(a)
}

// Equal reports whether two Accept messages are byte-identical.
func (a *Accept) Equal(o *Accept) bool {
	x, err1 := a.MarshalBinary()
	y, err2 := o.MarshalBinary()
	if err1 != nil || err2 != nil {
		return false
	}
	return bytes.Equal(x, y)
}

// UnmarshalAccept deserializes bytes produced by Accept.MarshalBinary.
func UnmarshalAccept(data []byte) (*Accept, error) {
	buf := bytes.NewReader(data)
	var proposerIdx uint32
	if err := binary.Read(buf, binary.LittleEndian, &proposerIdx); err != nil {
		return nil, fmt.Errorf("dkg: reading accept proposer index: %w", err)
	}
	var valueCount uint32
	if err := binary.Read(buf, binary.LittleEndian, &valueCount); err != nil {
		return nil, fmt.Errorf("dkg: reading accept value count: %w", err)
	}
	values := make([]*ecies.Ciphertext, valueCount)
	for i := range values {
		ct, err := readCiphertext(buf)
		if err != nil {
			return nil, fmt.Errorf("dkg: reading accept value %d: %w", i, err)
		}
		values[i] = ct
	}
	return &Accept{ProposerIdx: proposerIdx, Values: values}, nil
}

type binaryMarshaler interface {
	MarshalBinary() ([]byte, error)
}

func hashMessage(m binaryMarshaler) ([]byte, error) {
	buf, err := m.MarshalBinary()
	if err != nil {
		return nil, err
	}
	h := blake2b.New256()
	h.Write(buf)
	return h.Sum(nil), nil
}

func writeCiphertext(buf *bytes.Buffer, c *ecies.Ciphertext) error {
	for _, field := range [][]byte{c.Ephemeral, c.Nonce, c.Payload} {
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(field))); err != nil {
			return err
		}
		buf.Write(field)
	}
	return nil
}

func readCiphertext(buf *bytes.Reader) (*ecies.Ciphertext, error) {
	fields := make([][]byte, 3)
	for i := range fields {
		var n uint32
		if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		field := make([]byte, n)
		if _, err := io.ReadFull(buf, field); err != nil {
			return nil, err
		}
		fields[i] = field
	}
	return &ecies.Ciphertext{Ephemeral: fields[0], Nonce: fields[1], Payload: fields[2]}, nil
}
