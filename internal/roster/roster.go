// Package roster holds the peer roster the DKG is parameterized by: an
// ordered mapping from opaque node identifiers to long-term public
// encryption keys, stable and agreed across all nodes so that indexing is
// consistent. It mirrors the TOML marshaling drand's key.Group uses for its
// own node list.
package roster

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/drand/kyber"
)

// Node is one roster entry: an opaque identifier and its long-term public
// encryption key. Generation of the underlying key pair is out of this
// module's scope (see spec.md §1); the roster only records the result.
type Node struct {
	ID  string
	Key kyber.Point
}

// Roster is the ordered peer list the DKG runs over. Position in Nodes is a
// node's unbiased index (see poly's +1 bias convention used throughout the
// dkg package).
type Roster struct {
	Group kyber.Group // the group long-term keys live in (e.g. suite.G2())
	Nodes []Node
}

// IndexOf returns the position of id in the roster, or false if id is not a
// participant (i.e. an observer).
func (r *Roster) IndexOf(id string) (int, bool) {
	for i, n := range r.Nodes {
		if n.ID == id {
			return i, true
		}
	}
	return 0, false
}

// Len returns the number of validators in the roster.
func (r *Roster) Len() int {
	return len(r.Nodes)
}

// nodeTOML is the TOML-compatible representation of a single roster entry.
type nodeTOML struct {
	ID  string
	Key string
}

type rosterTOML struct {
	Nodes []nodeTOML
}

// MarshalTOML encodes the roster, hex-encoding each node's public key the
// way drand's key.Identity does.
func (r *Roster) MarshalTOML() ([]byte, error) {
	rt := rosterTOML{Nodes: make([]nodeTOML, len(r.Nodes))}
	for i, n := range r.Nodes {
		buf, err := n.Key.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("roster: marshaling node %q: %w", n.ID, err)
		}
		rt.Nodes[i] = nodeTOML{ID: n.ID, Key: hex.EncodeToString(buf)}
	}
	var out bytes.Buffer
	if err := toml.NewEncoder(&out).Encode(rt); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// UnmarshalTOML decodes a roster previously produced by MarshalTOML. The
// group determines how each hex-encoded key is parsed back into a point.
func UnmarshalTOML(group kyber.Group, data []byte) (*Roster, error) {
	var rt rosterTOML
	if _, err := toml.Decode(string(data), &rt); err != nil {
		return nil, fmt.Errorf("roster: decoding toml: %w", err)
	}
	if len(rt.Nodes) == 0 {
		return nil, errors.New("roster: empty node list")
	}
	nodes := make([]Node, len(rt.Nodes))
	for i, nt := range rt.Nodes {
		buf, err := hex.DecodeString(nt.Key)
		if err != nil {
			return nil, fmt.Errorf("roster: decoding key for %q: %w", nt.ID, err)
		}
		p := group.Point()
		if err := p.UnmarshalBinary(buf); err != nil {
			return nil, fmt.Errorf("roster: unmarshaling key for %q: %w", nt.ID, err)
		}
		nodes[i] = Node{ID: nt.ID, Key: p}
	}
	return &Roster{Group: group, Nodes: nodes}, nil
}
