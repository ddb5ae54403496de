// Package store persists a node's view of a DKG epoch to disk with
// go.etcd.io/bbolt, so a host that restarts mid-epoch can replay what it has
// already seen into a fresh dkg.KeyGen instead of losing the round (see
// spec.md §1's note on "a host wishing to survive a restart mid-epoch").
package store

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	bolt "go.etcd.io/bbolt"

	"github.com/drand/syncdkg/dkg"
	"github.com/drand/syncdkg/internal/log"
	"github.com/drand/syncdkg/internal/roster"
	"github.com/drand/syncdkg/poly"
)

// FileName is the default database file name within a node's data directory.
const FileName = "syncdkg.db"

// OpenPerm is the file permission used when creating the database.
const OpenPerm = 0o600

var (
	proposeBucket = []byte("propose")
	acceptBucket  = []byte("accept")
	resultBucket  = []byte("result")

	resultPublicKeySetKey = []byte("public_key_set")
	resultSecretShareKey  = []byte("secret_key_share")
)

// Store is a single node's persisted view of one DKG epoch.
type Store struct {
	db  *bolt.DB
	log log.Logger
}

// Open opens (creating if necessary) the database at filepath.Join(dir,
// FileName).
func Open(dir string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	path := filepath.Join(dir, FileName)
	db, err := bolt.Open(path, OpenPerm, nil)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{proposeBucket, acceptBucket, resultBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: initializing buckets: %w", err)
	}
	return &Store{db: db, log: logger.Named("store")}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutPropose records proposerIdx's Propose message, keyed by its roster
// position so a restart never replays two Proposes from the same proposer.
func (s *Store) PutPropose(proposerIdx uint32, p *dkg.Propose) error {
	buf, err := p.MarshalBinary()
	if err != nil {
		return fmt.Errorf("store: marshaling propose: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(proposeBucket).Put(idxKey(proposerIdx), buf)
	})
}

// Proposes returns every stored Propose, keyed by proposer roster position.
func (s *Store) Proposes() (map[uint32][]byte, error) {
	out := make(map[uint32][]byte)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(proposeBucket).ForEach(func(k, v []byte) error {
			out[keyIdx(k)] = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: reading proposes: %w", err)
	}
	return out, nil
}

// PutAccept records senderIdx's Accept for proposerIdx's proposal.
func (s *Store) PutAccept(senderIdx, proposerIdx uint32, a *dkg.Accept) error {
	buf, err := a.MarshalBinary()
	if err != nil {
		return fmt.Errorf("store: marshaling accept: %w", err)
	}
	key := append(idxKey(proposerIdx), idxKey(senderIdx)...)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(acceptBucket).Put(key, buf)
	})
}

// Accepts returns every stored Accept's raw bytes.
func (s *Store) Accepts() ([][]byte, error) {
	var out [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(acceptBucket).ForEach(func(_, v []byte) error {
			out = append(out, append([]byte(nil), v...))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: reading accepts: %w", err)
	}
	return out, nil
}

// storedAccept pairs a persisted Accept's raw bytes with the sender index
// PutAccept encoded into its key, needed by Replay to call HandleAccept
// with the correct sender identity.
type storedAccept struct {
	senderIdx uint32
	data      []byte
}

func (s *Store) acceptsBySender() ([]storedAccept, error) {
	var out []storedAccept
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(acceptBucket).ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				return fmt.Errorf("malformed accept key of length %d", len(k))
			}
			out = append(out, storedAccept{senderIdx: keyIdx(k[4:8]), data: append([]byte(nil), v...)})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: reading accepts: %w", err)
	}
	return out, nil
}

// PutResult persists the final public key set and, if we are a validator,
// our secret key share.
func (s *Store) PutResult(pks *dkg.PublicKeySet, sk *dkg.SecretKeyShare) error {
	pksBuf, err := pks.MarshalBinary()
	if err != nil {
		return fmt.Errorf("store: marshaling public key set: %w", err)
	}
	var skBuf []byte
	if sk != nil {
		skBuf, err = sk.MarshalBinary()
		if err != nil {
			return fmt.Errorf("store: marshaling secret key share: %w", err)
		}
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(resultBucket)
		if err := b.Put(resultPublicKeySetKey, pksBuf); err != nil {
			return err
		}
		if skBuf != nil {
			return b.Put(resultSecretShareKey, skBuf)
		}
		return nil
	})
}

// Result returns the raw bytes of a previously persisted public key set and
// secret key share (the latter nil if this node is an observer, or if
// PutResult was never called). Both are nil if no result was ever stored.
func (s *Store) Result() (publicKeySet []byte, secretShare []byte, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(resultBucket)
		publicKeySet = copyOrNil(b.Get(resultPublicKeySetKey))
		secretShare = copyOrNil(b.Get(resultSecretShareKey))
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("store: reading result: %w", err)
	}
	return publicKeySet, secretShare, nil
}

func copyOrNil(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func idxKey(idx uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, idx)
	return buf
}

func keyIdx(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// Replay feeds every persisted Propose and Accept back into a freshly
// constructed kg, in proposer-index order, so a node that restarted
// mid-epoch can recover the state it had before losing process memory (see
// spec.md §6's note on hosts persisting and replaying the message log).
// Faults surfaced while replaying are collected rather than aborting the
// whole replay, since one bad historical message should not prevent
// recovering everything else the node had already verified.
func (s *Store) Replay(suite poly.Suite, rost *roster.Roster, kg *dkg.KeyGen) error {
	proposes, err := s.Proposes()
	if err != nil {
		return fmt.Errorf("store: replaying proposes: %w", err)
	}

	var result *multierror.Error
	for idx := uint32(0); int(idx) < rost.Len(); idx++ {
		buf, ok := proposes[idx]
		if !ok {
			continue
		}
		p, err := dkg.UnmarshalPropose(suite, buf)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("store: unmarshaling propose %d: %w", idx, err))
			continue
		}
		proposerID := rost.Nodes[idx].ID
		if outcome := kg.HandlePropose(proposerID, p); outcome != nil && !outcome.Faults.IsEmpty() {
			result = multierror.Append(result, fmt.Errorf("store: replayed propose from %s was faulty", proposerID))
		}
	}

	accepts, err := s.acceptsBySender()
	if err != nil {
		return fmt.Errorf("store: replaying accepts: %w", err)
	}
	for i, stored := range accepts {
		a, err := dkg.UnmarshalAccept(stored.data)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("store: unmarshaling accept %d: %w", i, err))
			continue
		}
		if int(stored.senderIdx) >= rost.Len() {
			result = multierror.Append(result, fmt.Errorf("store: replayed accept %d has unknown sender %d", i, stored.senderIdx))
			continue
		}
		senderID := rost.Nodes[stored.senderIdx].ID
		if faults := kg.HandleAccept(senderID, a); !faults.IsEmpty() {
			result = multierror.Append(result, fmt.Errorf("store: replayed accept from %s was faulty", senderID))
		}
	}
	return result.ErrorOrNil()
}
