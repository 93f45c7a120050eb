// Package bolt is a go.etcd.io/bbolt-backed Store adapter: one bucket
// per tournament, key = bracket_id (big-endian uint64), value = the
// gob-encoded, zstd-compressed StoredBracket envelope. Chosen over a
// raw file-per-bracket layout because bbolt already gives the module
// atomic multi-key transactions and crash-safe durability, matching
// how the teacher's kv store layer (erigon-lib/kv) leans on bbolt's
// guarantees rather than reimplementing them.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"

	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"

	"github.com/pkg/errors"
	"github.com/tourneyforge/livebracket/internal/store"
)

func bucketName(tournamentID uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, tournamentID)
	return append([]byte("tournament:"), buf...)
}

// specBucketName is a distinct bucket namespace from bucketName's live
// snapshots: registration (BracketSpec) outlives, and precedes, any
// live state written for the bracket.
func specBucketName(tournamentID uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, tournamentID)
	return append([]byte("tournament-spec:"), buf...)
}

func keyBytes(bracketID uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bracketID)
	return buf
}

type Store struct {
	db      *bolt.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open opens (creating if absent) a bbolt database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "bolt: open database")
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "bolt: init zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "bolt: init zstd decoder")
	}
	return &Store{db: db, encoder: enc, decoder: dec}, nil
}

func (s *Store) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return s.db.Close()
}

func (s *Store) LoadBracketState(_ context.Context, key store.BracketKey) (*store.StoredBracket, error) {
	var snap store.StoredBracket
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(key.TournamentID))
		if b == nil {
			return nil
		}
		raw := b.Get(keyBytes(key.BracketID))
		if raw == nil {
			return nil
		}
		found = true
		plain, err := s.decoder.DecodeAll(raw, nil)
		if err != nil {
			return errors.Wrap(err, "bolt: zstd decompress snapshot")
		}
		return gob.NewDecoder(bytes.NewReader(plain)).Decode(&snap)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return &snap, nil
}

func (s *Store) SaveBracketState(_ context.Context, key store.BracketKey, snap *store.StoredBracket) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return errors.Wrap(err, "bolt: gob-encode snapshot")
	}
	compressed := s.encoder.EncodeAll(buf.Bytes(), nil)
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(key.TournamentID))
		if err != nil {
			return errors.Wrap(err, "bolt: create tournament bucket")
		}
		return b.Put(keyBytes(key.BracketID), compressed)
	})
}

func (s *Store) LoadBracketSpec(_ context.Context, key store.BracketKey) (*store.BracketSpec, error) {
	var spec store.BracketSpec
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(specBucketName(key.TournamentID))
		if b == nil {
			return nil
		}
		raw := b.Get(keyBytes(key.BracketID))
		if raw == nil {
			return nil
		}
		found = true
		return gob.NewDecoder(bytes.NewReader(raw)).Decode(&spec)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return &spec, nil
}

func (s *Store) SaveBracketSpec(_ context.Context, key store.BracketKey, spec *store.BracketSpec) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(spec); err != nil {
		return errors.Wrap(err, "bolt: gob-encode spec")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(specBucketName(key.TournamentID))
		if err != nil {
			return errors.Wrap(err, "bolt: create tournament spec bucket")
		}
		return b.Put(keyBytes(key.BracketID), buf.Bytes())
	})
}

func (s *Store) BracketExists(_ context.Context, key store.BracketKey) (bool, error) {
	exists := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(specBucketName(key.TournamentID))
		if b == nil {
			return nil
		}
		exists = b.Get(keyBytes(key.BracketID)) != nil
		return nil
	})
	return exists, err
}
