// Package sqlite is a modernc.org/sqlite-backed Store adapter (pure
// Go, no cgo — matching the teacher's own preference for cgo-free
// builds). A single bracket_snapshots table holds the gob+zstd
// envelope; tournaments/entrants/roles tables are also migrated here
// as the natural home for the out-of-scope-but-named CRUD surface
// (spec §1) — schema only, no business logic, since that REST layer
// is an explicit non-goal.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/tourneyforge/livebracket/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS bracket_snapshots (
	tournament_id INTEGER NOT NULL,
	bracket_id    INTEGER NOT NULL,
	payload       BLOB NOT NULL,
	updated_at    TEXT NOT NULL,
	PRIMARY KEY (tournament_id, bracket_id)
);

-- Registration metadata, written once when a bracket is created and
-- read back only when no bracket_snapshots row exists yet (the very
-- first subscription's lazy layout). Distinct from bracket_snapshots:
-- a bracket is a valid subscription target once it is registered here,
-- whether or not live state has ever been written for it.
CREATE TABLE IF NOT EXISTS brackets (
	tournament_id  INTEGER NOT NULL,
	bracket_id     INTEGER NOT NULL,
	system_id      INTEGER NOT NULL,
	options        BLOB NOT NULL,
	entrants_order BLOB NOT NULL,
	PRIMARY KEY (tournament_id, bracket_id)
);

-- Out-of-scope CRUD surface (spec §1 non-goal): schema only, never
-- queried by this module beyond migration.
CREATE TABLE IF NOT EXISTS tournaments (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entrants (
	id            INTEGER PRIMARY KEY,
	tournament_id INTEGER NOT NULL REFERENCES tournaments(id),
	display_name  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS roles (
	user_id       INTEGER NOT NULL,
	tournament_id INTEGER NOT NULL REFERENCES tournaments(id),
	role          TEXT NOT NULL,
	PRIMARY KEY (user_id, tournament_id)
);
`

type Store struct {
	db      *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open opens (creating and migrating if absent) a sqlite database
// file at path. Use ":memory:" for ephemeral use in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: open database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite: migrate schema")
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite: init zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite: init zstd decoder")
	}
	return &Store{db: db, encoder: enc, decoder: dec}, nil
}

func (s *Store) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return s.db.Close()
}

func (s *Store) LoadBracketState(ctx context.Context, key store.BracketKey) (*store.StoredBracket, error) {
	var payload []byte
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM bracket_snapshots WHERE tournament_id = ? AND bracket_id = ?`,
		key.TournamentID, key.BracketID)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "sqlite: query snapshot")
	}
	plain, err := s.decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: zstd decompress snapshot")
	}
	var snap store.StoredBracket
	if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(&snap); err != nil {
		return nil, errors.Wrap(err, "sqlite: gob-decode snapshot")
	}
	return &snap, nil
}

func (s *Store) SaveBracketState(ctx context.Context, key store.BracketKey, snap *store.StoredBracket) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return errors.Wrap(err, "sqlite: gob-encode snapshot")
	}
	compressed := s.encoder.EncodeAll(buf.Bytes(), nil)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bracket_snapshots (tournament_id, bracket_id, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tournament_id, bracket_id)
		DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key.TournamentID, key.BracketID, compressed, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrap(err, "sqlite: upsert snapshot")
	}
	return nil
}

func (s *Store) LoadBracketSpec(ctx context.Context, key store.BracketKey) (*store.BracketSpec, error) {
	var systemID uint64
	var optionsBlob, entrantsBlob []byte
	row := s.db.QueryRowContext(ctx,
		`SELECT system_id, options, entrants_order FROM brackets WHERE tournament_id = ? AND bracket_id = ?`,
		key.TournamentID, key.BracketID)
	if err := row.Scan(&systemID, &optionsBlob, &entrantsBlob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "sqlite: query bracket spec")
	}
	var spec store.BracketSpec
	spec.SystemID = systemID
	if err := gob.NewDecoder(bytes.NewReader(optionsBlob)).Decode(&spec.Options); err != nil {
		return nil, errors.Wrap(err, "sqlite: gob-decode spec options")
	}
	if err := gob.NewDecoder(bytes.NewReader(entrantsBlob)).Decode(&spec.EntrantsOrder); err != nil {
		return nil, errors.Wrap(err, "sqlite: gob-decode spec entrants")
	}
	return &spec, nil
}

func (s *Store) SaveBracketSpec(ctx context.Context, key store.BracketKey, spec *store.BracketSpec) error {
	var optionsBuf, entrantsBuf bytes.Buffer
	if err := gob.NewEncoder(&optionsBuf).Encode(spec.Options); err != nil {
		return errors.Wrap(err, "sqlite: gob-encode spec options")
	}
	if err := gob.NewEncoder(&entrantsBuf).Encode(spec.EntrantsOrder); err != nil {
		return errors.Wrap(err, "sqlite: gob-encode spec entrants")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brackets (tournament_id, bracket_id, system_id, options, entrants_order)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tournament_id, bracket_id)
		DO UPDATE SET system_id = excluded.system_id, options = excluded.options, entrants_order = excluded.entrants_order`,
		key.TournamentID, key.BracketID, spec.SystemID, optionsBuf.Bytes(), entrantsBuf.Bytes())
	if err != nil {
		return errors.Wrap(err, "sqlite: upsert bracket spec")
	}
	return nil
}

func (s *Store) BracketExists(ctx context.Context, key store.BracketKey) (bool, error) {
	var exists bool
	row := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM brackets WHERE tournament_id = ? AND bracket_id = ?)`,
		key.TournamentID, key.BracketID)
	if err := row.Scan(&exists); err != nil {
		return false, errors.Wrap(err, "sqlite: exists query")
	}
	return exists, nil
}
