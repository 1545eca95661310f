// Package snapshotdb archives world snapshots in SQLite for offline
// inspection. It is a diagnostic aid; snapshots cannot be restored into a
// world.
package snapshotdb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"

	"github.com/edwinsyarief/keiro"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned by Load for an unknown snapshot id.
var ErrNotFound = eris.New("snapshot not found")

// Summary describes one archived snapshot without its entities.
type Summary struct {
	CreatedAt time.Time
	World     string
	Entities  int
	Frame     uint64
	Elapsed   time.Duration
	ID        uuid.UUID
}

// Store is a snapshot archive backed by one SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive at path and applies migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "migrate snapshot schema")
	}
	return &Store{db: db}, nil
}

// runMigrations applies the embedded migrations. The migrate instance is not
// closed because that would close db as well.
func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	defer src.Close()
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Save archives snap under a new id.
func (s *Store) Save(ctx context.Context, snap keiro.Snapshot) (uuid.UUID, error) {
	id := uuid.New()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshots(id, world, frame, elapsed_ns) VALUES (?, ?, ?, ?)`,
			id.String(), snap.World, int64(snap.Frame), snap.Elapsed.Nanoseconds()); err != nil {
			return err
		}
		entStmt, err := tx.PrepareContext(ctx,
			`INSERT INTO snapshot_entities(snapshot_id, seq, slot, guid, has_host) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer entStmt.Close()
		compStmt, err := tx.PrepareContext(ctx,
			`INSERT INTO snapshot_components(snapshot_id, seq, position, name) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer compStmt.Close()

		for seq, e := range snap.Entities {
			if _, err := entStmt.ExecContext(ctx, id.String(), seq, int64(e.Entity.ID), int64(e.Entity.GUID), e.HasHost); err != nil {
				return err
			}
			for pos, name := range e.Components {
				if _, err := compStmt.ExecContext(ctx, id.String(), seq, pos, name); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, eris.Wrapf(err, "save snapshot of %s", snap.World)
	}
	return id, nil
}

// Load reads back a snapshot. Entities keep their archived GUID order.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (keiro.Snapshot, error) {
	var (
		snap    keiro.Snapshot
		frame   int64
		elapsed int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT world, frame, elapsed_ns FROM snapshots WHERE id = ?`, id.String()).
		Scan(&snap.World, &frame, &elapsed)
	if errors.Is(err, sql.ErrNoRows) {
		return keiro.Snapshot{}, eris.Wrapf(ErrNotFound, "snapshot %s", id)
	}
	if err != nil {
		return keiro.Snapshot{}, eris.Wrapf(err, "load snapshot %s", id)
	}
	snap.Frame = uint64(frame)
	snap.Elapsed = time.Duration(elapsed)

	rows, err := s.db.QueryContext(ctx, `
	SELECT e.seq, e.slot, e.guid, e.has_host, c.name
	FROM snapshot_entities e
	LEFT JOIN snapshot_components c ON c.snapshot_id = e.snapshot_id AND c.seq = e.seq
	WHERE e.snapshot_id = ?
	ORDER BY e.seq, c.position`, id.String())
	if err != nil {
		return keiro.Snapshot{}, eris.Wrapf(err, "load entities of %s", id)
	}
	defer rows.Close()
	lastSeq := -1
	for rows.Next() {
		var (
			seq     int
			slot    int64
			guid    int64
			hasHost bool
			name    sql.NullString
		)
		if err := rows.Scan(&seq, &slot, &guid, &hasHost, &name); err != nil {
			return keiro.Snapshot{}, eris.Wrapf(err, "scan entity of %s", id)
		}
		if seq != lastSeq {
			snap.Entities = append(snap.Entities, keiro.EntitySnapshot{
				Entity:     keiro.Entity{ID: uint32(slot), GUID: uint64(guid)},
				HasHost:    hasHost,
				Components: []string{},
			})
			lastSeq = seq
		}
		if name.Valid {
			last := &snap.Entities[len(snap.Entities)-1]
			last.Components = append(last.Components, name.String)
		}
	}
	if err := rows.Err(); err != nil {
		return keiro.Snapshot{}, eris.Wrapf(err, "load entities of %s", id)
	}
	return snap, nil
}

// List returns the archived snapshots of world, newest frame first. An empty
// world lists every snapshot.
func (s *Store) List(ctx context.Context, world string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT s.id, s.world, s.frame, s.elapsed_ns, s.created_at,
	       (SELECT COUNT(*) FROM snapshot_entities e WHERE e.snapshot_id = s.id)
	FROM snapshots s
	WHERE ? = '' OR s.world = ?
	ORDER BY s.frame DESC, s.created_at DESC`, world, world)
	if err != nil {
		return nil, eris.Wrap(err, "list snapshots")
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			rawID   string
			frame   int64
			elapsed int64
		)
		if err := rows.Scan(&rawID, &sum.World, &frame, &elapsed, &sum.CreatedAt, &sum.Entities); err != nil {
			return nil, eris.Wrap(err, "scan snapshot summary")
		}
		if sum.ID, err = uuid.Parse(rawID); err != nil {
			return nil, eris.Wrapf(err, "parse snapshot id %q", rawID)
		}
		sum.Frame = uint64(frame)
		sum.Elapsed = time.Duration(elapsed)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a snapshot and its entities.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id.String())
	if err != nil {
		return eris.Wrapf(err, "delete snapshot %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrNotFound, "snapshot %s", id)
	}
	return nil
}
