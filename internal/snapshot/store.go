// Package snapshot is an optional persistence side-car for the engine's
// CaptureState output (spec.md §4.5, §6). It is not on the compile or
// stabilise path; it is a consumer of the engine's public surface, storing
// snapshots under a UUID so a later process can resume a simulation run.
//
// Grounded on internal/database/database.go's pattern of blank-importing
// every SQL driver it might be asked to speak to, dispatched here by the
// DSN's URL scheme instead of a Type field on a connection struct.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/hankhank/exys-sub000/internal/eval"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS engine_snapshots (
	id TEXT PRIMARY KEY,
	payload BLOB NOT NULL
)`

// Logf is the logging hook the store calls after each persisted snapshot,
// matching the teacher's habit of taking a plain func(string, ...any)
// rather than a logger interface.
type Logf func(format string, args ...interface{})

// Store asynchronously persists CaptureState snapshots keyed by a
// generated UUID, so CaptureState itself (spec.md §4.5) never blocks its
// caller on disk or network I/O.
type Store struct {
	db *sql.DB

	jobs   chan saveJob
	group  *errgroup.Group
	cancel context.CancelFunc

	logf Logf
}

type saveJob struct {
	id      string
	payload []byte
}

// Open resolves the SQL driver from dsn's URL scheme (sqlite, mysql,
// postgres/postgresql, or sqlserver), opens the database, ensures the
// snapshot table exists, and starts workers bounded async persistence
// workers.
func Open(dsn string, workers int, logf Logf) (*Store, error) {
	driverName, dataSource, err := driverForDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot: resolve driver")
	}
	db, err := sql.Open(driverName, dataSource)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot: open database")
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "snapshot: create table")
	}
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	s := &Store{
		db:     db,
		jobs:   make(chan saveJob, workers*4),
		cancel: cancel,
		logf:   logf,
	}
	for i := 0; i < workers; i++ {
		g.Go(func() error { return s.worker(gctx) })
	}
	s.group = g
	return s, nil
}

func driverForDSN(dsn string) (driverName, dataSource string, err error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", errors.Wrapf(err, "snapshot: parse dsn %q", dsn)
	}
	switch strings.ToLower(u.Scheme) {
	case "sqlite", "sqlite3", "":
		path := strings.TrimPrefix(dsn, u.Scheme+"://")
		if path == "" {
			path = "file::memory:?cache=shared"
		}
		return "sqlite", path, nil
	case "mysql":
		return "mysql", strings.TrimPrefix(dsn, "mysql://"), nil
	case "postgres", "postgresql":
		return "postgres", dsn, nil
	case "sqlserver":
		return "sqlserver", dsn, nil
	default:
		return "", "", fmt.Errorf("snapshot: unsupported dsn scheme %q", u.Scheme)
	}
}

func (s *Store) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-s.jobs:
			if !ok {
				return nil
			}
			if _, err := s.db.ExecContext(ctx, `INSERT INTO engine_snapshots (id, payload) VALUES (?, ?)
				ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`, job.id, job.payload); err != nil {
				return errors.Wrapf(err, "snapshot: persist %s", job.id)
			}
			s.logf("snapshot %s persisted (%s)", job.id, humanize.Bytes(uint64(len(job.payload))))
		}
	}
}

// Save captures the engine's current state and enqueues it for async
// persistence, returning the snapshot's generated id immediately.
func (s *Store) Save(engine *eval.Engine) (string, error) {
	id := uuid.NewString()
	payload := engine.CaptureState().Marshal()
	select {
	case s.jobs <- saveJob{id: id, payload: payload}:
		return id, nil
	default:
		return "", fmt.Errorf("snapshot: queue full, dropped save for %s", id)
	}
}

// Load fetches a previously saved snapshot by id, synchronously.
func (s *Store) Load(id string) (*eval.State, error) {
	var payload []byte
	row := s.db.QueryRow(`SELECT payload FROM engine_snapshots WHERE id = ?`, id)
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("snapshot: no such id %s", id)
		}
		return nil, errors.Wrapf(err, "snapshot: load %s", id)
	}
	state, err := eval.UnmarshalState(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot: decode %s", id)
	}
	return state, nil
}

// Close stops accepting new saves, drains in-flight persistence workers,
// and closes the underlying database handle. Close must be called at most
// once.
func (s *Store) Close() error {
	close(s.jobs)
	err := s.group.Wait()
	s.cancel()
	if closeErr := s.db.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
