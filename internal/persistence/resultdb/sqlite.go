// Package resultdb archives cracking sessions and the seeds they found in a
// sqlite file, so later runs can resume from them.
package resultdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/QingLingXingKong/SeedCracker/internal/cracker"
	"github.com/QingLingXingKong/SeedCracker/internal/timemachine"
	"github.com/QingLingXingKong/SeedCracker/internal/tuning"
)

// Archive writes through a single goroutine; Record never blocks the
// pipeline. The journal stays the source of truth: events are dropped when
// the writer falls behind or the database rejects them, and Dropped counts
// them.
type Archive struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Int64
}

type req struct {
	event cracker.Event
	sync  chan struct{}
}

// Seed is one archived seed.
type Seed struct {
	Session    string
	Kind       string
	Seed       uint64
	Source     string
	RecordedAt time.Time
}

// Session is one archived run.
type Session struct {
	ID        string
	StartedAt time.Time
	Phase     string
	Seeds     int
}

func OpenSQLite(path string) (*Archive, error) {
	if path == "" {
		return nil, fmt.Errorf("resultdb: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &Archive{
		db: db,
		ch: make(chan req, 4096),
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop()
	}()
	return a, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tuning (
			digest TEXT PRIMARY KEY,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			phase TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS seeds (
			session TEXT NOT NULL,
			kind TEXT NOT NULL,
			seed INTEGER NOT NULL,
			source TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (session, kind, seed)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_seeds_kind ON seeds(kind, seed);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) Close() error {
	var err error
	a.once.Do(func() {
		a.closed.Store(true)
		close(a.ch)
		a.wg.Wait()
		err = a.db.Close()
	})
	return err
}

// Record queues an event. It implements cracker.Sink.
func (a *Archive) Record(_ context.Context, e cracker.Event) error {
	if a == nil || a.closed.Load() {
		return nil
	}
	select {
	case a.ch <- req{event: e}:
	default:
		a.dropped.Add(1)
	}
	return nil
}

// Dropped counts events that never reached the database: lost to a full
// queue or to a transaction that was rolled back or failed to commit.
func (a *Archive) Dropped() int64 { return a.dropped.Load() }

// Sync waits until every event queued before it is committed.
func (a *Archive) Sync(ctx context.Context) error {
	if a.closed.Load() {
		return errors.New("resultdb: closed")
	}
	done := make(chan struct{})
	select {
	case a.ch <- req{sync: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertTuning stores the salt table a session ran with, keyed by digest.
func (a *Archive) UpsertTuning(ctx context.Context, t *tuning.Table) error {
	b, err := json.Marshal(t.Decorators)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = a.db.ExecContext(ctx, `INSERT OR REPLACE INTO tuning(digest,json,updated_at) VALUES(?,?,?)`, t.Digest, string(b), now)
	return err
}

// Seeds lists archived seeds of one kind across sessions, oldest first.
func (a *Archive) Seeds(ctx context.Context, kind timemachine.Kind) ([]Seed, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT session, kind, seed, source, recorded_at FROM seeds WHERE kind = ? ORDER BY recorded_at, seed`, kind.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Seed
	for rows.Next() {
		var (
			s    Seed
			seed int64
			at   string
		)
		if err := rows.Scan(&s.Session, &s.Kind, &seed, &s.Source, &at); err != nil {
			return nil, err
		}
		s.Seed = uint64(seed)
		s.RecordedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Sessions lists archived runs, newest first.
func (a *Archive) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT s.session, s.started_at, s.phase,
			(SELECT COUNT(*) FROM seeds WHERE seeds.session = s.session)
		FROM sessions s ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s  Session
			at string
		)
		if err := rows.Scan(&s.ID, &at, &s.Phase, &s.Seeds); err != nil {
			return nil, err
		}
		s.StartedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Restore loads every archived seed into tm and advances it to the furthest
// archived phase. It returns the number of seeds loaded.
func (a *Archive) Restore(ctx context.Context, tm *timemachine.TimeMachine) (int, error) {
	n := 0
	for _, k := range []timemachine.Kind{timemachine.StructureSeeds, timemachine.WorldSeedSet} {
		rows, err := a.db.QueryContext(ctx, `SELECT DISTINCT seed FROM seeds WHERE kind = ? ORDER BY seed`, k.String())
		if err != nil {
			return n, err
		}
		var seeds []uint64
		for rows.Next() {
			var s int64
			if err := rows.Scan(&s); err != nil {
				rows.Close()
				return n, err
			}
			seeds = append(seeds, uint64(s))
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return n, err
		}
		rows.Close()
		if len(seeds) > 0 {
			tm.RecordResult(k, seeds...)
			n += len(seeds)
		}
	}

	rows, err := a.db.QueryContext(ctx, `SELECT DISTINCT phase FROM sessions`)
	if err != nil {
		return n, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return n, err
		}
		if p, err := timemachine.ParsePhase(name); err == nil {
			tm.Poke(p)
		}
	}
	return n, rows.Err()
}

func (a *Archive) loop() {
	ctx := context.Background()

	upsertSession, _ := a.db.Prepare(`INSERT OR IGNORE INTO sessions(session,started_at,phase,updated_at) VALUES(?,?,?,?)`)
	updatePhase, _ := a.db.Prepare(`UPDATE sessions SET phase = ?, updated_at = ? WHERE session = ?`)
	insertSeed, _ := a.db.Prepare(`INSERT OR IGNORE INTO seeds(session,kind,seed,source,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{upsertSession, updatePhase, insertSeed} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		pending       int64
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	// Events of a transaction that does not commit are lost to the archive.
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			a.dropped.Add(pending)
		}
		tx = nil
		opCount, pending = 0, 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		a.dropped.Add(pending)
		tx = nil
		opCount, pending = 0, 0
		lastCommit = time.Now()
	}

	for r := range a.ch {
		if r.sync != nil {
			commit()
			close(r.sync)
			continue
		}
		begin()
		if tx == nil || upsertSession == nil {
			a.dropped.Add(1)
			continue
		}
		pending++
		e := r.event
		at := e.Time.UTC().Format(time.RFC3339Nano)
		if _, err := tx.Stmt(upsertSession).Exec(e.Session, at, timemachine.None.String(), at); err != nil {
			rollback()
			continue
		}
		opCount++

		switch e.Type {
		case cracker.EventPhase:
			if updatePhase == nil {
				rollback()
				continue
			}
			if _, err := tx.Stmt(updatePhase).Exec(e.Phase, at, e.Session); err != nil {
				rollback()
				continue
			}
			opCount++
		case cracker.EventSeed:
			if insertSeed == nil {
				rollback()
				continue
			}
			if _, err := tx.Stmt(insertSeed).Exec(e.Session, e.Kind, int64(e.Seed), e.Source, at); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		// Readers share the single connection, so never idle inside a tx.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(a.ch) == 0 {
			commit()
		}
	}
	commit()
}
