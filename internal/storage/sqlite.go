package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	logx "stockbot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; SQLite serializes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %q: %w", p, err)
		}
	}

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate() error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return err
	}
	v, err := goose.GetDBVersion(s.db)
	if err != nil {
		return err
	}
	s.log.Debug("sqlite schema ready", logx.Int64("version", v))
	return nil
}

func (s *sqliteStore) Load(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{}

	rows, err := s.db.QueryContext(ctx, `SELECT user_id, notification_frequency FROM users`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id string
		var hours int
		if err := rows.Scan(&id, &hours); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		snap[id] = UserRecord{Symbols: []string{}, IntervalHours: hours}
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT user_id, symbol FROM subscriptions ORDER BY user_id, position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, sym string
		if err := rows.Scan(&id, &sym); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		r, ok := snap[id]
		if !ok {
			continue
		}
		r.Symbols = append(r.Symbols, sym)
		snap[id] = r
	}
	return snap, rows.Err()
}

// Save replaces both tables in one transaction.
func (s *sqliteStore) Save(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return err
	}

	userStmt, err := tx.PrepareContext(ctx, `INSERT INTO users(user_id, notification_frequency) VALUES(?, ?)`)
	if err != nil {
		return err
	}
	defer userStmt.Close()
	subStmt, err := tx.PrepareContext(ctx, `INSERT INTO subscriptions(user_id, symbol, position) VALUES(?, ?, ?)`)
	if err != nil {
		return err
	}
	defer subStmt.Close()

	for id, r := range snap {
		if _, err := userStmt.ExecContext(ctx, id, r.IntervalHours); err != nil {
			return err
		}
		for i, sym := range r.Symbols {
			if _, err := subStmt.ExecContext(ctx, id, sym, i); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s.db == nil {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	ok := 0
	if e.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, actor_username, chat_id, action, target, ok, err, meta)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.ActorID, nullStr(e.ActorUsername), e.ChatID,
		e.Action, nullStr(e.Target), ok, nullStr(e.Error), nullStr(e.MetaJSON),
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
