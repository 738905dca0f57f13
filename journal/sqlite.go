package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"nfviz.dev/core/status"
)

type SQLite struct {
	db        *sql.DB
	tableName string
}

type SQLiteOpt func(*SQLite)

func WithTableName(name string) SQLiteOpt {
	return func(s *SQLite) {
		s.tableName = name
	}
}

var _ status.Journal = (*SQLite)(nil)

func NewSQLite(dbPath string, opts ...SQLiteOpt) (*SQLite, error) {
	// https://github.com/mattn/go-sqlite3#connection-string
	pragmas := []string{
		"_journal_mode=WAL",
		"_synchronous=NORMAL",
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?" + strings.Join(pragmas, "&")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// a single connection keeps :memory: databases alive and serializes
	// writers
	db.SetMaxOpenConns(1)

	s := &SQLite{
		db:        db,
		tableName: "changes",
	}
	for _, o := range opts {
		o(s)
	}

	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLite) init() error {
	_, err := s.db.Exec(fmt.Sprintf(`
		create table if not exists %s (
			seq integer primary key,
			step text not null,
			kind text not null,
			change text not null, -- json
			created integer not null -- unix nanos
		);`, s.tableName))
	return err
}

func (s *SQLite) Append(ctx context.Context, changes ...status.Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`insert into %s (seq, step, kind, change, created) values (?, ?, ?, ?, ?)`,
		s.tableName,
	))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range changes {
		body, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encoding change %d: %w", c.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, c.Seq, c.Step, string(c.Kind), string(body), c.At.UnixNano()); err != nil {
			return fmt.Errorf("inserting change %d: %w", c.Seq, err)
		}
	}

	return tx.Commit()
}

func (s *SQLite) Since(ctx context.Context, cursor uint64, limit int) ([]status.Change, error) {
	query := fmt.Sprintf(`
		select change
		from %s
		where seq > ?
		order by seq asc
	`, s.tableName)
	args := []any{cursor}
	if limit > 0 {
		query += " limit ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []status.Change
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var c status.Change
		if err := json.Unmarshal([]byte(body), &c); err != nil {
			return nil, fmt.Errorf("decoding change: %w", err)
		}
		changes = append(changes, c)
	}

	return changes, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
