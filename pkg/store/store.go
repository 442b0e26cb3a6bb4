// Package store persists evaluated rolls to a SQLite audit log. The
// structured breakdown is stored as an opaque msgpack blob and replayed
// without recomputation.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/abennett/grimoire/pkg/engine"
	"github.com/abennett/grimoire/pkg/messages"
)

const schema = `
CREATE TABLE IF NOT EXISTS rolls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	room TEXT NOT NULL,
	user TEXT NOT NULL,
	action TEXT NOT NULL,
	final_result INTEGER NOT NULL,
	raw_dice_total INTEGER NOT NULL,
	expression TEXT NOT NULL,
	breakdown BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS rolls_room_idx ON rolls (room, created_at);
`

type Store struct {
	db *sql.DB
}

// Open opens the audit log at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRoll inserts one evaluated roll verbatim.
func (s *Store) RecordRoll(ctx context.Context, room string, result messages.EvalResult) error {
	breakdown, err := msgpack.Marshal(result.Result)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rolls (room, user, action, final_result, raw_dice_total, expression, breakdown, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		room,
		result.User,
		result.Action,
		result.Result.FinalResult,
		result.Result.RawDiceTotal,
		result.Result.Expression,
		breakdown,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert roll: %w", err)
	}
	return nil
}

// Roll is one persisted audit entry.
type Roll struct {
	ID        int64
	Room      string
	User      string
	Action    string
	Result    engine.Result
	CreatedAt time.Time
}

// ListByRoom returns a room's rolls in insertion order.
func (s *Store) ListByRoom(ctx context.Context, room string) ([]Roll, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room, user, action, breakdown, created_at
		 FROM rolls WHERE room = ? ORDER BY id`,
		room,
	)
	if err != nil {
		return nil, fmt.Errorf("query rolls: %w", err)
	}
	defer rows.Close()

	var rolls []Roll
	for rows.Next() {
		var (
			roll      Roll
			breakdown []byte
			createdAt int64
		)
		if err = rows.Scan(&roll.ID, &roll.Room, &roll.User, &roll.Action, &breakdown, &createdAt); err != nil {
			return nil, fmt.Errorf("scan roll: %w", err)
		}
		if err = msgpack.Unmarshal(breakdown, &roll.Result); err != nil {
			return nil, fmt.Errorf("unmarshal breakdown: %w", err)
		}
		roll.CreatedAt = time.UnixMilli(createdAt).UTC()
		rolls = append(rolls, roll)
	}
	return rolls, rows.Err()
}
