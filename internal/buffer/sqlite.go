package buffer

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3"

	"github.com/macrat/outpost/internal/outposterr"
	api "github.com/macrat/outpost/lib-outpost"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pings (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	namespace TEXT NOT NULL,
	service TEXT NOT NULL,
	time INTEGER NOT NULL,
	ms INTEGER NOT NULL,
	location TEXT NOT NULL,
	kind TEXT
);
`

// SQLiteBuffer is a Buffer that stores pings in a SQLite database.
type SQLiteBuffer struct {
	db   *sql.DB
	gate gate
}

// OpenSQLiteBuffer opens or creates a SQLite database for buffer.
func OpenSQLiteBuffer(ctx context.Context, path string, opts Options) (*SQLiteBuffer, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, outposterr.New(api.ErrIO, err, "failed to open buffer database")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, outposterr.New(api.ErrIO, err, "failed to connect buffer database")
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, outposterr.New(api.ErrIO, err, "failed to create buffer table")
	}

	return &SQLiteBuffer{
		db:   db,
		gate: newGate(opts),
	}, nil
}

func (b *SQLiteBuffer) Append(ctx context.Context, pings []api.Ping) error {
	if len(pings) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return outposterr.New(api.ErrIO, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO pings (namespace, service, time, ms, location, kind) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return outposterr.New(api.ErrIO, err, "failed to prepare statement")
	}
	defer stmt.Close()

	for _, p := range pings {
		var kind sql.NullString
		if p.Kind != api.PingKindUnknown {
			kind = sql.NullString{String: p.Kind.String(), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx, p.Namespace, p.Service, p.Time, int64(p.MS), p.Location, kind); err != nil {
			return outposterr.New(api.ErrIO, err, "failed to insert ping")
		}
	}

	if err := tx.Commit(); err != nil {
		return outposterr.New(api.ErrIO, err, "failed to commit pings")
	}

	return nil
}

func (b *SQLiteBuffer) DrainIfReady(ctx context.Context) ([]api.Ping, error) {
	var oldest int64
	err := b.db.QueryRowContext(ctx, `SELECT time FROM pings ORDER BY seq LIMIT 1`).Scan(&oldest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, outposterr.New(api.ErrIO, err, "failed to read the oldest ping")
	}

	if !b.gate.isOldEnough(oldest) {
		return nil, nil
	}

	rows, err := b.db.QueryContext(ctx, `SELECT namespace, service, time, ms, location, kind FROM pings ORDER BY seq`)
	if err != nil {
		return nil, outposterr.New(api.ErrIO, err, "failed to read pings")
	}
	defer rows.Close()

	var pings []api.Ping
	for rows.Next() {
		var p api.Ping
		var ms int64
		var kind sql.NullString

		if err := rows.Scan(&p.Namespace, &p.Service, &p.Time, &ms, &p.Location, &kind); err != nil {
			return nil, outposterr.New(api.ErrIO, err, "failed to read ping")
		}

		p.MS = uint64(ms)
		if kind.Valid {
			p.Kind = api.ParsePingKind(kind.String)
		}

		pings = append(pings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, outposterr.New(api.ErrIO, err, "failed to read pings")
	}

	return pings, nil
}

func (b *SQLiteBuffer) Clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM pings`); err != nil {
		return outposterr.New(api.ErrIO, err, "failed to delete pings")
	}
	return nil
}

func (b *SQLiteBuffer) Close() error {
	return b.db.Close()
}
