// Package postgres implements the interface for PostgreSQL.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq" //nolint:gci // load the postgres driver that is used by the system

	"github.com/marketgame/bridge/lib/store"
)

type Postgres struct {
	db *sql.DB
}

// New returns a postgres client connection to the specified database in 'connection' and makes sure the bridge
// tables exist.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS names (
		address TEXT PRIMARY KEY,
		name TEXT NOT NULL)`); err != nil {
		return nil, fmt.Errorf("cannot create names table: %w", err)
	}

	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS checkpoint (
		id INT PRIMARY KEY,
		price BIGINT NOT NULL,
		start_block BIGINT NOT NULL,
		end_block BIGINT NOT NULL,
		height BIGINT NOT NULL)`); err != nil {
		return nil, fmt.Errorf("cannot create checkpoint table: %w", err)
	}

	return &Postgres{db: db}, nil
}

// ClosePostgres will close any database connection. Must be called at termination time.
func (p *Postgres) ClosePostgres() error {
	return p.db.Close()
}

// SetName saves or replaces the display name for an address.
func (p *Postgres) SetName(address, name string) error {
	_, err := p.db.Exec(`INSERT INTO names (address, name) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET name = EXCLUDED.name`, address, name)
	if err != nil {
		return fmt.Errorf("could not save name in db: %w", err)
	}

	return nil
}

// Names returns the full display-name registry keyed by address.
func (p *Postgres) Names() (map[string]string, error) {
	rows, err := p.db.Query(`SELECT address, name FROM names`)
	if err != nil {
		return nil, fmt.Errorf("error getting names from db: %w", err)
	}
	defer rows.Close()

	names := map[string]string{}

	for rows.Next() {
		var n store.Name
		if err = rows.Scan(&n.Addr, &n.Name); err != nil {
			return nil, fmt.Errorf("error reading name row: %w", err)
		}
		names[n.Addr] = n.Name
	}

	return names, rows.Err()
}

// SaveGame saves to db the game checkpoint.
func (p *Postgres) SaveGame(g store.Game) error {
	_, err := p.db.Exec(`INSERT INTO checkpoint (id, price, start_block, end_block, height)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET price = $1, start_block = $2, end_block = $3, height = $4`,
		int64(g.Price), int64(g.StartBlock), int64(g.EndBlock), int64(g.Height))

	return err
}

// LoadGame loads from db the game checkpoint.
func (p *Postgres) LoadGame() (g store.Game, err error) {
	var price, start, end, height int64

	row := p.db.QueryRow(`SELECT price, start_block, end_block, height FROM checkpoint WHERE id = 1`)
	if err = row.Scan(&price, &start, &end, &height); errors.Is(err, sql.ErrNoRows) {
		return g, store.ErrDataNotFound
	} else if err != nil {
		return g, err
	}

	g = store.Game{Price: uint64(price), StartBlock: uint64(start), EndBlock: uint64(end), Height: uint64(height)}

	return g, nil
}
