// Package db selects and opens the configured store backend.
package db

import (
	"fmt"

	"github.com/marketgame/bridge/lib/store"
	"github.com/marketgame/bridge/lib/store/mongo"
	"github.com/marketgame/bridge/lib/store/postgres"
)

// Supported database types.
const (
	MONGODB  string = "mongodb"
	POSTGRES string = "postgresql"
)

// New opens a connection to the database named by dbtype. An unsupported type is a configuration error, never a
// silent nil store.
func New(dbtype, connection string) (store.DB, error) {
	switch dbtype {
	case MONGODB:
		return mongo.New(connection)
	case POSTGRES:
		return postgres.New(connection)
	}

	return nil, fmt.Errorf("unsupported database type %q", dbtype)
}

// Close gracefully closes the database connection, whichever backend it is.
func Close(dh store.DB) error {
	switch d := dh.(type) {
	case *mongo.Mongo:
		return d.CloseMongo()
	case *postgres.Postgres:
		return d.ClosePostgres()
	}

	return nil
}
