// Package store provides the SQLite persistence layer for recorded sessions
// and their exports.
package store

import (
	"database/sql"

	"github.com/hazyhaar/flowrec/dbopen"
)

// Store is the flowrec database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the flowrec SQLite database at path, applies the
// production pragmas and the flowrec schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
