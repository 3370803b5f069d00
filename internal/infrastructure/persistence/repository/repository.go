// Package repository implements the correlation store and the supporting
// stores on sqlite.
package repository

import (
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// nullUUID converts an optional id to a driver value
func nullUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

// scanUUID converts a nullable column back to an optional id
func scanUUID(v sql.NullString) (*uuid.UUID, error) {
	if !v.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(v.String)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid uuid in column", goerr.V("value", v.String))
	}
	return &id, nil
}

func marshalJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode column")
	}
	return string(b), nil
}
