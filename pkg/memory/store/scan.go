package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jordigilh/agent-sre/pkg/models"
)

// errNoRows is an alias kept local to this package so callers can compare
// against pgx's sentinel without importing pgx in every file.
var errNoRows = pgx.ErrNoRows

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// rowScanner is satisfied by both pgx.Row (QueryRow) and pgx.Rows (Query),
// the overlap this package's scanEntry needs.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*models.MemoryEntry, error) {
	var (
		id, memType, agentID string
		rawData              []byte
		createdAt, updatedAt time.Time
		expiresAt            *time.Time
	)

	if err := row.Scan(&id, &memType, &agentID, &rawData, &createdAt, &updatedAt, &expiresAt); err != nil {
		return nil, err
	}

	var data interface{}
	if len(rawData) > 0 {
		if err := json.Unmarshal(rawData, &data); err != nil {
			return nil, err
		}
	}

	entry := &models.MemoryEntry{
		ID:        id,
		Type:      models.MemoryType(memType),
		AgentID:   agentID,
		Data:      data,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if expiresAt != nil {
		entry.ExpiresAt = *expiresAt
	}
	return entry, nil
}
