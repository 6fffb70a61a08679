// Package database provides storage backends for release data.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/bryan-buckman/dropwatch/internal/model"
)

var (
	// ErrNotFound is returned when no release matches a lookup.
	ErrNotFound = errors.New("database: release not found")
	// ErrEmptyBatch is returned when asked to save an empty listing.
	// An empty scrape is an upstream failure, not "nothing changed".
	ErrEmptyBatch = errors.New("database: no releases to save")
	// ErrValidation is returned when a record is missing a required field.
	ErrValidation = errors.New("database: invalid record")
)

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// Summary operations
	UpsertSummaries(ctx context.Context, batch []model.ReleaseSummary) error
	GetRecentSummaries(ctx context.Context, limit int) ([]model.ReleaseSummary, error)
	CountSummaries(ctx context.Context) (int, error)
	TrimToMostRecent(ctx context.Context, keep int) (int64, error)

	// Detail operations
	UpsertDetail(ctx context.Context, id string, detail model.ShoeDetail) error
	GetByID(ctx context.Context, id string) (*model.StoredItem, error)
	GetByIDPrefix(ctx context.Context, prefix string) (*model.StoredItem, error)
	GetStaleDetailCandidates(ctx context.Context, now time.Time) ([]model.RefreshCandidate, error)
	DeleteOrphanDetails(ctx context.Context) (int64, error)
}
