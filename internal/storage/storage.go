// Package storage persists pipeline artifacts: raw exports, normalized
// tables and enrichment results.
package storage

import (
	"github.com/IshaanNene/homestalk/internal/types"
)

// Stage names used in artifact file names.
const (
	StageRaw      = "raw"
	StageFiltered = "filtered"
	StageDetails  = "details"
)

// ArtifactStore is the interface for all artifact backends. Each Save
// method returns a locator for what it wrote (a path, or a collection
// reference for database backends).
type ArtifactStore interface {
	// SaveTable persists a normalized table under the given stage.
	SaveTable(stage, name string, t *types.Table) (string, error)

	// SaveDetails persists enrichment results.
	SaveDetails(name string, details []types.ListingDetail) (string, error)

	// SaveRaw persists an unmodified bulk export.
	SaveRaw(name string, data []byte) (string, error)

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// RunScoped is implemented by backends that tag what they write with the
// current run.
type RunScoped interface {
	SetRun(runID, query string)
}
