/*
store.go - Persistence interface for record sets

PURPOSE:
  Defines the interface between the engine and the flat-file record store.
  The store is an external collaborator: a remote content API (GitHub
  contents), a local SQLite file, or memory. The engine only ever does
  read-all-then-compute and read-modify-write, one set at a time.

OPTIMISTIC CONCURRENCY:
  Every read returns a revision token; every write presents the token it
  read. A stale token makes the store reject the write with
  ErrRevisionConflict - the engine never detects conflicts proactively.

MISSING SETS:
  Reading a set that does not exist yet returns an empty set and an empty
  revision, not an error. The first write creates it.

IMPLEMENTATIONS:
  - store/github: the production remote store (contents API, sha revisions)
  - store/sqlite: local single-file store for offline and dev use
  - store/memory: in-memory store for tests

SEE ALSO:
  - session.go: loads all sets through this interface and commits changes
*/
package billing

import (
	"context"

	"github.com/warp/billing-engine/recordset"
)

// Revision is an opaque optimistic-concurrency token for one record set.
// Empty means "set does not exist yet".
type Revision string

// RecordStore reads and writes named record sets.
type RecordStore interface {
	// ReadSet returns the set's rows and current revision. A missing set
	// yields an empty set and empty revision, not an error.
	ReadSet(ctx context.Context, name string) (recordset.Set, Revision, error)

	// WriteSet persists the set, guarded by the revision the caller read.
	// Returns the new revision on success, ErrRevisionConflict when the
	// token is stale, ErrPersistenceFailure otherwise.
	WriteSet(ctx context.Context, name string, set recordset.Set, rev Revision) (Revision, error)
}

// Record set names as stored on disk (one CSV file each).
const (
	SetApartments  = "apartments"
	SetServices    = "services"
	SetTariffs     = "tariffs"
	SetMeters      = "meters"
	SetReadings    = "readings"
	SetHeating     = "heating"
	SetAdjustments = "adjustments"
	SetOverrides   = "overrides"
)

// SetNames lists every record set the engine loads, in load order.
var SetNames = []string{
	SetApartments, SetServices, SetTariffs, SetMeters,
	SetReadings, SetHeating, SetAdjustments, SetOverrides,
}
