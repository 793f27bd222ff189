package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// VersionAllocator issues globally unique, strictly increasing change
// versions and, independently, tombstone ids. Implementations must be safe
// under arbitrary concurrent callers without serializing unrelated writers;
// gaps from rolled-back transactions are tolerated, reuse is not.
type VersionAllocator interface {
	AllocateChangeVersion(ctx context.Context) (int64, error)
	AllocateTombstoneID(ctx context.Context) (int64, error)
}

// ChangeLogRepository persists the append-only change log
type ChangeLogRepository interface {
	// Append writes one change record; never updates or deletes existing ones
	Append(ctx context.Context, record *ChangeRecord) error
	// PullBatch returns records in the tenant/store scope with
	// change_version > sinceVersion, ascending, capped at limit. When storeID
	// is set, tenant-wide records (null store) are included too.
	PullBatch(ctx context.Context, tenantID uuid.UUID, storeID *uuid.UUID, sinceVersion int64, limit int) ([]*ChangeRecord, error)
	// HistorySince returns a single row's records with change_version > sinceVersion, ascending
	HistorySince(ctx context.Context, table string, rowID uuid.UUID, sinceVersion int64) ([]*ChangeRecord, error)
	// MaxCommittedVersion returns the highest committed change version, 0 when the log is empty
	MaxCommittedVersion(ctx context.Context) (int64, error)
	// PurgeOlderThan deletes at most batch records created before the cutoff
	// whose change_version does not exceed floor. Returns rows deleted.
	PurgeOlderThan(ctx context.Context, before time.Time, floor int64, batch int) (int64, error)
}

// TombstoneRepository persists delete markers, on their own id sequence and
// with a retention lifecycle independent from the change log
type TombstoneRepository interface {
	Append(ctx context.Context, tombstone *Tombstone) error
	// FindSince returns tombstones in the tenant/store scope deleted after the given time, ascending by id
	FindSince(ctx context.Context, tenantID uuid.UUID, storeID *uuid.UUID, since time.Time, limit int) ([]*Tombstone, error)
	PurgeOlderThan(ctx context.Context, before time.Time, batch int) (int64, error)
}

// AuditLogRepository persists the immutable compliance ledger. Purge is a
// separate maintenance operation, explicitly decoupled from sync retention.
type AuditLogRepository interface {
	Append(ctx context.Context, entry *AuditLogEntry) error
	FindByObject(ctx context.Context, table string, objectID uuid.UUID, limit int) ([]*AuditLogEntry, error)
	PurgeOlderThan(ctx context.Context, before time.Time, batch int) (int64, error)
}

// SyncSessionRepository tracks per-client pull cursors
type SyncSessionRepository interface {
	// FindOrCreate returns the session for the client, creating it with a
	// zero cursor on first contact
	FindOrCreate(ctx context.Context, tenantID uuid.UUID, storeID *uuid.UUID, clientID string) (*SyncSession, error)
	// Advance moves the cursor forward; regressions fail with ErrCursorRegression
	Advance(ctx context.Context, sessionID uuid.UUID, version int64) error
	// Touch updates last_seen without moving the cursor
	Touch(ctx context.Context, sessionID uuid.UUID) error
	// MinActiveCursor returns the lowest cursor among sessions seen after
	// activeSince. ok is false when no such session exists.
	MinActiveCursor(ctx context.Context, activeSince time.Time) (cursor int64, ok bool, err error)
}

// SyncConflictRepository persists flagged divergences awaiting resolution
type SyncConflictRepository interface {
	Save(ctx context.Context, conflict *SyncConflict) error
	FindByID(ctx context.Context, id uuid.UUID) (*SyncConflict, error)
	// FindOpen returns unresolved conflicts for a tenant, oldest first, with pagination
	FindOpen(ctx context.Context, tenantID uuid.UUID, page, pageSize int) ([]*SyncConflict, int64, error)
	Update(ctx context.Context, conflict *SyncConflict) error
}
