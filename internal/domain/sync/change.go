package sync

import (
	"time"

	"github.com/google/uuid"
)

// Operation identifies the kind of mutation a change record captures
type Operation string

const (
	OperationInsert Operation = "I"
	OperationUpdate Operation = "U"
	OperationDelete Operation = "D"
)

// Valid reports whether the operation is one of the three tracked kinds
func (o Operation) Valid() bool {
	switch o {
	case OperationInsert, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// ChangeRecord is one entry in the append-only change log. ChangeVersion is
// globally unique and strictly increasing across all tables and tenants; the
// payload is a full row snapshot (post-image, or pre-image for deletes), so
// replaying a record is idempotent.
type ChangeRecord struct {
	ChangeVersion int64
	TableName     string
	RowID         uuid.UUID
	TenantID      *uuid.UUID
	StoreID       *uuid.UUID
	Operation     Operation
	Payload       Document
	CreatedAt     time.Time
}

// NewChangeRecord builds a change record for an allocated version. The
// snapshot is the post-image for inserts and updates and the pre-image for
// deletes; the caller has already picked the right one.
func NewChangeRecord(version int64, table string, rowID uuid.UUID, op Operation, snapshot Document) *ChangeRecord {
	rec := &ChangeRecord{
		ChangeVersion: version,
		TableName:     table,
		RowID:         rowID,
		Operation:     op,
		Payload:       snapshot,
		CreatedAt:     time.Now(),
	}
	if tenantID, ok := snapshot.UUID("tenant_id"); ok {
		rec.TenantID = &tenantID
	}
	if storeID, ok := snapshot.UUID("store_id"); ok {
		rec.StoreID = &storeID
	}
	return rec
}

// InScope reports whether the record belongs to the given tenant/store scope.
// A nil store filter matches everything in the tenant; a concrete store filter
// matches that store plus tenant-wide records with no store.
func (c *ChangeRecord) InScope(tenantID uuid.UUID, storeID *uuid.UUID) bool {
	if c.TenantID == nil || *c.TenantID != tenantID {
		return false
	}
	if storeID == nil || c.StoreID == nil {
		return true
	}
	return *c.StoreID == *storeID
}
