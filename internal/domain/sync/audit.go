package sync

import (
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry is one entry in the immutable compliance ledger. Exactly one
// entry is written per mutation, in the same transaction, but the ledger is
// decoupled from sync consumption: purging change records never touches it.
type AuditLogEntry struct {
	ID          int64
	TenantID    *uuid.UUID
	StoreID     *uuid.UUID
	UserID      *uuid.UUID
	ObjectTable string
	ObjectID    uuid.UUID
	Action      Operation
	Data        Document
	ChangedAt   time.Time
}

// NewAuditLogEntry builds an audit entry from the mutation snapshot. A nil
// userID is tolerated: a missing or malformed actor id is recorded as absent,
// never a reason to fail the transaction.
func NewAuditLogEntry(table string, objectID uuid.UUID, action Operation, snapshot Document, userID *uuid.UUID) *AuditLogEntry {
	e := &AuditLogEntry{
		ObjectTable: table,
		ObjectID:    objectID,
		Action:      action,
		Data:        snapshot,
		UserID:      userID,
		ChangedAt:   time.Now(),
	}
	if tenantID, ok := snapshot.UUID("tenant_id"); ok {
		e.TenantID = &tenantID
	}
	if storeID, ok := snapshot.UUID("store_id"); ok {
		e.StoreID = &storeID
	}
	return e
}
