package sync

import (
	"time"

	"github.com/google/uuid"
)

// Tombstone marks a deleted row so clients that never received the original
// insert can still reconcile the delete. Tombstone ids come from their own
// sequence and the retention lifecycle is independent from the change log:
// either side may be purged without the other.
type Tombstone struct {
	ID        int64
	TableName string
	RowID     uuid.UUID
	TenantID  *uuid.UUID
	StoreID   *uuid.UUID
	DeletedAt time.Time
}

// NewTombstone builds a tombstone from the deleted row's pre-image
func NewTombstone(id int64, table string, rowID uuid.UUID, preImage Document) *Tombstone {
	t := &Tombstone{
		ID:        id,
		TableName: table,
		RowID:     rowID,
		DeletedAt: time.Now(),
	}
	if tenantID, ok := preImage.UUID("tenant_id"); ok {
		t.TenantID = &tenantID
	}
	if storeID, ok := preImage.UUID("store_id"); ok {
		t.StoreID = &storeID
	}
	return t
}
