package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/pos/backend/internal/domain/shared"
)

// Conflict strategies. The default policy is flag-and-block: a conflict is
// recorded and left for an explicit external decision. Silent last-write-wins
// is never applied.
const (
	StrategyManual = "manual"
)

// Resolution choices for a flagged conflict
type ResolutionChoice string

const (
	ResolutionAcceptClient ResolutionChoice = "accept_client"
	ResolutionAcceptServer ResolutionChoice = "accept_server"
	ResolutionMerged       ResolutionChoice = "merged"
)

// SyncConflict records a divergence between a client's offline edit and the
// server-side mutation history for the same row. It is terminal once
// ResolvedAt is set.
type SyncConflict struct {
	ID            uuid.UUID
	TenantID      *uuid.UUID
	StoreID       *uuid.UUID
	TableName     string
	RowID         uuid.UUID
	ClientPayload Document
	ServerPayload Document
	Strategy      string
	CreatedAt     time.Time
	ResolvedAt    *time.Time
	Resolution    Document
}

// NewSyncConflict flags a divergent client edit. Both payloads are captured
// so the decision-maker can inspect exactly what diverged.
func NewSyncConflict(table string, rowID uuid.UUID, clientPayload, serverPayload Document) *SyncConflict {
	c := &SyncConflict{
		ID:            uuid.New(),
		TableName:     table,
		RowID:         rowID,
		ClientPayload: clientPayload,
		ServerPayload: serverPayload,
		Strategy:      StrategyManual,
		CreatedAt:     time.Now(),
	}
	if tenantID, ok := serverPayload.UUID("tenant_id"); ok {
		c.TenantID = &tenantID
	} else if tenantID, ok := clientPayload.UUID("tenant_id"); ok {
		c.TenantID = &tenantID
	}
	if storeID, ok := serverPayload.UUID("store_id"); ok {
		c.StoreID = &storeID
	} else if storeID, ok := clientPayload.UUID("store_id"); ok {
		c.StoreID = &storeID
	}
	return c
}

// IsResolved reports whether an external decision has been applied
func (c *SyncConflict) IsResolved() bool {
	return c.ResolvedAt != nil
}

// Resolve marks the conflict terminal with the chosen outcome. The resolution
// document records the choice and the payload that won; applying that payload
// to the row is the caller's job and goes through the normal tracked write
// path so it leaves its own change record.
func (c *SyncConflict) Resolve(choice ResolutionChoice, applied Document) error {
	if c.IsResolved() {
		return shared.ErrConflictResolved
	}
	now := time.Now()
	c.ResolvedAt = &now
	c.Resolution = Document{
		"choice":  string(choice),
		"applied": map[string]any(applied),
	}
	return nil
}
