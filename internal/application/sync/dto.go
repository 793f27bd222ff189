package sync

import (
	"time"

	"github.com/google/uuid"

	syncdomain "github.com/pos/backend/internal/domain/sync"
)

// PullRequest asks for the next batch of changes after a cursor. Tenant and
// store scope come from the access context, not the request.
type PullRequest struct {
	ClientID     string
	SinceVersion int64
	Limit        int
}

// ChangeResponse is one change record as served to a sync client
type ChangeResponse struct {
	ChangeVersion int64               `json:"change_version"`
	TableName     string              `json:"table_name"`
	RowID         uuid.UUID           `json:"row_id"`
	Operation     string              `json:"operation"`
	Payload       syncdomain.Document `json:"payload"`
	CreatedAt     time.Time           `json:"created_at"`
}

// PullResponse carries a pull batch. NextCursor equals SinceVersion when the
// client is caught up; HasMore hints that another pull will return records
// immediately.
type PullResponse struct {
	Records    []ChangeResponse `json:"records"`
	NextCursor int64            `json:"next_cursor"`
	HasMore    bool             `json:"has_more"`
}

// ToChangeResponse converts a domain change record to its response shape
func ToChangeResponse(r *syncdomain.ChangeRecord) ChangeResponse {
	return ChangeResponse{
		ChangeVersion: r.ChangeVersion,
		TableName:     r.TableName,
		RowID:         r.RowID,
		Operation:     string(r.Operation),
		Payload:       r.Payload,
		CreatedAt:     r.CreatedAt,
	}
}

// TombstoneRequest asks for delete markers in the caller's scope. A client
// rebuilding after its cursor aged out of change log retention re-pulls full
// state, then reconciles deletions from tombstones newer than its last
// complete sync.
type TombstoneRequest struct {
	Since time.Time
	Limit int
}

// TombstoneResponse is one delete marker served during reconciliation
type TombstoneResponse struct {
	ID        int64     `json:"id"`
	TableName string    `json:"table_name"`
	RowID     uuid.UUID `json:"row_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// ToTombstoneResponse converts a domain tombstone to its response shape
func ToTombstoneResponse(t *syncdomain.Tombstone) TombstoneResponse {
	return TombstoneResponse{
		ID:        t.ID,
		TableName: t.TableName,
		RowID:     t.RowID,
		DeletedAt: t.DeletedAt,
	}
}

// PushRequest submits one offline edit back to the server. BaseVersion is the
// highest change version the client had applied for this row when it made the
// edit; ClientChangeID identifies the submission for retry deduplication.
type PushRequest struct {
	ClientID       string
	ClientChangeID string
	TableName      string
	RowID          uuid.UUID
	Operation      syncdomain.Operation
	BaseVersion    int64
	Payload        syncdomain.Document
}

// PushStatus is the disposition of a push submission
type PushStatus string

const (
	PushStatusApplied    PushStatus = "applied"
	PushStatusDuplicate  PushStatus = "duplicate"
	PushStatusConflicted PushStatus = "conflicted"
)

// PushResult reports what happened to a push submission. ConflictID is set
// only when the edit diverged from server history and was flagged.
type PushResult struct {
	Status     PushStatus `json:"status"`
	ConflictID *uuid.UUID `json:"conflict_id,omitempty"`
}

// ConflictResponse is a flagged conflict as presented for resolution
type ConflictResponse struct {
	ID            uuid.UUID           `json:"id"`
	TableName     string              `json:"table_name"`
	RowID         uuid.UUID           `json:"row_id"`
	ClientPayload syncdomain.Document `json:"client_payload"`
	ServerPayload syncdomain.Document `json:"server_payload"`
	Strategy      string              `json:"strategy"`
	CreatedAt     time.Time           `json:"created_at"`
	ResolvedAt    *time.Time          `json:"resolved_at,omitempty"`
	Resolution    syncdomain.Document `json:"resolution,omitempty"`
}

// ToConflictResponse converts a domain conflict to its response shape
func ToConflictResponse(c *syncdomain.SyncConflict) ConflictResponse {
	return ConflictResponse{
		ID:            c.ID,
		TableName:     c.TableName,
		RowID:         c.RowID,
		ClientPayload: c.ClientPayload,
		ServerPayload: c.ServerPayload,
		Strategy:      c.Strategy,
		CreatedAt:     c.CreatedAt,
		ResolvedAt:    c.ResolvedAt,
		Resolution:    c.Resolution,
	}
}

// AuditEntryResponse is one ledger entry as shown to a conflict resolver
type AuditEntryResponse struct {
	ID        int64               `json:"id"`
	UserID    *uuid.UUID          `json:"user_id,omitempty"`
	Action    string              `json:"action"`
	Data      syncdomain.Document `json:"data"`
	ChangedAt time.Time           `json:"changed_at"`
}

// ToAuditEntryResponse converts a domain audit entry to its response shape
func ToAuditEntryResponse(e *syncdomain.AuditLogEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:        e.ID,
		UserID:    e.UserID,
		Action:    string(e.Action),
		Data:      e.Data,
		ChangedAt: e.ChangedAt,
	}
}

// ResolveConflictRequest carries an external resolution decision. Merged is
// required only when Choice is ResolutionMerged.
type ResolveConflictRequest struct {
	ConflictID uuid.UUID
	Choice     syncdomain.ResolutionChoice
	Merged     syncdomain.Document
}
