package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/pos/backend/internal/domain/shared"
)

// SyncSession tracks one client device's pull cursor within a tenant/store
// scope. LastSyncedVersion is the highest change version the client has fully
// and durably applied; it is monotonic non-decreasing for the lifetime of the
// session.
type SyncSession struct {
	ID                uuid.UUID
	TenantID          *uuid.UUID
	StoreID           *uuid.UUID
	ClientID          string
	LastSyncedVersion int64
	LastSeen          time.Time
}

// NewSyncSession creates a session on first contact from a client, with the
// cursor at zero so the next pull starts from the beginning of history.
func NewSyncSession(tenantID uuid.UUID, storeID *uuid.UUID, clientID string) *SyncSession {
	return &SyncSession{
		ID:                uuid.New(),
		TenantID:          &tenantID,
		StoreID:           storeID,
		ClientID:          clientID,
		LastSyncedVersion: 0,
		LastSeen:          time.Now(),
	}
}

// AdvanceTo moves the cursor forward. Moving it backwards is rejected: a
// client that lost local state must register under a new client id rather
// than rewind a shared cursor. Equal versions are a no-op.
func (s *SyncSession) AdvanceTo(version int64) error {
	if version < s.LastSyncedVersion {
		return shared.ErrCursorRegression
	}
	s.LastSyncedVersion = version
	s.LastSeen = time.Now()
	return nil
}

// Touch records client contact without moving the cursor
func (s *SyncSession) Touch() {
	s.LastSeen = time.Now()
}

// IdleSince reports whether the client has not been seen since the given time
func (s *SyncSession) IdleSince(t time.Time) bool {
	return s.LastSeen.Before(t)
}
