package models

import (
	"time"

	"github.com/google/uuid"

	syncdomain "github.com/pos/backend/internal/domain/sync"
)

// ChangeRecordModel is the persistence model for the append-only change log.
// The primary key is the allocated change version, never an auto-increment.
type ChangeRecordModel struct {
	ChangeVersion int64               `gorm:"primaryKey;autoIncrement:false;column:change_version"`
	Table         string              `gorm:"column:table_name;type:varchar(100);not null;index:idx_change_log_row,priority:1"`
	RowID         uuid.UUID           `gorm:"type:uuid;not null;index:idx_change_log_row,priority:2"`
	TenantID      *uuid.UUID          `gorm:"type:uuid;index"`
	StoreID       *uuid.UUID          `gorm:"type:uuid;index"`
	Operation     string              `gorm:"type:varchar(1);not null"`
	Payload       syncdomain.Document `gorm:"type:jsonb"`
	CreatedAt     time.Time           `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ChangeRecordModel) TableName() string {
	return "change_log"
}

// ToDomain converts the persistence model to a domain ChangeRecord
func (m *ChangeRecordModel) ToDomain() *syncdomain.ChangeRecord {
	return &syncdomain.ChangeRecord{
		ChangeVersion: m.ChangeVersion,
		TableName:     m.Table,
		RowID:         m.RowID,
		TenantID:      m.TenantID,
		StoreID:       m.StoreID,
		Operation:     syncdomain.Operation(m.Operation),
		Payload:       m.Payload,
		CreatedAt:     m.CreatedAt,
	}
}

// ChangeRecordModelFromDomain converts a domain ChangeRecord to its persistence model
func ChangeRecordModelFromDomain(r *syncdomain.ChangeRecord) *ChangeRecordModel {
	return &ChangeRecordModel{
		ChangeVersion: r.ChangeVersion,
		Table:         r.TableName,
		RowID:         r.RowID,
		TenantID:      r.TenantID,
		StoreID:       r.StoreID,
		Operation:     string(r.Operation),
		Payload:       r.Payload,
		CreatedAt:     r.CreatedAt,
	}
}

// TombstoneModel is the persistence model for delete markers. Ids come from
// their own sequence, independent of change versions.
type TombstoneModel struct {
	ID        int64      `gorm:"primaryKey;autoIncrement:false"`
	Table     string     `gorm:"column:table_name;type:varchar(100);not null;index:idx_tombstones_row,priority:1"`
	RowID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_tombstones_row,priority:2"`
	TenantID  *uuid.UUID `gorm:"type:uuid;index"`
	StoreID   *uuid.UUID `gorm:"type:uuid;index"`
	DeletedAt time.Time  `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (TombstoneModel) TableName() string {
	return "tombstones"
}

// ToDomain converts the persistence model to a domain Tombstone
func (m *TombstoneModel) ToDomain() *syncdomain.Tombstone {
	return &syncdomain.Tombstone{
		ID:        m.ID,
		TableName: m.Table,
		RowID:     m.RowID,
		TenantID:  m.TenantID,
		StoreID:   m.StoreID,
		DeletedAt: m.DeletedAt,
	}
}

// TombstoneModelFromDomain converts a domain Tombstone to its persistence model
func TombstoneModelFromDomain(t *syncdomain.Tombstone) *TombstoneModel {
	return &TombstoneModel{
		ID:        t.ID,
		Table:     t.TableName,
		RowID:     t.RowID,
		TenantID:  t.TenantID,
		StoreID:   t.StoreID,
		DeletedAt: t.DeletedAt,
	}
}

// AuditLogModel is the persistence model for the immutable audit ledger
type AuditLogModel struct {
	ID          int64               `gorm:"primaryKey;autoIncrement"`
	TenantID    *uuid.UUID          `gorm:"type:uuid;index"`
	StoreID     *uuid.UUID          `gorm:"type:uuid;index"`
	UserID      *uuid.UUID          `gorm:"type:uuid;index"`
	ObjectTable string              `gorm:"type:varchar(100);not null;index:idx_audit_log_object,priority:1"`
	ObjectID    uuid.UUID           `gorm:"type:uuid;not null;index:idx_audit_log_object,priority:2"`
	Action      string              `gorm:"type:varchar(1);not null"`
	Data        syncdomain.Document `gorm:"type:jsonb"`
	ChangedAt   time.Time           `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (AuditLogModel) TableName() string {
	return "audit_log"
}

// ToDomain converts the persistence model to a domain AuditLogEntry
func (m *AuditLogModel) ToDomain() *syncdomain.AuditLogEntry {
	return &syncdomain.AuditLogEntry{
		ID:          m.ID,
		TenantID:    m.TenantID,
		StoreID:     m.StoreID,
		UserID:      m.UserID,
		ObjectTable: m.ObjectTable,
		ObjectID:    m.ObjectID,
		Action:      syncdomain.Operation(m.Action),
		Data:        m.Data,
		ChangedAt:   m.ChangedAt,
	}
}

// AuditLogModelFromDomain converts a domain AuditLogEntry to its persistence model
func AuditLogModelFromDomain(e *syncdomain.AuditLogEntry) *AuditLogModel {
	return &AuditLogModel{
		ID:          e.ID,
		TenantID:    e.TenantID,
		StoreID:     e.StoreID,
		UserID:      e.UserID,
		ObjectTable: e.ObjectTable,
		ObjectID:    e.ObjectID,
		Action:      string(e.Action),
		Data:        e.Data,
		ChangedAt:   e.ChangedAt,
	}
}

// SyncSessionModel is the persistence model for per-client sync cursors
type SyncSessionModel struct {
	ID                uuid.UUID  `gorm:"type:uuid;primary_key"`
	TenantID          *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_sync_sessions_client,priority:1"`
	StoreID           *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_sync_sessions_client,priority:2"`
	ClientID          string     `gorm:"type:varchar(200);not null;uniqueIndex:idx_sync_sessions_client,priority:3"`
	LastSyncedVersion int64      `gorm:"not null;default:0"`
	LastSeen          time.Time  `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (SyncSessionModel) TableName() string {
	return "sync_sessions"
}

// ToDomain converts the persistence model to a domain SyncSession
func (m *SyncSessionModel) ToDomain() *syncdomain.SyncSession {
	return &syncdomain.SyncSession{
		ID:                m.ID,
		TenantID:          m.TenantID,
		StoreID:           m.StoreID,
		ClientID:          m.ClientID,
		LastSyncedVersion: m.LastSyncedVersion,
		LastSeen:          m.LastSeen,
	}
}

// SyncSessionModelFromDomain converts a domain SyncSession to its persistence model
func SyncSessionModelFromDomain(s *syncdomain.SyncSession) *SyncSessionModel {
	return &SyncSessionModel{
		ID:                s.ID,
		TenantID:          s.TenantID,
		StoreID:           s.StoreID,
		ClientID:          s.ClientID,
		LastSyncedVersion: s.LastSyncedVersion,
		LastSeen:          s.LastSeen,
	}
}

// SyncConflictModel is the persistence model for flagged sync conflicts
type SyncConflictModel struct {
	ID            uuid.UUID           `gorm:"type:uuid;primary_key"`
	TenantID      *uuid.UUID          `gorm:"type:uuid;index"`
	StoreID       *uuid.UUID          `gorm:"type:uuid;index"`
	Table         string              `gorm:"column:table_name;type:varchar(100);not null;index:idx_sync_conflicts_row,priority:1"`
	RowID         uuid.UUID           `gorm:"type:uuid;not null;index:idx_sync_conflicts_row,priority:2"`
	ClientPayload syncdomain.Document `gorm:"type:jsonb"`
	ServerPayload syncdomain.Document `gorm:"type:jsonb"`
	Strategy      string              `gorm:"type:varchar(50);not null"`
	CreatedAt     time.Time           `gorm:"not null;index"`
	ResolvedAt    *time.Time          `gorm:"index"`
	Resolution    syncdomain.Document `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (SyncConflictModel) TableName() string {
	return "sync_conflicts"
}

// ToDomain converts the persistence model to a domain SyncConflict
func (m *SyncConflictModel) ToDomain() *syncdomain.SyncConflict {
	return &syncdomain.SyncConflict{
		ID:            m.ID,
		TenantID:      m.TenantID,
		StoreID:       m.StoreID,
		TableName:     m.Table,
		RowID:         m.RowID,
		ClientPayload: m.ClientPayload,
		ServerPayload: m.ServerPayload,
		Strategy:      m.Strategy,
		CreatedAt:     m.CreatedAt,
		ResolvedAt:    m.ResolvedAt,
		Resolution:    m.Resolution,
	}
}

// SyncConflictModelFromDomain converts a domain SyncConflict to its persistence model
func SyncConflictModelFromDomain(c *syncdomain.SyncConflict) *SyncConflictModel {
	return &SyncConflictModel{
		ID:            c.ID,
		TenantID:      c.TenantID,
		StoreID:       c.StoreID,
		Table:         c.TableName,
		RowID:         c.RowID,
		ClientPayload: c.ClientPayload,
		ServerPayload: c.ServerPayload,
		Strategy:      c.Strategy,
		CreatedAt:     c.CreatedAt,
		ResolvedAt:    c.ResolvedAt,
		Resolution:    c.Resolution,
	}
}
