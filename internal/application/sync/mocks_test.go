package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	syncdomain "github.com/pos/backend/internal/domain/sync"
)

// MockChangeLogRepository is a mock implementation of ChangeLogRepository
type MockChangeLogRepository struct {
	mock.Mock
}

func (m *MockChangeLogRepository) Append(ctx context.Context, record *syncdomain.ChangeRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockChangeLogRepository) PullBatch(ctx context.Context, tenantID uuid.UUID, storeID *uuid.UUID, sinceVersion int64, limit int) ([]*syncdomain.ChangeRecord, error) {
	args := m.Called(ctx, tenantID, storeID, sinceVersion, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*syncdomain.ChangeRecord), args.Error(1)
}

func (m *MockChangeLogRepository) HistorySince(ctx context.Context, table string, rowID uuid.UUID, sinceVersion int64) ([]*syncdomain.ChangeRecord, error) {
	args := m.Called(ctx, table, rowID, sinceVersion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*syncdomain.ChangeRecord), args.Error(1)
}

func (m *MockChangeLogRepository) MaxCommittedVersion(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChangeLogRepository) PurgeOlderThan(ctx context.Context, before time.Time, floor int64, batch int) (int64, error) {
	args := m.Called(ctx, before, floor, batch)
	return args.Get(0).(int64), args.Error(1)
}

// MockSyncSessionRepository is a mock implementation of SyncSessionRepository
type MockSyncSessionRepository struct {
	mock.Mock
}

func (m *MockSyncSessionRepository) FindOrCreate(ctx context.Context, tenantID uuid.UUID, storeID *uuid.UUID, clientID string) (*syncdomain.SyncSession, error) {
	args := m.Called(ctx, tenantID, storeID, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncdomain.SyncSession), args.Error(1)
}

func (m *MockSyncSessionRepository) Advance(ctx context.Context, sessionID uuid.UUID, version int64) error {
	args := m.Called(ctx, sessionID, version)
	return args.Error(0)
}

func (m *MockSyncSessionRepository) Touch(ctx context.Context, sessionID uuid.UUID) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockSyncSessionRepository) MinActiveCursor(ctx context.Context, activeSince time.Time) (int64, bool, error) {
	args := m.Called(ctx, activeSince)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

// MockTombstoneRepository is a mock implementation of TombstoneRepository
type MockTombstoneRepository struct {
	mock.Mock
}

func (m *MockTombstoneRepository) Append(ctx context.Context, tombstone *syncdomain.Tombstone) error {
	args := m.Called(ctx, tombstone)
	return args.Error(0)
}

func (m *MockTombstoneRepository) FindSince(ctx context.Context, tenantID uuid.UUID, storeID *uuid.UUID, since time.Time, limit int) ([]*syncdomain.Tombstone, error) {
	args := m.Called(ctx, tenantID, storeID, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*syncdomain.Tombstone), args.Error(1)
}

func (m *MockTombstoneRepository) PurgeOlderThan(ctx context.Context, before time.Time, batch int) (int64, error) {
	args := m.Called(ctx, before, batch)
	return args.Get(0).(int64), args.Error(1)
}

// MockAuditLogRepository is a mock implementation of AuditLogRepository
type MockAuditLogRepository struct {
	mock.Mock
}

func (m *MockAuditLogRepository) Append(ctx context.Context, entry *syncdomain.AuditLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditLogRepository) FindByObject(ctx context.Context, table string, objectID uuid.UUID, limit int) ([]*syncdomain.AuditLogEntry, error) {
	args := m.Called(ctx, table, objectID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*syncdomain.AuditLogEntry), args.Error(1)
}

func (m *MockAuditLogRepository) PurgeOlderThan(ctx context.Context, before time.Time, batch int) (int64, error) {
	args := m.Called(ctx, before, batch)
	return args.Get(0).(int64), args.Error(1)
}
