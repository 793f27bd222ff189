package persistence

import (
	"context"
	"fmt"
	"sync/atomic"

	"gorm.io/gorm"

	syncdomain "github.com/pos/backend/internal/domain/sync"
)

const (
	// ChangeVersionSequence backs global change versions
	ChangeVersionSequence = "change_version_seq"
	// TombstoneIDSequence backs tombstone ids, independent of change versions
	TombstoneIDSequence = "tombstone_id_seq"
)

// SequenceAllocator issues change versions and tombstone ids from Postgres
// sequences. Sequences are atomic and non-transactional, so concurrent
// callers never serialize on a shared row and a rolled-back transaction
// simply burns its value.
type SequenceAllocator struct {
	db *gorm.DB
}

// NewSequenceAllocator creates a sequence-backed allocator
func NewSequenceAllocator(db *gorm.DB) *SequenceAllocator {
	return &SequenceAllocator{db: db}
}

// AllocateChangeVersion returns the next global change version
func (a *SequenceAllocator) AllocateChangeVersion(ctx context.Context) (int64, error) {
	return a.next(ctx, ChangeVersionSequence)
}

// AllocateTombstoneID returns the next tombstone id
func (a *SequenceAllocator) AllocateTombstoneID(ctx context.Context) (int64, error) {
	return a.next(ctx, TombstoneIDSequence)
}

func (a *SequenceAllocator) next(ctx context.Context, sequence string) (int64, error) {
	var value int64
	if err := a.db.WithContext(ctx).Raw("SELECT nextval(?)", sequence).Scan(&value).Error; err != nil {
		return 0, fmt.Errorf("failed to allocate from sequence %s: %w", sequence, err)
	}
	return value, nil
}

var _ syncdomain.VersionAllocator = (*SequenceAllocator)(nil)

// MemoryAllocator issues versions from process-local atomic counters. It is
// used by sqlite-backed deployments and tests, where no database sequence
// exists. Seed it with the current maxima so versions stay monotonic across
// restarts.
type MemoryAllocator struct {
	changeVersion atomic.Int64
	tombstoneID   atomic.Int64
}

// NewMemoryAllocator creates an allocator starting after the given values
func NewMemoryAllocator(lastChangeVersion, lastTombstoneID int64) *MemoryAllocator {
	a := &MemoryAllocator{}
	a.changeVersion.Store(lastChangeVersion)
	a.tombstoneID.Store(lastTombstoneID)
	return a
}

// AllocateChangeVersion returns the next global change version
func (a *MemoryAllocator) AllocateChangeVersion(_ context.Context) (int64, error) {
	return a.changeVersion.Add(1), nil
}

// AllocateTombstoneID returns the next tombstone id
func (a *MemoryAllocator) AllocateTombstoneID(_ context.Context) (int64, error) {
	return a.tombstoneID.Add(1), nil
}

var _ syncdomain.VersionAllocator = (*MemoryAllocator)(nil)
