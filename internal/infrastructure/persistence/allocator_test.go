package persistence

import (
	"context"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockSequenceAllocator(t *testing.T) (*SequenceAllocator, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewSequenceAllocator(gormDB), mock
}

func TestSequenceAllocator_AllocateChangeVersion(t *testing.T) {
	allocator, mock := newMockSequenceAllocator(t)

	mock.ExpectQuery(`SELECT nextval\(\$1\)`).
		WithArgs(ChangeVersionSequence).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(42)))

	version, err := allocator.AllocateChangeVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSequenceAllocator_AllocateTombstoneID(t *testing.T) {
	allocator, mock := newMockSequenceAllocator(t)

	mock.ExpectQuery(`SELECT nextval\(\$1\)`).
		WithArgs(TombstoneIDSequence).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(7)))

	id, err := allocator.AllocateTombstoneID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSequenceAllocator_Error(t *testing.T) {
	allocator, mock := newMockSequenceAllocator(t)

	mock.ExpectQuery(`SELECT nextval\(\$1\)`).
		WithArgs(ChangeVersionSequence).
		WillReturnError(assert.AnError)

	_, err := allocator.AllocateChangeVersion(context.Background())
	assert.Error(t, err)
}

func TestMemoryAllocator_Monotonic(t *testing.T) {
	allocator := NewMemoryAllocator(100, 5)
	ctx := context.Background()

	v1, err := allocator.AllocateChangeVersion(ctx)
	require.NoError(t, err)
	v2, err := allocator.AllocateChangeVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(101), v1)
	assert.Equal(t, int64(102), v2)

	id, err := allocator.AllocateTombstoneID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), id)
}

func TestMemoryAllocator_Concurrent(t *testing.T) {
	allocator := NewMemoryAllocator(0, 0)
	ctx := context.Background()

	const workers = 50
	const perWorker = 20

	var mu sync.Mutex
	seen := make(map[int64]bool)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				v, err := allocator.AllocateChangeVersion(ctx)
				assert.NoError(t, err)
				mu.Lock()
				assert.False(t, seen[v], "version %d allocated twice", v)
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}
