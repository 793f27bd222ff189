package migration

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySyncSchema_AllObjectsPresent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, name := range syncSchemaObjects {
		mock.ExpectQuery(`SELECT to_regclass\(\$1\)`).
			WithArgs(name).
			WillReturnRows(sqlmock.NewRows([]string{"to_regclass"}).AddRow(name))
	}

	require.NoError(t, VerifySyncSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifySyncSchema_NamesMissingObject(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery(`SELECT to_regclass\(\$1\)`).
		WithArgs("change_version_seq").
		WillReturnRows(sqlmock.NewRows([]string{"to_regclass"}).AddRow(nil))

	err = VerifySyncSchema(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "change_version_seq")
}
