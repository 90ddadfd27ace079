package configstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestSQLStore_LoadMissingReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT value FROM config_store WHERE key = \?`).
		WithArgs(BreakerSnapshotKey).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	store := NewSQLStore(db)
	value, err := store.Load(context.Background(), BreakerSnapshotKey)
	require.NoError(t, err)
	require.Nil(t, value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SaveThenLoadRoundTrips(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	payload := []byte(`{"version":1,"entries":{}}`)

	mock.ExpectExec(`INSERT INTO config_store`).
		WithArgs(BreakerSnapshotKey, payload).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT value FROM config_store WHERE key = \?`).
		WithArgs(BreakerSnapshotKey).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(payload))

	store := NewSQLStore(db)
	require.NoError(t, store.Save(context.Background(), BreakerSnapshotKey, payload))

	got, err := store.Load(context.Background(), BreakerSnapshotKey)
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.NoError(t, mock.ExpectationsWereMet())
}
