package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)
	return gormDB, mock
}

func TestMigrateBookingIndexes(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE bookings SET refund_stale_from = refund_requested_at\s+WHERE status = 'REFUND_PENDING' AND refund_stale_from IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DROP INDEX IF EXISTS idx_bookings_refund_pending`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_bookings_refund_stale\s+ON bookings \(refund_stale_from\)\s+WHERE status = 'REFUND_PENDING'`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, MigrateBookingIndexes(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRefundIndexes(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_refunds_pending_updated\s+ON refunds \(updated_at\)\s+WHERE status = 'PENDING'`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_refunds_booking_created`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, MigrateRefundIndexes(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRefundIndexesStopsOnError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_refunds_pending_updated`).
		WillReturnError(assert.AnError)

	assert.ErrorIs(t, MigrateRefundIndexes(db), assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
