package database

import (
	"gorm.io/gorm"
)

// MigrateBookingIndexes adds the partial index the booking reconciler scans
func MigrateBookingIndexes(db *gorm.DB) error {
	// Rows written before refund_stale_from existed start their window at
	// the last request
	err := db.Exec(`
		UPDATE bookings SET refund_stale_from = refund_requested_at
		WHERE status = 'REFUND_PENDING' AND refund_stale_from IS NULL;
	`).Error
	if err != nil {
		return err
	}

	if err := db.Exec(`DROP INDEX IF EXISTS idx_bookings_refund_pending;`).Error; err != nil {
		return err
	}

	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_bookings_refund_stale
		ON bookings (refund_stale_from)
		WHERE status = 'REFUND_PENDING';
	`).Error
}

// MigrateRefundIndexes adds the partial index the refund reconciler scans.
// The primary key on id is what makes CreateIfAbsent deduplicate.
func MigrateRefundIndexes(db *gorm.DB) error {
	err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_refunds_pending_updated
		ON refunds (updated_at)
		WHERE status = 'PENDING';
	`).Error
	if err != nil {
		return err
	}

	// Add index for operator lookups by booking
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_refunds_booking_created
		ON refunds (booking_id, created_at);
	`).Error
}
