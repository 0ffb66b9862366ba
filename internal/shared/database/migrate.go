package database

import (
	"gorm.io/gorm"

	"refundsaga/internal/bookings"
	"refundsaga/internal/refunds"
)

// MigrateBookings creates the booking store schema
func MigrateBookings(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return err
	}
	if err := db.AutoMigrate(&bookings.Booking{}); err != nil {
		return err
	}
	return MigrateBookingIndexes(db)
}

// MigratePayments creates the refund store schema
func MigratePayments(db *gorm.DB) error {
	if err := db.AutoMigrate(&refunds.Refund{}); err != nil {
		return err
	}
	return MigrateRefundIndexes(db)
}
