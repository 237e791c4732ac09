package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kleinballenmafia/ballen_backend/config"
	"gorm.io/gorm"
)

const invoiceCounterId = 1

// InvoiceCounter is the singleton row behind invoice numbering. The counter
// is scoped to its year and never resets automatically; a new year requires
// seeding a fresh counter (see cmd/seed-demo).
type InvoiceCounter struct {
	ID            int       `gorm:"primary_key" json:"id"`
	Year          int       `gorm:"not null" json:"year"`
	CurrentNumber int       `gorm:"not null;default:0" json:"current_number"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FormatInvoiceNumber renders the year-scoped invoice number, zero-padding
// the sequence to two digits ("2026/08"; three digits and up print as-is).
func FormatInvoiceNumber(year int, number int) string {
	return fmt.Sprintf("%d/%02d", year, number)
}

// AllocateInvoiceNumber increments the counter and returns the allocated
// number string. The increment is a compare-and-set: the UPDATE is keyed on
// the previously read value and retried on conflict, so concurrent callers
// can never allocate the same number.
func AllocateInvoiceNumber(ctx context.Context) (string, error) {
	db := config.GetDB()

	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var counter InvoiceCounter
		if err := db.WithContext(ctx).First(&counter, invoiceCounterId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", ErrCounterMissing
			}
			return "", err
		}

		next := counter.CurrentNumber + 1
		res := db.WithContext(ctx).Model(&InvoiceCounter{}).
			Where("id = ? AND current_number = ?", invoiceCounterId, counter.CurrentNumber).
			Update("current_number", next)
		if res.Error != nil {
			return "", res.Error
		}
		if res.RowsAffected == 1 {
			return FormatInvoiceNumber(counter.Year, next), nil
		}
		// Lost the race; re-read and try again.
	}
	return "", errors.New("invoice counter contention: allocation retries exhausted")
}
