package models

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kleinballenmafia/ballen_backend/utils"
	"gorm.io/gorm"
)

// The fixed product catalogue of the business. Keys are normalized display
// names; stock rows are pre-seeded per product and never deleted.
var defaultProducts = []string{
	"Gerstenstroh",
	"Weizenstroh",
	"Heu",
	"Großballen Heu",
}

// CreateDefaultInventory seeds a zero-quantity stock row per catalogue
// product. Existing rows are left untouched.
func CreateDefaultInventory(tx *gorm.DB, ctx context.Context) error {
	for _, displayName := range defaultProducts {
		item := InventoryItem{
			Name:        utils.NormalizeProductKey(displayName),
			DisplayName: displayName,
			Quantity:    0,
		}
		var existing InventoryItem
		err := tx.WithContext(ctx).Where("name = ?", item.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
			return err
		}
	}
	return nil
}

// CreateDefaultInvoiceCounter seeds the counter singleton when absent.
// The year comes from INVOICE_YEAR, defaulting to the current calendar
// year. An existing counter is never modified: moving to a new year is a
// deliberate operator action, not an automatic rollover.
func CreateDefaultInvoiceCounter(tx *gorm.DB, ctx context.Context) error {
	year := time.Now().Year()
	if v := strings.TrimSpace(os.Getenv("INVOICE_YEAR")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			year = n
		}
	}

	var existing InvoiceCounter
	err := tx.WithContext(ctx).First(&existing, invoiceCounterId).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	counter := InvoiceCounter{
		ID:            invoiceCounterId,
		Year:          year,
		CurrentNumber: 0,
	}
	return tx.WithContext(ctx).Create(&counter).Error
}
