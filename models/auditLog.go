package models

import (
	"context"
	"fmt"
	"time"

	"github.com/kleinballenmafia/ballen_backend/config"
)

// AuditEntry is a free-form trail of stock adjustments and order
// transitions. Appends are best-effort: callers log failures and continue.
type AuditEntry struct {
	ID        int         `gorm:"primary_key" json:"id"`
	Action    AuditAction `gorm:"size:40;not null" json:"action"`
	Details   string      `gorm:"type:text;not null" json:"details"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func RecordAudit(ctx context.Context, action AuditAction, details string) error {
	entry := AuditEntry{
		Action:  action,
		Details: details,
	}
	db := config.GetDB()
	return db.WithContext(ctx).Create(&entry).Error
}

// RecordAuditForInventory appends the standard stock-adjustment audit line.
func RecordAuditForInventory(ctx context.Context, action AuditAction, item *InventoryItem, delta int) error {
	return RecordAudit(ctx, action, describeInventoryAdjustment(item, delta))
}

// RecordAuditForOrder appends the standard order-transition audit line.
func RecordAuditForOrder(ctx context.Context, action AuditAction, order *Order) error {
	return RecordAudit(ctx, action, describeOrderTransition(order))
}

func GetAuditEntries(ctx context.Context) ([]AuditEntry, error) {
	var entries []AuditEntry
	db := config.GetDB()
	if err := db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func describeInventoryAdjustment(item *InventoryItem, delta int) string {
	sign := ""
	if delta > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s: %s%d (Neuer Bestand: %d)", item.DisplayName, sign, delta, item.Quantity)
}

func describeOrderTransition(order *Order) string {
	verb := "abgeschlossen"
	if order.Status == OrderStatusCancelled {
		verb = "storniert"
	}
	return fmt.Sprintf("Bestellung %s: %s - %dx %s", verb, order.Customer, order.Quantity, order.Product)
}
