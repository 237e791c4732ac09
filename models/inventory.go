package models

import (
	"context"
	"errors"
	"time"

	"github.com/kleinballenmafia/ballen_backend/config"
	"github.com/kleinballenmafia/ballen_backend/utils"
	"gorm.io/gorm"
)

type InventoryItem struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Name        string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	DisplayName string    `gorm:"size:100;not null" json:"display_name"`
	Quantity    int       `gorm:"not null;default:0" json:"quantity"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// applyDelta is the single stock arithmetic rule: decrements clamp at zero
// so a counter can never go negative.
func applyDelta(current int, delta int) int {
	next := current + delta
	if next < 0 {
		return 0
	}
	return next
}

func GetInventoryItems(ctx context.Context) ([]InventoryItem, error) {
	var items []InventoryItem
	db := config.GetDB()
	if err := db.WithContext(ctx).Order("name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// GetInventoryItemByKey looks up a stock row by display name or normalized
// key. Returns ErrProductNotFound for untracked products.
func GetInventoryItemByKey(ctx context.Context, name string) (*InventoryItem, error) {
	db := config.GetDB()
	return GetInventoryItemTx(db.WithContext(ctx), name)
}

func GetInventoryItemTx(tx *gorm.DB, name string) (*InventoryItem, error) {
	var item InventoryItem
	key := utils.NormalizeProductKey(name)
	err := tx.Where("name = ?", key).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &item, nil
}

// AdjustInventory applies a clamped delta to a product's stock counter and
// returns the updated row. Audit logging is the caller's responsibility.
func AdjustInventory(ctx context.Context, name string, delta int) (*InventoryItem, error) {
	db := config.GetDB()
	var item *InventoryItem
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		item, txErr = AdjustInventoryTx(tx, name, delta)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func AdjustInventoryTx(tx *gorm.DB, name string, delta int) (*InventoryItem, error) {
	item, err := GetInventoryItemTx(tx, name)
	if err != nil {
		return nil, err
	}
	item.Quantity = applyDelta(item.Quantity, delta)
	if err := tx.Model(&InventoryItem{}).
		Where("id = ?", item.ID).
		Update("quantity", item.Quantity).Error; err != nil {
		return nil, err
	}
	if err := tx.First(item, item.ID).Error; err != nil {
		return nil, err
	}
	return item, nil
}
