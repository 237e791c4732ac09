package models

import (
	"context"
	"time"

	"github.com/kleinballenmafia/ballen_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderHistory is the append-only archive of terminal orders. Rows are
// written once when an order leaves the active set and never updated.
type OrderHistory struct {
	ID              int             `gorm:"primary_key" json:"id"`
	OrderId         int             `gorm:"index;not null" json:"order_id"`
	Customer        string          `gorm:"size:255;not null" json:"customer"`
	CustomerAddress string          `gorm:"type:text" json:"customer_address"`
	Product         string          `gorm:"size:100;not null" json:"product"`
	Quantity        int             `gorm:"not null;default:0" json:"quantity"`
	PricePerUnit    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price_per_unit"`
	Items           []OrderItem     `gorm:"serializer:json" json:"items"`
	OrderDate       string          `gorm:"size:40" json:"order_date"`
	DeliveryDate    string          `gorm:"size:40" json:"delivery_date"`
	InvoiceNumber   *string         `gorm:"size:50" json:"invoice_number"`
	Outcome         HistoryOutcome  `gorm:"size:20;not null" json:"outcome"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// newOrderHistory copies a terminal order into its archive row, with line
// items resolved so legacy orders archive the synthesized item.
func newOrderHistory(order *Order, outcome HistoryOutcome) *OrderHistory {
	return &OrderHistory{
		OrderId:         order.ID,
		Customer:        order.Customer,
		CustomerAddress: order.CustomerAddress,
		Product:         order.Product,
		Quantity:        order.Quantity,
		PricePerUnit:    order.PricePerUnit,
		Items:           order.ResolveItems(),
		OrderDate:       order.OrderDate,
		DeliveryDate:    order.DeliveryDate,
		InvoiceNumber:   order.InvoiceNumber,
		Outcome:         outcome,
	}
}

func ArchiveOrderTx(tx *gorm.DB, order *Order, outcome HistoryOutcome) (*OrderHistory, error) {
	record := newOrderHistory(order, outcome)
	if err := tx.Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func GetOrderHistory(ctx context.Context) ([]OrderHistory, error) {
	var records []OrderHistory
	db := config.GetDB()
	if err := db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
