package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kleinballenmafia/ballen_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Defaults applied when a client posts the legacy single-product shape
// without explicit values.
var (
	DefaultProduct      = "Stroh"
	DefaultPricePerUnit = decimal.NewFromFloat(2.5)
)

type OrderItem struct {
	Product      string          `json:"product"`
	Quantity     int             `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

// Amount is the line total (quantity * price_per_unit).
func (i OrderItem) Amount() decimal.Decimal {
	return i.PricePerUnit.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID              int    `gorm:"primary_key" json:"id"`
	Customer        string `gorm:"size:255;not null" json:"customer"`
	CustomerAddress string `gorm:"type:text" json:"customer_address"`
	// Legacy single-product columns; mirror the first line item for
	// backward compatibility with older clients.
	Product       string          `gorm:"size:100;not null" json:"product"`
	Quantity      int             `gorm:"not null;default:0" json:"quantity"`
	PricePerUnit  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price_per_unit"`
	Items         []OrderItem     `gorm:"serializer:json" json:"items"`
	OrderDate     string          `gorm:"size:40" json:"order_date"`
	DeliveryDate  string          `gorm:"size:40" json:"delivery_date"`
	Notes         string          `gorm:"type:text" json:"notes"`
	IsPreorder    bool            `gorm:"not null;default:false" json:"is_preorder"`
	Preferred     bool            `gorm:"not null;default:false" json:"preferred"`
	Status        OrderStatus     `gorm:"size:20;not null" json:"status"`
	InvoiceNumber *string         `gorm:"size:50" json:"invoice_number"`
	CompletedAt   *time.Time      `json:"completed_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ResolveItems collapses the two order shapes into one canonical item list:
// the explicit items column when present, otherwise a single item synthesized
// from the legacy columns. Every persisted order resolves to at least one item.
func (order *Order) ResolveItems() []OrderItem {
	if len(order.Items) > 0 {
		return order.Items
	}
	return []OrderItem{{
		Product:      order.Product,
		Quantity:     order.Quantity,
		PricePerUnit: order.PricePerUnit,
	}}
}

type NewOrder struct {
	Customer        string          `json:"customer"`
	CustomerAddress string          `json:"customer_address"`
	Items           []OrderItem     `json:"items"`
	Product         string          `json:"product"`
	Quantity        int             `json:"quantity"`
	PricePerUnit    decimal.Decimal `json:"price_per_unit"`
	OrderDate       string          `json:"order_date"`
	DeliveryDate    string          `json:"delivery_date"`
	Notes           string          `json:"notes"`
	IsPreorder      bool            `json:"is_preorder"`
	Preferred       bool            `json:"preferred"`
}

// validate input for create.
func (input *NewOrder) validate() error {
	if strings.TrimSpace(input.Customer) == "" {
		return errors.New("customer is required")
	}
	if strings.TrimSpace(input.DeliveryDate) == "" {
		return errors.New("delivery date is required")
	}
	if len(input.Items) == 0 && strings.TrimSpace(input.Product) == "" && input.Quantity <= 0 {
		return errors.New("at least one order item is required")
	}
	for _, item := range input.Items {
		if strings.TrimSpace(item.Product) == "" {
			return errors.New("item product is required")
		}
		if item.Quantity <= 0 {
			return errors.New("item quantity must be positive")
		}
	}
	return nil
}

// resolveInput normalizes a NewOrder into the stored shape: the legacy
// columns always mirror the first line item.
func (input *NewOrder) resolveInput() (items []OrderItem, first OrderItem) {
	items = input.Items
	if len(items) > 0 {
		return items, items[0]
	}
	first = OrderItem{
		Product:      input.Product,
		Quantity:     input.Quantity,
		PricePerUnit: input.PricePerUnit,
	}
	if strings.TrimSpace(first.Product) == "" {
		first.Product = DefaultProduct
	}
	if first.PricePerUnit.IsZero() {
		first.PricePerUnit = DefaultPricePerUnit
	}
	return []OrderItem{}, first
}

// CreateOrder persists a pending order. Invoice number allocation is
// best-effort: a missing or broken counter must never block order intake.
func CreateOrder(ctx context.Context, input *NewOrder) (*Order, error) {
	logger := config.GetLogger()

	if err := input.validate(); err != nil {
		return nil, err
	}

	items, first := input.resolveInput()

	var invoiceNumber *string
	number, err := AllocateInvoiceNumber(ctx)
	if err != nil {
		config.LogError(logger, "order.go", "CreateOrder", "AllocateInvoiceNumber", input.Customer, err)
	} else {
		invoiceNumber = &number
	}

	order := Order{
		Customer:        strings.TrimSpace(input.Customer),
		CustomerAddress: input.CustomerAddress,
		Product:         first.Product,
		Quantity:        first.Quantity,
		PricePerUnit:    first.PricePerUnit,
		Items:           items,
		OrderDate:       input.OrderDate,
		DeliveryDate:    input.DeliveryDate,
		Notes:           input.Notes,
		IsPreorder:      input.IsPreorder,
		Preferred:       input.Preferred,
		Status:          OrderStatusPending,
		InvoiceNumber:   invoiceNumber,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}

	details := fmt.Sprintf("Bestellung angelegt: %s - %dx %s", order.Customer, first.Quantity, first.Product)
	if auditErr := RecordAudit(ctx, AuditActionOrderCreated, details); auditErr != nil {
		config.LogError(logger, "order.go", "CreateOrder", "RecordAudit", order.ID, auditErr)
	}
	return &order, nil
}

func GetOrders(ctx context.Context) ([]Order, error) {
	var orders []Order
	db := config.GetDB()
	if err := db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	db := config.GetDB()
	return GetOrderTx(db.WithContext(ctx), id)
}

func GetOrderTx(tx *gorm.DB, id int) (*Order, error) {
	var order Order
	if err := tx.First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func DeleteOrderTx(tx *gorm.DB, id int) error {
	return tx.Delete(&Order{}, id).Error
}

// DeleteOrder removes an order from the active set.
func DeleteOrder(ctx context.Context, id int) error {
	db := config.GetDB()
	return DeleteOrderTx(db.WithContext(ctx), id)
}

// UpdateOrderStatus is the legacy single-order transition variant: the order
// stays in the table and only its status changes. Completing an order checks
// and deducts the legacy single-item stock inline; the stock pre-check
// rejects the transition before anything is mutated.
func UpdateOrderStatus(ctx context.Context, id int, status OrderStatus) (*Order, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var order *Order
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		order, txErr = GetOrderTx(tx, id)
		if txErr != nil {
			return txErr
		}
		if order.Status.IsTerminal() {
			return ErrOrderAlreadyClosed
		}

		if status == OrderStatusFulfilled {
			item, invErr := GetInventoryItemTx(tx, order.Product)
			if invErr != nil && !errors.Is(invErr, ErrProductNotFound) {
				return invErr
			}
			// Untracked products are always fulfillable.
			if invErr == nil {
				if item.Quantity < order.Quantity {
					return ErrInsufficientStock
				}
				if _, adjErr := AdjustInventoryTx(tx, order.Product, -order.Quantity); adjErr != nil {
					return adjErr
				}
			}
		}

		updates := map[string]interface{}{"status": status}
		if status.IsTerminal() {
			now := time.Now().UTC()
			updates["completed_at"] = &now
		} else {
			updates["completed_at"] = nil
		}
		if txErr = tx.Model(&Order{}).Where("id = ?", id).Updates(updates).Error; txErr != nil {
			return txErr
		}
		return tx.First(order, id).Error
	})
	if err != nil {
		return nil, err
	}

	if order.Status.IsTerminal() {
		action := AuditActionOrderFulfilled
		if order.Status == OrderStatusCancelled {
			action = AuditActionOrderCancelled
		}
		if auditErr := RecordAudit(ctx, action, describeOrderTransition(order)); auditErr != nil {
			config.LogError(logger, "order.go", "UpdateOrderStatus", "RecordAudit", order.ID, auditErr)
		}
	}
	return order, nil
}
