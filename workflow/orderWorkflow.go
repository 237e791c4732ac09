package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/kleinballenmafia/ballen_backend/config"
	"github.com/kleinballenmafia/ballen_backend/models"
	"github.com/kleinballenmafia/ballen_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FulfillOrder runs the fulfillment transaction script for a pending order:
// resolve line items, pre-check stock for every tracked product, deduct,
// archive with outcome fulfilled, delete from the active set. Everything
// runs inside one DB transaction, so a failure at any step leaves inventory,
// history and the active order untouched. Products without an inventory row
// are untracked and always fulfillable.
func FulfillOrder(ctx context.Context, orderId int) error {
	return runOrderTransition(ctx, orderId, models.HistoryOutcomeFulfilled)
}

// CancelOrder archives a pending order with outcome cancelled and removes it
// from the active set. Inventory is never touched, regardless of stock.
func CancelOrder(ctx context.Context, orderId int) error {
	return runOrderTransition(ctx, orderId, models.HistoryOutcomeCancelled)
}

func runOrderTransition(ctx context.Context, orderId int, outcome models.HistoryOutcome) error {
	logger := config.GetLogger()
	db := config.GetDB()

	// Best-effort lock so two operators can't race the same order. The DB
	// transaction below remains the correctness boundary; when Redis is
	// down we proceed without the lock.
	unlock := obtainOrderLock(ctx, logger, orderId)
	defer unlock()

	var archived *models.Order
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := models.GetOrderTx(tx, orderId)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return models.ErrOrderAlreadyClosed
		}

		if outcome == models.HistoryOutcomeFulfilled {
			if err := deductOrderStock(tx, logger, order); err != nil {
				return err
			}
		}

		if _, err := models.ArchiveOrderTx(tx, order, outcome); err != nil {
			config.LogError(logger, "orderWorkflow.go", "runOrderTransition", "ArchiveOrderTx", orderId, err)
			return err
		}
		if err := models.DeleteOrderTx(tx, orderId); err != nil {
			config.LogError(logger, "orderWorkflow.go", "runOrderTransition", "DeleteOrderTx", orderId, err)
			return err
		}

		order.Status = models.OrderStatusFulfilled
		if outcome == models.HistoryOutcomeCancelled {
			order.Status = models.OrderStatusCancelled
		}
		archived = order
		return nil
	})
	if err != nil {
		return err
	}

	// Audit trail is best-effort; the transition already committed.
	action := models.AuditActionOrderFulfilled
	if outcome == models.HistoryOutcomeCancelled {
		action = models.AuditActionOrderCancelled
	}
	if auditErr := models.RecordAuditForOrder(ctx, action, archived); auditErr != nil {
		config.LogError(logger, "orderWorkflow.go", "runOrderTransition", "RecordAudit", orderId, auditErr)
	}
	return nil
}

// deductOrderStock pre-checks every tracked product before mutating
// anything, then applies all deductions. Demand is aggregated per product
// first, so duplicate line items of the same product are checked against
// their combined quantity. A shortfall on any tracked product rejects the
// whole order with ErrInsufficientStock.
func deductOrderStock(tx *gorm.DB, logger *logrus.Logger, order *models.Order) error {
	needed := map[string]int{}
	displayName := map[string]string{}
	var keys []string
	for _, item := range order.ResolveItems() {
		key := utils.NormalizeProductKey(item.Product)
		if _, seen := needed[key]; !seen {
			keys = append(keys, key)
			displayName[key] = item.Product
		}
		needed[key] += item.Quantity
	}

	type trackedItem struct {
		product string
		needed  int
	}
	var tracked []trackedItem

	for _, key := range keys {
		inv, err := models.GetInventoryItemTx(tx, key)
		if errors.Is(err, models.ErrProductNotFound) {
			// Untracked product: no stock check, no deduction.
			continue
		}
		if err != nil {
			return err
		}
		if inv.Quantity < needed[key] {
			return fmt.Errorf("%w: %s (verfügbar %d, benötigt %d)",
				models.ErrInsufficientStock, displayName[key], inv.Quantity, needed[key])
		}
		tracked = append(tracked, trackedItem{product: key, needed: needed[key]})
	}

	for _, t := range tracked {
		if _, err := models.AdjustInventoryTx(tx, t.product, -t.needed); err != nil {
			config.LogError(logger, "orderWorkflow.go", "deductOrderStock", "AdjustInventoryTx", t.product, err)
			return err
		}
	}
	return nil
}

func obtainOrderLock(ctx context.Context, logger *logrus.Logger, orderId int) func() {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}
	}
	lock, err := locker.Obtain(ctx, fmt.Sprintf("lock:order:%d", orderId), 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		logger.WithFields(logrus.Fields{
			"field":    "obtainOrderLock",
			"order_id": orderId,
		}).Warn("could not obtain redis lock; proceeding without redis lock")
		return func() {}
	} else if err != nil {
		logger.WithFields(logrus.Fields{
			"field":    "obtainOrderLock",
			"order_id": orderId,
		}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		return func() {}
	}
	return func() {
		if releaseErr := lock.Release(ctx); releaseErr != nil {
			logger.WithFields(logrus.Fields{
				"field":    "obtainOrderLock",
				"order_id": orderId,
			}).Warn("failed to release redis lock: " + releaseErr.Error())
		}
	}
}
