package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/kleinballenmafia/ballen_backend/config"
	"github.com/kleinballenmafia/ballen_backend/models"
	"github.com/kleinballenmafia/ballen_backend/workflow"
	"github.com/shopspring/decimal"
)

func setupIntegrationDB(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "ballen_test")
	// Redis locks are best-effort; run without them.
	t.Setenv("REDIS_ADDRESS", "")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	db := config.GetDB()
	if err := models.CreateDefaultInventory(db, ctx); err != nil {
		t.Fatalf("CreateDefaultInventory: %v", err)
	}
	return ctx
}

func mustSetStock(t *testing.T, ctx context.Context, product string, quantity int) {
	t.Helper()
	item, err := models.GetInventoryItemByKey(ctx, product)
	if err != nil {
		t.Fatalf("GetInventoryItemByKey(%s): %v", product, err)
	}
	if _, err := models.AdjustInventory(ctx, product, quantity-item.Quantity); err != nil {
		t.Fatalf("AdjustInventory(%s): %v", product, err)
	}
}

func mustStock(t *testing.T, ctx context.Context, product string) int {
	t.Helper()
	item, err := models.GetInventoryItemByKey(ctx, product)
	if err != nil {
		t.Fatalf("GetInventoryItemByKey(%s): %v", product, err)
	}
	return item.Quantity
}

func TestFulfillOrder_DeductsArchivesAndDeletes(t *testing.T) {
	ctx := setupIntegrationDB(t)
	mustSetStock(t, ctx, "Gerstenstroh", 5)

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		Customer:     "Maria Huber",
		OrderDate:    "2026-01-15",
		DeliveryDate: "2026-02-01",
		Items: []models.OrderItem{
			{Product: "Gerstenstroh", Quantity: 3, PricePerUnit: decimal.NewFromFloat(2.5)},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if err := workflow.FulfillOrder(ctx, order.ID); err != nil {
		t.Fatalf("FulfillOrder: %v", err)
	}

	if got := mustStock(t, ctx, "Gerstenstroh"); got != 2 {
		t.Errorf("stock after fulfill = %d, expected 2", got)
	}
	if _, err := models.GetOrder(ctx, order.ID); !errors.Is(err, models.ErrOrderNotFound) {
		t.Errorf("expected order removed from active set, got err=%v", err)
	}

	records, err := models.GetOrderHistory(ctx)
	if err != nil {
		t.Fatalf("GetOrderHistory: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 history record, got %d", len(records))
	}
	rec := records[0]
	if rec.Outcome != models.HistoryOutcomeFulfilled {
		t.Errorf("outcome = %s, expected fulfilled", rec.Outcome)
	}
	if len(rec.Items) != 1 || rec.Items[0].Product != "Gerstenstroh" || rec.Items[0].Quantity != 3 {
		t.Errorf("archived items do not match order: %+v", rec.Items)
	}
	if rec.InvoiceNumber != nil && order.InvoiceNumber == nil {
		t.Errorf("archived invoice number diverges from order")
	}
}

func TestFulfillOrder_InsufficientStockRejectsBeforeMutating(t *testing.T) {
	ctx := setupIntegrationDB(t)
	mustSetStock(t, ctx, "Gerstenstroh", 5)
	mustSetStock(t, ctx, "Heu", 1)

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		Customer:     "Maria Huber",
		DeliveryDate: "2026-02-01",
		Items: []models.OrderItem{
			{Product: "Gerstenstroh", Quantity: 3, PricePerUnit: decimal.NewFromFloat(2.5)},
			{Product: "Heu", Quantity: 4, PricePerUnit: decimal.NewFromInt(3)},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	err = workflow.FulfillOrder(ctx, order.ID)
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// Nothing may have been deducted, archived or deleted.
	if got := mustStock(t, ctx, "Gerstenstroh"); got != 5 {
		t.Errorf("gerstenstroh stock = %d, expected untouched 5", got)
	}
	if got := mustStock(t, ctx, "Heu"); got != 1 {
		t.Errorf("heu stock = %d, expected untouched 1", got)
	}
	if _, err := models.GetOrder(ctx, order.ID); err != nil {
		t.Errorf("order should still be active, got err=%v", err)
	}
	records, err := models.GetOrderHistory(ctx)
	if err != nil {
		t.Fatalf("GetOrderHistory: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no history records, got %d", len(records))
	}
}

func TestFulfillOrder_DuplicateLineItemsCheckedAggregated(t *testing.T) {
	ctx := setupIntegrationDB(t)
	mustSetStock(t, ctx, "Heu", 5)

	// Two line items of the same product must be checked against their
	// combined quantity, not one by one.
	order, err := models.CreateOrder(ctx, &models.NewOrder{
		Customer:     "Maria Huber",
		DeliveryDate: "2026-02-01",
		Items: []models.OrderItem{
			{Product: "Heu", Quantity: 3, PricePerUnit: decimal.NewFromInt(3)},
			{Product: "Heu", Quantity: 3, PricePerUnit: decimal.NewFromInt(3)},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	err = workflow.FulfillOrder(ctx, order.ID)
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for aggregate demand 6 over stock 5, got %v", err)
	}
	if got := mustStock(t, ctx, "Heu"); got != 5 {
		t.Errorf("stock = %d, expected untouched 5", got)
	}
	if _, err := models.GetOrder(ctx, order.ID); err != nil {
		t.Errorf("order should still be active, got err=%v", err)
	}

	// With enough stock the aggregate deducts exactly once.
	mustSetStock(t, ctx, "Heu", 6)
	if err := workflow.FulfillOrder(ctx, order.ID); err != nil {
		t.Fatalf("FulfillOrder: %v", err)
	}
	if got := mustStock(t, ctx, "Heu"); got != 0 {
		t.Errorf("stock after fulfill = %d, expected 0", got)
	}
}

func TestFulfillOrder_UntrackedProductAlwaysFulfillable(t *testing.T) {
	ctx := setupIntegrationDB(t)
	before := mustStock(t, ctx, "Gerstenstroh")

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		Customer:     "Maria Huber",
		DeliveryDate: "2026-02-01",
		Items: []models.OrderItem{
			{Product: "Sonderanfertigung", Quantity: 99, PricePerUnit: decimal.NewFromInt(10)},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if err := workflow.FulfillOrder(ctx, order.ID); err != nil {
		t.Fatalf("FulfillOrder with untracked product: %v", err)
	}
	if got := mustStock(t, ctx, "Gerstenstroh"); got != before {
		t.Errorf("tracked stock changed (%d -> %d) for an untracked-only order", before, got)
	}
}

func TestCancelOrder_NeverTouchesInventory(t *testing.T) {
	ctx := setupIntegrationDB(t)
	mustSetStock(t, ctx, "Heu", 2)

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		Customer:     "Maria Huber",
		DeliveryDate: "2026-02-01",
		Items: []models.OrderItem{
			// More than available; cancel must still succeed.
			{Product: "Heu", Quantity: 10, PricePerUnit: decimal.NewFromInt(3)},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if err := workflow.CancelOrder(ctx, order.ID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if got := mustStock(t, ctx, "Heu"); got != 2 {
		t.Errorf("stock after cancel = %d, expected untouched 2", got)
	}
	if _, err := models.GetOrder(ctx, order.ID); !errors.Is(err, models.ErrOrderNotFound) {
		t.Errorf("expected order removed from active set, got err=%v", err)
	}
	records, err := models.GetOrderHistory(ctx)
	if err != nil {
		t.Fatalf("GetOrderHistory: %v", err)
	}
	if len(records) != 1 || records[0].Outcome != models.HistoryOutcomeCancelled {
		t.Errorf("expected one cancelled history record, got %+v", records)
	}
}

func TestAllocateInvoiceNumber_SequenceAndFormat(t *testing.T) {
	ctx := setupIntegrationDB(t)
	db := config.GetDB()

	if err := db.WithContext(ctx).Create(&models.InvoiceCounter{ID: 1, Year: 2026, CurrentNumber: 7}).Error; err != nil {
		t.Fatalf("seed counter: %v", err)
	}

	number, err := models.AllocateInvoiceNumber(ctx)
	if err != nil {
		t.Fatalf("AllocateInvoiceNumber: %v", err)
	}
	if number != "2026/08" {
		t.Errorf("allocated %q, expected 2026/08", number)
	}

	var counter models.InvoiceCounter
	if err := db.WithContext(ctx).First(&counter, 1).Error; err != nil {
		t.Fatalf("reload counter: %v", err)
	}
	if counter.CurrentNumber != 8 {
		t.Errorf("current_number = %d, expected 8", counter.CurrentNumber)
	}

	// Sequential allocations stay strictly increasing and unique.
	seen := map[string]bool{number: true}
	for i := 0; i < 3; i++ {
		n, err := models.AllocateInvoiceNumber(ctx)
		if err != nil {
			t.Fatalf("AllocateInvoiceNumber: %v", err)
		}
		if seen[n] {
			t.Errorf("duplicate invoice number %q", n)
		}
		seen[n] = true
	}
}

func TestCreateOrder_EmptyCustomerPersistsNothing(t *testing.T) {
	ctx := setupIntegrationDB(t)
	db := config.GetDB()

	if err := db.WithContext(ctx).Create(&models.InvoiceCounter{ID: 1, Year: 2026, CurrentNumber: 7}).Error; err != nil {
		t.Fatalf("seed counter: %v", err)
	}

	_, err := models.CreateOrder(ctx, &models.NewOrder{
		Customer:     "",
		DeliveryDate: "2026-02-01",
		Items: []models.OrderItem{
			{Product: "Heu", Quantity: 1, PricePerUnit: decimal.NewFromInt(3)},
		},
	})
	if err == nil {
		t.Fatal("expected validation error for empty customer")
	}

	orders, err := models.GetOrders(ctx)
	if err != nil {
		t.Fatalf("GetOrders: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("expected no persisted orders, got %d", len(orders))
	}

	var counter models.InvoiceCounter
	if err := db.WithContext(ctx).First(&counter, 1).Error; err != nil {
		t.Fatalf("reload counter: %v", err)
	}
	if counter.CurrentNumber != 7 {
		t.Errorf("counter consumed a number on failed validation: %d", counter.CurrentNumber)
	}
}

func TestUpdateOrderStatus_LegacyCompletedDeductsInline(t *testing.T) {
	ctx := setupIntegrationDB(t)
	mustSetStock(t, ctx, "Weizenstroh", 4)

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		Customer:     "Maria Huber",
		DeliveryDate: "2026-02-01",
		Product:      "Weizenstroh",
		Quantity:     3,
		PricePerUnit: decimal.NewFromFloat(2.5),
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	updated, err := models.UpdateOrderStatus(ctx, order.ID, models.OrderStatusFulfilled)
	if err != nil {
		t.Fatalf("UpdateOrderStatus: %v", err)
	}
	if updated.Status != models.OrderStatusFulfilled {
		t.Errorf("status = %s, expected fulfilled", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Error("completed_at not stamped on terminal transition")
	}
	if got := mustStock(t, ctx, "Weizenstroh"); got != 1 {
		t.Errorf("stock = %d, expected 1", got)
	}

	// A second order over the remaining stock must be rejected untouched.
	over, err := models.CreateOrder(ctx, &models.NewOrder{
		Customer:     "Maria Huber",
		DeliveryDate: "2026-02-01",
		Product:      "Weizenstroh",
		Quantity:     2,
		PricePerUnit: decimal.NewFromFloat(2.5),
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := models.UpdateOrderStatus(ctx, over.ID, models.OrderStatusFulfilled); !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := mustStock(t, ctx, "Weizenstroh"); got != 1 {
		t.Errorf("stock mutated on rejected transition: %d", got)
	}
}

func TestOrderTransition_AlreadyClosedOrderRejected(t *testing.T) {
	ctx := setupIntegrationDB(t)
	mustSetStock(t, ctx, "Weizenstroh", 6)

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		Customer:     "Maria Huber",
		DeliveryDate: "2026-02-01",
		Product:      "Weizenstroh",
		Quantity:     3,
		PricePerUnit: decimal.NewFromFloat(2.5),
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := models.UpdateOrderStatus(ctx, order.ID, models.OrderStatusFulfilled); err != nil {
		t.Fatalf("UpdateOrderStatus: %v", err)
	}

	// The completed order keeps its row; neither transition path may deduct
	// its stock a second time.
	if _, err := models.UpdateOrderStatus(ctx, order.ID, models.OrderStatusFulfilled); !errors.Is(err, models.ErrOrderAlreadyClosed) {
		t.Fatalf("expected ErrOrderAlreadyClosed, got %v", err)
	}
	if err := workflow.FulfillOrder(ctx, order.ID); !errors.Is(err, models.ErrOrderAlreadyClosed) {
		t.Fatalf("expected ErrOrderAlreadyClosed from workflow, got %v", err)
	}
	if got := mustStock(t, ctx, "Weizenstroh"); got != 3 {
		t.Errorf("stock = %d, expected single deduction to 3", got)
	}
	if _, err := models.GetOrder(ctx, order.ID); err != nil {
		t.Errorf("completed order should keep its row, got err=%v", err)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ballen-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=ballen_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
