// seed-demo migrates the schema and seeds the product catalogue and the
// invoice counter. Safe to re-run: existing rows are left untouched.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
//
// INVOICE_YEAR overrides the counter year (defaults to the current year).
// A new calendar year is handled by deleting the old counter row and
// re-running this tool; the counter never resets on its own.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kleinballenmafia/ballen_backend/config"
	"github.com/kleinballenmafia/ballen_backend/models"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	models.MigrateTable()

	if err := models.CreateDefaultInventory(db, ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed inventory: %v\n", err)
		os.Exit(1)
	}
	if err := models.CreateDefaultInvoiceCounter(db, ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed invoice counter: %v\n", err)
		os.Exit(1)
	}

	items, err := models.GetInventoryItems(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list inventory: %v\n", err)
		os.Exit(1)
	}
	for _, item := range items {
		fmt.Printf("%-20s %d\n", item.Name, item.Quantity)
	}
	fmt.Println("seed complete")
}
