package models

import (
	"log"

	"github.com/kleinballenmafia/ballen_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&InventoryItem{},
		&Order{},
		&OrderHistory{},
		&AuditEntry{},
		&InvoiceCounter{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
