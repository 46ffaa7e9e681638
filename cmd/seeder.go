package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/jbalwikobra/storefront/internal/core/datamodel/order"
	"github.com/jbalwikobra/storefront/pkg/logger"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with notification groups and sample orders for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		logger.Init(os.Getenv("APP_ENV"))

		sqlxDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		db, err := initGorm(sqlxDB)
		if err != nil {
			log.Fatalf("failed to init orm: %v", err)
		}

		if clearData {
			for _, table := range []string{"delivery_logs", "admin_notifications", "notification_groups", "orders"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		groups := []struct {
			OrderType   string
			Category    string
			Destination string
		}{
			{order.TypePurchase, "paid_order", "group-orders-paid"},
			{order.TypeRental, "paid_order", "group-rentals-paid"},
			{"", "new_order", "group-orders-all"},
		}

		for _, g := range groups {
			var exists int
			row := db.Raw("SELECT 1 FROM notification_groups WHERE order_type = ? AND category = ?", g.OrderType, g.Category).Row()
			if err := row.Scan(&exists); err == nil {
				continue
			}
			if err := db.Exec(
				"INSERT INTO notification_groups (order_type, category, destination_id, is_active, created_at, updated_at) VALUES (?, ?, ?, true, now(), now())",
				g.OrderType, g.Category, g.Destination,
			).Error; err != nil {
				log.Fatalf("failed to insert notification group %s/%s: %v", g.OrderType, g.Category, err)
			}
			fmt.Printf("Seeded notification group %s/%s -> %s\n", g.OrderType, g.Category, g.Destination)
		}

		orders := []struct {
			ExternalID   string
			AmountIDR    int64
			OrderType    string
			CustomerName string
			ProductName  string
		}{
			{"inv-sample-0001", 150000, order.TypePurchase, "Budi", "ML Diamond 1000"},
			{"inv-sample-0002", 75000, order.TypePurchase, "Sari", "Steam Wallet 50K"},
			{"inv-sample-0003", 250000, order.TypeRental, "Agus", "Akun Premium 7 Hari"},
		}

		for _, o := range orders {
			var exists int
			row := db.Raw("SELECT 1 FROM orders WHERE external_id = ?", o.ExternalID).Row()
			if err := row.Scan(&exists); err == nil {
				continue
			}
			if err := db.Exec(
				"INSERT INTO orders (external_id, amount_idr, status, order_type, customer_name, product_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, now(), now())",
				o.ExternalID, o.AmountIDR, order.StatusPending, o.OrderType, o.CustomerName, o.ProductName,
			).Error; err != nil {
				log.Fatalf("failed to insert order %s: %v", o.ExternalID, err)
			}
			fmt.Println("Seeded order:", o.ExternalID)
		}

		fmt.Println("Seeding complete")
	},
}
