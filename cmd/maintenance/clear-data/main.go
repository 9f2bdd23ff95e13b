package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/roomdesk/reservation-backend/internal/config"
	"github.com/roomdesk/reservation-backend/internal/database"
)

// restockSQL returns units checked out by approved bookings before the
// bookings themselves are dropped
const restockSQL = `
UPDATE facilities f
SET total_stock = f.total_stock + checked_out.quantity
FROM (
    SELECT bf.facility_id, SUM(bf.quantity) AS quantity
    FROM booking_facilities bf
    JOIN bookings b ON b.id = bf.booking_id
    WHERE b.status = 'approved'
    GROUP BY bf.facility_id
) AS checked_out
WHERE f.id = checked_out.facility_id`

func main() {
	var dbURLFlag string
	var withCatalog bool
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&withCatalog, "catalog", false, "also remove rooms and facilities")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	// Build minimal database config without loading full app config
	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	tables := []string{"booking_audit_logs", "booking_facilities", "bookings"}
	if withCatalog {
		tables = append(tables, "facilities", "rooms")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Println("Connected to database. Clearing booking data...")

	err = db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if !withCatalog {
			result, err := tx.ExecContext(ctx, restockSQL)
			if err != nil {
				return fmt.Errorf("failed to restock facilities: %w", err)
			}
			n, _ := result.RowsAffected()
			fmt.Printf("Returned checked-out units to %d facilities\n", n)
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", t)); err != nil {
				return fmt.Errorf("failed to clear %s: %w", t, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("clear failed, nothing was changed: %v", err)
	}

	fmt.Println("Post-clear row counts:")
	for _, t := range tables {
		var count int
		if err := db.GetContext(ctx, &count, fmt.Sprintf("SELECT COUNT(*) FROM %s", t)); err != nil {
			fmt.Printf("  %s: error: %v\n", t, err)
			continue
		}
		fmt.Printf("  %s: %d\n", t, count)
	}
}
