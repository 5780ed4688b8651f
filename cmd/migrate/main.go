package main

import (
	"flag"
	"log"

	"github.com/Baaaki/scooter-fleet/internal/config"
	"github.com/Baaaki/scooter-fleet/internal/database"
	"github.com/Baaaki/scooter-fleet/pkg/logger"
)

// Applies or rolls back the embedded SQL migrations.
//
//	migrate up
//	migrate -steps 1 down
func main() {
	steps := flag.Int("steps", 1, "number of migrations to roll back with down")
	flag.Parse()

	cfg := config.Load()
	if err := logger.Init(!cfg.IsProduction()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	direction := flag.Arg(0)
	var err error
	switch direction {
	case "", "up":
		err = database.MigrateUp(cfg.DatabaseURL)
	case "down":
		err = database.MigrateDown(cfg.DatabaseURL, *steps)
	default:
		log.Fatalf("Unknown direction %q, want up or down", direction)
	}
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Migration %s finished", direction)
}
