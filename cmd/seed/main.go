package main

import (
	"fmt"
	"log"
	"os"

	"github.com/lumenfeed/backend/internal/config"
	"github.com/lumenfeed/backend/internal/database"
	"github.com/lumenfeed/backend/internal/logger"
	"github.com/lumenfeed/backend/internal/seed"
)

func main() {
	cfg := config.Load()
	if err := logger.Initialize(cfg.LogLevel, ""); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Close()

	command := "dev"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if err := database.Initialize(cfg.DatabaseURL); err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	seeder := seed.NewSeeder(database.DB)

	switch command {
	case "dev":
		if err := seeder.SeedDev(); err != nil {
			log.Fatalf("seeding failed: %v", err)
		}
		log.Println("development data seeded")
	case "test":
		if err := seeder.SeedTest(); err != nil {
			log.Fatalf("seeding failed: %v", err)
		}
		log.Println("test fixtures seeded")
	case "clean":
		if err := seeder.Clean(); err != nil {
			log.Fatalf("clean failed: %v", err)
		}
		log.Println("seed data removed")
	default:
		fmt.Println("Usage: seed [dev|test|clean]")
		fmt.Println("  dev   - Seed development database with realistic data")
		fmt.Println("  test  - Seed test database with minimal fixtures")
		fmt.Println("  clean - Remove all seed data (use with caution)")
		os.Exit(1)
	}
}
