package main

import (
	"fmt"
	"log"
	"os"

	"github.com/lumenfeed/backend/internal/config"
	"github.com/lumenfeed/backend/internal/database"
	"github.com/lumenfeed/backend/internal/logger"
)

func main() {
	cfg := config.Load()
	if err := logger.Initialize(cfg.LogLevel, ""); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Close()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "up":
		runMigrationsUp(cfg.DatabaseURL)
	default:
		fmt.Println("Usage: migrate [up]")
		fmt.Println("  up - Run all pending migrations")
		os.Exit(1)
	}
}

func runMigrationsUp(databaseURL string) {
	if err := database.Initialize(databaseURL); err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	log.Println("all migrations completed")
}
