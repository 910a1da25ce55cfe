// Command migrate applies the database schema.
package main

import (
	"fmt"
	"log"

	"firma/internal/config"
	"firma/internal/database"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	if err := db.AutoMigrate(database.PersistentModels()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	log.Println("schema applied")
	return nil
}
