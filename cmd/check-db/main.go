// Package main is a diagnostic tool for testing database connectivity. It
// loads the server configuration, prints the schema version and counts
// organizations and users. It exits non-zero on any failure so it can gate
// deployments in CI/CD pipelines.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/momofin/momofin-backend/internal/config"
	"github.com/momofin/momofin-backend/internal/db"
	"github.com/momofin/momofin-backend/internal/db/repositories"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)

	orgs, err := repositories.NewOrganizationRepository(database).Count(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	users, err := repositories.NewUserRepository(database).Count(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	fmt.Printf("Organizations: %d\n", orgs)
	fmt.Printf("Users: %d\n", users)

	if orgs == 0 {
		fmt.Println("No organizations found! Run `server bootstrap` to create the first admin.")
	}
}
