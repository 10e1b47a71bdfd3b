package database_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stockprophet/backend/pkg/config"
	"github.com/stockprophet/backend/pkg/database"
)

// Example bootstraps the store tables and reports which are still missing
func Example() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	before, err := db.HealthCheck(ctx)
	if err != nil {
		log.Fatalf("health check: %v", err)
	}
	fmt.Printf("missing before: %v\n", before.MissingTables)

	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	after, _ := db.HealthCheck(ctx)
	fmt.Printf("healthy after: %v (%d tables)\n", after.Healthy, len(database.Tables))
}
