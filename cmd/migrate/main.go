// Command migrate manages the database schema explicitly.
//
// Usage:
//
//	migrate up              run pending SQL migrations
//	migrate auto            run GORM AutoMigrate against the model registry
//	migrate status          show applied and pending migrations
//	migrate down <version>  roll back a single migration by version
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"insureconnect/internal/config"
	"insureconnect/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect without automatic schema management; this command decides
	// what runs.
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "up":
		if err := database.RunMigrations(ctx, db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations applied")
	case "auto":
		autoCfg := *cfg
		autoCfg.DBSchemaMode = database.SchemaModeAuto
		if err := database.ApplySchema(ctx, db, &autoCfg); err != nil {
			log.Fatalf("AutoMigrate failed: %v", err)
		}
		log.Println("AutoMigrate completed")
	case "status":
		status, err := database.GetSchemaStatus(ctx, db, cfg)
		if err != nil {
			log.Fatalf("Failed to read schema status: %v", err)
		}
		printStatus(status)
	case "down":
		if len(os.Args) < 3 {
			log.Fatal("Usage: migrate down <version>")
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("Invalid version %q: %v", os.Args[2], err)
		}
		if err := database.RollbackMigration(ctx, db, version); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Printf("Migration %d rolled back", version)
	default:
		usage()
		os.Exit(1)
	}
}

func printStatus(status *database.SchemaStatus) {
	fmt.Printf("Schema mode:     %s\n", status.Mode)
	fmt.Printf("Environment:     %s\n", status.Environment)
	fmt.Printf("SQL migrations:  %v\n", status.WillRunSQL)
	fmt.Printf("AutoMigrate:     %v\n", status.WillRunAutoMigrate)
	fmt.Printf("Applied:         %v\n", status.AppliedVersions)
	if len(status.PendingMigrations) == 0 {
		fmt.Println("Pending:         none")
		return
	}
	fmt.Println("Pending:")
	for _, m := range status.PendingMigrations {
		fmt.Printf("  %d  %s\n", m.Version, m.Name)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate <up|auto|status|down [version]>")
}
