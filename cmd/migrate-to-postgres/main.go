// migrate-to-postgres copies learned probabilities and archived runs from a
// SQLite database to PostgreSQL.
//
// Usage:
//
//	go run ./cmd/migrate-to-postgres \
//	    -sqlite data/bossmind.db \
//	    -pg-host localhost \
//	    -pg-port 5432 \
//	    -pg-user bossmind \
//	    -pg-password bossmind \
//	    -pg-database bossmind
package main

import (
	"errors"
	"flag"
	"log"

	"github.com/google/uuid"

	"github.com/lawnchairsociety/bossmind/internal/database"
)

func main() {
	// Parse command-line flags
	sqlitePath := flag.String("sqlite", "data/bossmind.db", "Path to SQLite database")
	pgHost := flag.String("pg-host", "localhost", "PostgreSQL host")
	pgPort := flag.Int("pg-port", 5432, "PostgreSQL port")
	pgUser := flag.String("pg-user", "bossmind", "PostgreSQL user")
	pgPassword := flag.String("pg-password", "bossmind", "PostgreSQL password")
	pgDatabase := flag.String("pg-database", "bossmind", "PostgreSQL database name")
	pgSSLMode := flag.String("pg-sslmode", "disable", "PostgreSQL SSL mode")
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	flag.Parse()

	log.Println("SQLite to PostgreSQL Migration Tool")
	log.Println("====================================")

	log.Printf("Opening SQLite database: %s", *sqlitePath)
	srcCfg := database.DefaultConfig(*sqlitePath)
	srcCfg.SkipRun = true
	src, err := database.OpenWithConfig(srcCfg)
	if err != nil {
		log.Fatalf("Failed to open SQLite database: %v", err)
	}
	defer src.Close()

	pg := database.DefaultPostgresConfig()
	pg.Host = *pgHost
	pg.Port = *pgPort
	pg.User = *pgUser
	pg.Password = *pgPassword
	pg.Database = *pgDatabase
	pg.SSLMode = *pgSSLMode

	log.Printf("Opening PostgreSQL database: %s@%s:%d/%s", *pgUser, *pgHost, *pgPort, *pgDatabase)
	dst, err := database.OpenWithConfig(database.Config{Driver: "postgres", Postgres: pg, SkipRun: true})
	if err != nil {
		log.Fatalf("Failed to open PostgreSQL database: %v", err)
	}
	defer dst.Close()

	if *dryRun {
		log.Println("DRY RUN MODE - No changes will be made")
	}

	probabilities, err := src.Load()
	if err != nil {
		log.Fatalf("Failed to read probabilities: %v", err)
	}
	log.Printf("Migrating table: personality_probabilities")
	if !*dryRun && len(probabilities) > 0 {
		if err := dst.Save(probabilities); err != nil {
			log.Fatalf("Failed to migrate probabilities: %v", err)
		}
	}
	log.Printf("  Migrated %d rows", len(probabilities))

	runs, err := src.Runs()
	if err != nil {
		log.Fatalf("Failed to list runs: %v", err)
	}
	log.Printf("Migrating tables: runs, performance_events")

	var migratedRuns, skippedRuns, totalEvents int
	for _, run := range runs {
		id, err := uuid.Parse(run.ID)
		if err != nil {
			log.Printf("  Skipping run with malformed id %q: %v", run.ID, err)
			skippedRuns++
			continue
		}
		events, err := src.Events(id)
		if err != nil {
			log.Fatalf("Failed to read events for run %s: %v", run.ID, err)
		}
		if !*dryRun {
			if err := dst.ImportRun(run, events); err != nil {
				if errors.Is(err, database.ErrRunExists) {
					log.Printf("  Run %s already migrated, skipping", run.ID)
					skippedRuns++
					continue
				}
				log.Fatalf("Failed to migrate run %s: %v", run.ID, err)
			}
		}
		migratedRuns++
		totalEvents += len(events)
	}
	log.Printf("  Migrated %d runs (%d skipped), %d events", migratedRuns, skippedRuns, totalEvents)

	log.Println("====================================")
	log.Printf("Migration complete! Total rows migrated: %d", len(probabilities)+migratedRuns+totalEvents)
	if *dryRun {
		log.Println("(DRY RUN - No actual changes were made)")
	}
}
