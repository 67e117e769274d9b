package main

import (
	"database/sql"
	"flag"
	"log"

	"github.com/example/hospiai-auth/internal/config"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down; 0 = all)")
		version = flag.Uint("version", 0, "Target version (for force command)")
		dir     = flag.String("dir", "./migrations", "Migrations directory")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if cfg.DBAdapter != "postgres" {
		log.Fatalf("Migrations only work with PostgreSQL. Current adapter: %s", cfg.DBAdapter)
	}

	dsn, err := cfg.BuildPostgresDSN()
	if err != nil {
		log.Fatalf("PostgreSQL config error: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Database error: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("Migrate driver error: %v", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+*dir, "postgres", driver)
	if err != nil {
		log.Fatalf("Migrate instance error: %v", err)
	}

	switch *command {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
		if err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("Migrations applied")
	case "down":
		n := *steps
		if n == 0 {
			n = 1
		}
		if err := m.Steps(-n); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Printf("Rolled back %d migration(s)", n)
	case "version":
		v, dirty, err := m.Version()
		if err == migrate.ErrNilVersion {
			log.Println("No migrations applied yet")
			return
		}
		if err != nil {
			log.Fatalf("Version check failed: %v", err)
		}
		log.Printf("Version: %d (dirty: %v)", v, dirty)
	case "force":
		if err := m.Force(int(*version)); err != nil {
			log.Fatalf("Force failed: %v", err)
		}
		log.Printf("Forced version to %d", *version)
	default:
		log.Fatalf("Unknown command: %s", *command)
	}
}
