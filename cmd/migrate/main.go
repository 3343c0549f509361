package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"checkout-be/internal/logger"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var openDB = func(dbURL string) (*sql.DB, error) {
	return sql.Open("postgres", dbURL)
}

func main() {
	_ = godotenv.Load()
	defer logger.Sync()

	if err := newApp().Run(os.Args); err != nil {
		logger.L().Fatal("migration failed", zap.Error(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "migrate",
		Usage: "Apply or roll back the checkout schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Directory holding the *.sql migration files",
				Value:   "./migrations",
			},
			&cli.StringFlag{
				Name:    "db-url",
				Usage:   "Postgres connection URL",
				EnvVars: []string{"DB_URL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply every migration not applied yet",
				Action: withDB(runMigrationsUp),
			},
			{
				Name:   "down",
				Usage:  "Roll back the most recent migration",
				Action: withDB(runMigrationsDown),
			},
			{
				Name:   "status",
				Usage:  "List migrations and whether they are applied",
				Action: withDB(printStatus),
			},
		},
	}
}

type migrationFunc func(ctx context.Context, db *sql.DB, files []string) error

func withDB(fn migrationFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		dbURL := c.String("db-url")
		if dbURL == "" {
			return errors.New("DB_URL not set in environment")
		}

		db, err := openDB(dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect db: %w", err)
		}
		defer db.Close()

		files, err := migrationFiles(c.String("dir"))
		if err != nil {
			return err
		}

		if err := ensureVersionTable(c.Context, db); err != nil {
			return err
		}
		return fn(c.Context, db, files)
	}
}

func ensureVersionTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}
	return nil
}

// migrationFiles returns the *.sql files of dir in lexical order, which is
// the apply order.
func migrationFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func isApplied(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}
	return exists, nil
}

func runMigrationsUp(ctx context.Context, db *sql.DB, files []string) error {
	log := logger.L()

	for _, file := range files {
		version := filepath.Base(file)

		applied, err := isApplied(ctx, db, version)
		if err != nil {
			return err
		}
		if applied {
			log.Info("skipping applied migration", zap.String("version", version))
			continue
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		log.Info("applying migration", zap.String("version", version))
		if err := applyInTx(ctx, db, extractMigrationPart(string(content), "Up"),
			`INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("migration failed (%s): %w", version, err)
		}
	}

	log.Info("all migrations applied")
	return nil
}

func runMigrationsDown(ctx context.Context, db *sql.DB, files []string) error {
	log := logger.L()

	var lastVersion string
	err := db.QueryRowContext(ctx,
		`SELECT version FROM schema_migrations ORDER BY applied_at DESC, version DESC LIMIT 1`,
	).Scan(&lastVersion)
	if errors.Is(err, sql.ErrNoRows) {
		log.Info("no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get last applied migration: %w", err)
	}

	filePath := ""
	for _, f := range files {
		if filepath.Base(f) == lastVersion {
			filePath = f
			break
		}
	}
	if filePath == "" {
		return fmt.Errorf("migration file not found for version: %s", lastVersion)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	log.Info("rolling back migration", zap.String("version", lastVersion))
	if err := applyInTx(ctx, db, extractMigrationPart(string(content), "Down"),
		`DELETE FROM schema_migrations WHERE version = $1`, lastVersion); err != nil {
		return fmt.Errorf("rollback failed (%s): %w", lastVersion, err)
	}

	log.Info("rollback successful", zap.String("version", lastVersion))
	return nil
}

func printStatus(ctx context.Context, db *sql.DB, files []string) error {
	for _, file := range files {
		version := filepath.Base(file)
		applied, err := isApplied(ctx, db, version)
		if err != nil {
			return err
		}
		logger.L().Info("migration", zap.String("version", version), zap.Bool("applied", applied))
	}
	return nil
}

// applyInTx runs the migration body and the bookkeeping statement together.
func applyInTx(ctx context.Context, db *sql.DB, body, record, version string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, record, version); err != nil {
		return fmt.Errorf("failed to record migration version: %w", err)
	}
	return tx.Commit()
}

// extractMigrationPart returns the lines between "-- +migrate <section>" and
// the next "-- +migrate" marker.
func extractMigrationPart(content string, section string) string {
	var part strings.Builder
	inPart := false

	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, "-- +migrate "+section) {
			inPart = true
			continue
		}
		if inPart && strings.HasPrefix(line, "-- +migrate") {
			break
		}
		if inPart {
			part.WriteString(line + "\n")
		}
	}
	return part.String()
}
