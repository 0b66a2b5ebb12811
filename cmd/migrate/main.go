// Command migrate applies or reverts the database schema.
//
// Usage:
//
//	migrate [-database-url URL] up|down|version
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/idxstock/stockapi/internal/repository"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "read .env:", err)
		os.Exit(1)
	}

	databaseURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: migrate [flags] up|down|version")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *databaseURL); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(command, databaseURL string) error {
	switch command {
	case "up":
		if err := repository.Migrate(databaseURL); err != nil {
			return err
		}
		fmt.Println("migrations applied")
	case "down":
		if err := repository.MigrateDown(databaseURL); err != nil {
			return err
		}
		fmt.Println("migrations reverted")
	case "version":
		version, dirty, err := repository.MigrationVersion(databaseURL)
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty=%t)\n", version, dirty)
	default:
		return fmt.Errorf("unknown command %q; use up, down or version", command)
	}
	return nil
}
