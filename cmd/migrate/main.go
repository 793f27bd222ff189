package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/pos/backend/internal/infrastructure/config"
	"github.com/pos/backend/internal/infrastructure/logger"
	"github.com/pos/backend/internal/infrastructure/migration"
)

func main() {
	var (
		dir      string
		logLevel string
	)
	flag.StringVar(&dir, "path", "migrations", "migrations directory")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	command, args := args[0], args[1:]

	log, err := logger.New(config.LogConfig{Level: logLevel, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	if dir, err = filepath.Abs(dir); err != nil {
		log.Fatal("failed to resolve migrations directory", zap.Error(err))
	}

	// scaffold and list need no database
	switch command {
	case "create":
		if len(args) < 1 {
			log.Fatal("usage: migrate create <name>")
		}
		pair, err := migration.Scaffold(dir, args[0])
		if err != nil {
			log.Fatal("failed to scaffold migration", zap.Error(err))
		}
		log.Info("migration scaffolded",
			zap.String("version", pair.Version),
			zap.String("up", pair.UpPath),
			zap.String("down", pair.DownPath),
		)
		return

	case "list":
		versions, err := migration.Versions(dir)
		if err != nil {
			log.Fatal("failed to list migrations", zap.Error(err))
		}
		if len(versions) == 0 {
			log.Info("no migrations found", zap.String("dir", dir))
			return
		}
		for _, v := range versions {
			fmt.Println(v)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal("failed to reach database", zap.Error(err))
	}

	if command == "verify" {
		if err := migration.VerifySyncSchema(context.Background(), db); err != nil {
			log.Fatal("sync schema incomplete", zap.Error(err))
		}
		log.Info("sync schema verified")
		return
	}

	mg, err := migration.New(db, dir, log)
	if err != nil {
		log.Fatal("failed to create migrator", zap.Error(err))
	}
	defer mg.Close()

	if err := run(mg, log, command, args); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
}

func run(mg *migration.Migrator, log *zap.Logger, command string, args []string) error {
	switch command {
	case "up":
		return mg.Up()

	case "down":
		return mg.Down()

	case "step":
		n, err := intArg(args, "migrate step <n>")
		if err != nil {
			return err
		}
		return mg.Steps(n)

	case "goto":
		n, err := intArg(args, "migrate goto <version>")
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("version must not be negative, got %d", n)
		}
		return mg.To(uint(n))

	case "version":
		version, dirty, err := mg.Version()
		if err != nil {
			return err
		}
		if version == 0 {
			log.Info("no migrations applied")
		} else {
			log.Info("current schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		}
		return nil

	case "force":
		n, err := intArg(args, "migrate force <version>")
		if err != nil {
			return err
		}
		return mg.Force(n)

	case "drop":
		if len(args) == 0 || args[0] != "-confirm" {
			return fmt.Errorf("drop destroys every object; rerun as: migrate drop -confirm")
		}
		return mg.Drop()

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func intArg(args []string, hint string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("usage: %s", hint)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", args[0])
	}
	return n, nil
}

func usage() {
	fmt.Println(`usage: migrate [-path DIR] [-log-level LEVEL] <command>

commands:
  up               apply all pending migrations
  down             roll back all migrations
  step <n>         apply n migrations (negative rolls back)
  goto <version>   migrate to an exact schema version
  version          print the current schema version
  verify           check the sync schema prerequisites exist
  force <version>  overwrite the recorded version (repairs a dirty state)
  drop -confirm    drop every database object
  create <name>    scaffold an up/down migration pair
  list             list migrations in the directory

database settings come from config.toml or POS_DATABASE_* variables`)
}
