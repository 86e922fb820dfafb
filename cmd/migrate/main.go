package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ogurasousui/codex-onboarding/internal/platform/config"
	"github.com/ogurasousui/codex-onboarding/internal/platform/logger"
)

func main() {
	var (
		configPath    = flag.String("config", "", "path to config file (defaults to CONFIG_PATH env or assets/local.yaml)")
		migrationsDir = flag.String("dir", "assets/migrations", "directory containing migration files")
	)
	flag.Parse()

	log, err := logger.New("development")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	action, arg, err := parseAction(flag.Args())
	if err != nil {
		log.Error("invalid arguments", "error", err)
		os.Exit(2)
	}

	cfgPath := effectiveConfigPath(*configPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if cfg.Store.Backend != config.StoreBackendPostgres {
		log.Error("migrations apply only to the postgres store backend", "backend", cfg.Store.Backend)
		os.Exit(1)
	}

	if err := runMigration(log, action, arg, *migrationsDir, cfg.Database.DSN()); err != nil {
		log.Error("migration failed", "action", action, "error", err)
		log.Sync()
		os.Exit(1)
	}

	log.Info("migration completed", "action", action)
}

func effectiveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return "assets/local.yaml"
}

// parseAction はサブコマンドと、steps / force が要求する整数引数を解釈します。
func parseAction(args []string) (string, int, error) {
	if len(args) == 0 {
		return "up", 0, nil
	}

	action := args[0]
	switch action {
	case "up", "down", "drop", "version":
		return action, 0, nil
	case "steps", "force":
		if len(args) < 2 {
			return "", 0, fmt.Errorf("%s requires an integer argument", action)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return "", 0, fmt.Errorf("%s: invalid integer %q", action, args[1])
		}
		return action, n, nil
	default:
		return "", 0, fmt.Errorf("unsupported action %q", action)
	}
}

func runMigration(log *logger.Logger, action string, arg int, dir, dsn string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve path for %s: %w", dir, err)
	}
	absDir = filepath.ToSlash(absDir)

	m, err := migrate.New(fmt.Sprintf("file://%s", absDir), dsn)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	switch action {
	case "up":
		return ignoreNoChange(m.Up())
	case "down":
		return ignoreNoChange(m.Down())
	case "steps":
		return ignoreNoChange(m.Steps(arg))
	case "force":
		return m.Force(arg)
	case "drop":
		return m.Drop()
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				log.Info("no migration applied")
				return nil
			}
			return err
		}
		log.Info("current migration version", "version", version, "dirty", dirty)
		return nil
	default:
		return fmt.Errorf("unsupported action %q", action)
	}
}

func ignoreNoChange(err error) error {
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
