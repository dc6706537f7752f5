// Command migrate applies or rolls back database migrations.
//
//	migrate [-database-url URL] up|down|version|force VERSION
package main

import (
	"flag"
	"os"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/golang-migrate/migrate/v4"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/repository"
)

// migrateLogger adapts zap to migrate.Logger.
type migrateLogger struct {
	lg *zap.SugaredLogger
}

func (l migrateLogger) Printf(format string, v ...any) { l.lg.Infof(format, v...) }

func (l migrateLogger) Verbose() bool { return false }

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if flag.NArg() == 0 {
		lg.Fatal("Usage: migrate [flags] up|down|version|force VERSION")
	}

	if err := run(lg, databaseURL, flag.Args()); err != nil {
		lg.Fatal("Migration failed", zap.Error(err))
	}
}

func run(lg *zap.Logger, databaseURL string, args []string) error {
	m, err := repository.NewMigrator(databaseURL)
	if err != nil {
		return errors.Wrap(err, "create migrator")
	}
	m.Log = migrateLogger{lg: lg.Sugar()}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			lg.Warn("Close migrator", zap.NamedError("source", srcErr), zap.NamedError("database", dbErr))
		}
	}()

	if err := execute(m, args); err != nil {
		return err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		lg.Info("No migrations applied")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read version")
	}
	lg.Info("Schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func execute(m *migrate.Migrate, args []string) error {
	var err error
	switch cmd := args[0]; cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "version":
		return nil
	case "force":
		if len(args) < 2 {
			return errors.New("force requires a version")
		}
		v, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			return errors.Wrap(convErr, "parse version")
		}
		err = m.Force(v)
	default:
		return errors.Errorf("unknown command %q", cmd)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
