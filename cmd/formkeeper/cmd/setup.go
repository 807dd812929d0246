package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/solatis/formkeeper/internal/bundle"
	"github.com/solatis/formkeeper/internal/core/config"
	"github.com/solatis/formkeeper/internal/core/db"
	"github.com/solatis/formkeeper/internal/rules"
)

// env is what every subcommand starts from.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
	db     *sqlx.DB      // nil without database.url
	store  *db.RuleStore // nil without database.url
}

func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

// setup loads config and the logger. Logs go to stderr so command output on
// stdout stays machine-readable.
func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(settings, configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := config.NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

// openStore opens the rule store and refuses to continue on pending migrations.
func (e *env) openStore(ctx context.Context) error {
	if e.cfg.Database.URL == "" {
		return fmt.Errorf("--db-url or FK_DATABASE_URL required")
	}
	database, err := openDatabase(e.cfg.Database.URL)
	if err != nil {
		return err
	}

	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		database.Close()
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			database.Close()
			return fmt.Errorf("migration %s not applied - run 'formkeeper migrate up' first", s.ID)
		}
	}

	store, err := db.NewRuleStore(database, e.logger)
	if err != nil {
		database.Close()
		return fmt.Errorf("failed to load queries: %w", err)
	}
	e.db = database
	e.store = store
	return nil
}

func openDatabase(url string) (*sqlx.DB, error) {
	database, err := db.Open(url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// loadRegistry builds the registry from the store when one is configured and
// not empty, otherwise from the bundle (rules.bundle_path or the embedded default).
// With seed an empty store is filled from the bundle. With seed and rules.watch
// the bundle file is authoritative: it is loaded first and replaces the store.
func (e *env) loadRegistry(ctx context.Context, seed bool) (*rules.Registry, error) {
	if e.cfg.Database.URL != "" && e.store == nil {
		if err := e.openStore(ctx); err != nil {
			return nil, err
		}
	}

	reg, err := rules.NewRegistry()
	if err != nil {
		return nil, err
	}

	bundleWins := seed && e.cfg.Rules.Watch
	if e.store != nil && !bundleWins {
		n, err := e.store.LoadInto(ctx, reg)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return reg, nil
		}
	}

	bundled, err := bundle.LoadOrDefault(e.cfg.Rules.BundlePath)
	if err != nil {
		return nil, err
	}
	if err := reg.Load(bundled); err != nil {
		return nil, fmt.Errorf("bundle rejected: %w", err)
	}

	source := e.cfg.Rules.BundlePath
	if source == "" {
		source = "embedded"
	}
	e.logger.Info().Str("bundle", source).Int("rules", reg.Len()).Msg("rules loaded from bundle")

	if seed && e.store != nil {
		if err := e.store.ReplaceAll(ctx, reg.List()); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
