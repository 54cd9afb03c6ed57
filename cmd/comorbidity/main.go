package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/comorbidity/internal/config"
	"github.com/ehr/comorbidity/internal/domain/comorbidity"
	"github.com/ehr/comorbidity/internal/platform/db"
	"github.com/ehr/comorbidity/internal/platform/ruletable"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "comorbidity",
		Short:        "Comorbidity index scoring over ICD-10 codes",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("rules-dir", "", "Load rule tables from this directory instead of RULES_SOURCE")

	root.AddCommand(serveCmd())
	root.AddCommand(scoreCmd())
	root.AddCommand(batchCmd())
	root.AddCommand(rulesCmd())
	root.AddCommand(migrateCmd())
	return root
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(w)
	}
	return logger.Level(cfg.Level()).With().Timestamp().Logger()
}

// app holds what every subcommand needs: configuration, a logger and the rule
// table provider selected by RULES_SOURCE.
type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	pool  *pgxpool.Pool
	rules comorbidity.RuleSetProvider
}

// loadConfig reads configuration and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("rules-dir"); dir != "" {
		cfg.RulesSource = config.RulesDir
		cfg.RulesDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: newLogger(cfg, cmd.ErrOrStderr())}

	switch cfg.RulesSource {
	case config.RulesDir:
		reg, err := ruletable.LoadDir(cfg.RulesDir)
		if err != nil {
			return nil, err
		}
		a.rules = reg
		a.log.Info().Str("dir", cfg.RulesDir).Int("tables", reg.Len()).Msg("loaded rule tables")
	case config.RulesPostgres:
		pool, err := a.openPool(ctx)
		if err != nil {
			return nil, err
		}
		a.rules = comorbidity.NewRuleSetRepoPG(pool)
	default:
		reg, err := ruletable.Embedded()
		if err != nil {
			return nil, fmt.Errorf("load embedded rule tables: %w", err)
		}
		a.rules = reg
	}
	return a, nil
}

func (a *app) openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	if a.cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := db.NewPool(ctx, a.cfg.DatabaseURL, a.cfg.DBSchema, a.cfg.DBMaxConns, a.cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	a.log.Debug().Str("schema", a.cfg.DBSchema).Msg("connected to database")
	a.pool = pool
	return pool, nil
}

// service builds the scoring service with configured defaults.
func (a *app) service() *comorbidity.Service {
	svc := comorbidity.NewService(a.rules, a.log)
	svc.SetDefaults(a.cfg.DefaultScheme, a.cfg.DefaultVersion, comorbidity.Year(a.cfg.DefaultYear))
	svc.SetBatchConcurrency(a.cfg.BatchConcurrency)
	return svc
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
